package eval

import "regexp"

// Error text shown to callers must not leak the server's filesystem
// layout. Matches unix and windows absolute paths and file:// URLs.
var (
	reFileURL  = regexp.MustCompile(`file://[^\s"']+`)
	reUnixPath = regexp.MustCompile(`(^|[\s"'(=:])/(?:[\w.\-]+/)+[\w.\-]+`)
	reWinPath  = regexp.MustCompile(`[A-Za-z]:\\(?:[\w.\- ]+\\)*[\w.\-]+`)
)

// Sanitize scrubs host paths out of a user-visible error message.
func Sanitize(msg string) string {
	msg = reFileURL.ReplaceAllString(msg, "<path>")
	msg = reWinPath.ReplaceAllString(msg, "<path>")
	msg = reUnixPath.ReplaceAllStringFunc(msg, func(m string) string {
		i := 0
		for i < len(m) && m[i] != '/' {
			i++
		}
		return m[:i] + "<path>"
	})
	return msg
}
