package script

import (
	"fmt"
	"strings"
)

// splitCommands cuts a script into commands at newlines and semicolons that
// sit outside braces, brackets, and quotes. Whole-line comments are dropped.
func splitCommands(code string) ([]string, error) {
	var (
		cmds     []string
		cur      strings.Builder
		braces   int
		brackets int
		inQuote  bool
		atStart  = true
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cmds = append(cmds, s)
		}
		cur.Reset()
		atStart = true
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if atStart && (c == ' ' || c == '\t') {
			continue
		}
		if atStart && c == '#' {
			for i < len(code) && code[i] != '\n' {
				i++
			}
			atStart = true
			continue
		}
		switch c {
		case '\\':
			cur.WriteByte(c)
			if i+1 < len(code) {
				i++
				cur.WriteByte(code[i])
			}
			atStart = false
			continue
		case '{':
			if !inQuote {
				braces++
			}
		case '}':
			if !inQuote {
				braces--
				if braces < 0 {
					return nil, fmt.Errorf("unmatched closing brace")
				}
			}
		case '[':
			if !inQuote && braces == 0 {
				brackets++
			}
		case ']':
			if !inQuote && braces == 0 {
				brackets--
				if brackets < 0 {
					return nil, fmt.Errorf("unmatched closing bracket")
				}
			}
		case '"':
			if braces == 0 {
				inQuote = !inQuote
			}
		case '\n', ';':
			if braces == 0 && brackets == 0 && !inQuote {
				flush()
				continue
			}
		}
		cur.WriteByte(c)
		atStart = false
	}
	if braces != 0 {
		return nil, fmt.Errorf("missing closing brace")
	}
	if brackets != 0 {
		return nil, fmt.Errorf("missing closing bracket")
	}
	if inQuote {
		return nil, fmt.Errorf("missing closing quote")
	}
	flush()
	return cmds, nil
}

// parseWords splits one command into words and performs substitution on
// everything except brace-quoted words.
func (in *Interp) parseWords(cmd string) ([]string, error) {
	var words []string
	i := 0
	for i < len(cmd) {
		for i < len(cmd) && (cmd[i] == ' ' || cmd[i] == '\t') {
			i++
		}
		if i >= len(cmd) {
			break
		}
		switch cmd[i] {
		case '{':
			body, next, err := scanBraced(cmd, i)
			if err != nil {
				return nil, &ScriptError{Msg: err.Error()}
			}
			words = append(words, body)
			i = next
		case '"':
			raw, next, err := scanQuoted(cmd, i)
			if err != nil {
				return nil, &ScriptError{Msg: err.Error()}
			}
			w, err := in.subst(raw)
			if err != nil {
				return nil, err
			}
			words = append(words, w)
			i = next
		default:
			start := i
			brackets := 0
			for i < len(cmd) {
				c := cmd[i]
				if c == '\\' {
					i += 2
					continue
				}
				if c == '[' {
					brackets++
				} else if c == ']' {
					brackets--
				} else if (c == ' ' || c == '\t') && brackets == 0 {
					break
				}
				i++
			}
			w, err := in.subst(cmd[start:min(i, len(cmd))])
			if err != nil {
				return nil, err
			}
			words = append(words, w)
		}
	}
	return words, nil
}

// scanBraced returns the content of a brace-quoted word starting at open.
func scanBraced(s string, open int) (body string, next int, err error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("missing closing brace")
}

func scanQuoted(s string, open int) (raw string, next int, err error) {
	for i := open + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return s[open+1 : i], i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("missing closing quote")
}

// subst resolves backslash escapes, $variable references, and [command]
// substitutions.
func (in *Interp) subst(s string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				out.WriteByte(c)
				break
			}
			i++
			switch s[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			default:
				out.WriteByte(s[i])
			}
		case '$':
			name, next := scanVarName(s, i+1)
			if name == "" {
				out.WriteByte(c)
				break
			}
			val, err := in.readVar(name)
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			i = next - 1
		case '[':
			body, next, err := scanBracketed(s, i)
			if err != nil {
				return "", &ScriptError{Msg: err.Error()}
			}
			res, err := in.evalScript(body)
			if err != nil {
				return "", err
			}
			out.WriteString(res)
			i = next - 1
		default:
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

// scanVarName accepts name and name(key) forms.
func scanVarName(s string, start int) (name string, next int) {
	i := start
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == start {
		return "", start
	}
	if i < len(s) && s[i] == '(' {
		close := strings.IndexByte(s[i:], ')')
		if close > 0 {
			return s[start : i+close+1], i + close + 1
		}
	}
	return s[start:i], i
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func scanBracketed(s string, open int) (body string, next int, err error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("missing closing bracket")
}

// splitList parses a whitespace-separated list honoring brace and quote
// grouping, without substitution.
func splitList(s string) ([]string, error) {
	var items []string
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
			i++
		}
		if i >= len(s) {
			break
		}
		switch s[i] {
		case '{':
			body, next, err := scanBraced(s, i)
			if err != nil {
				return nil, err
			}
			items = append(items, body)
			i = next
		case '"':
			body, next, err := scanQuoted(s, i)
			if err != nil {
				return nil, err
			}
			items = append(items, body)
			i = next
		default:
			start := i
			for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' {
				i++
			}
			items = append(items, s[start:i])
		}
	}
	return items, nil
}

func listQuote(s string) string {
	if s == "" {
		return "{}"
	}
	if strings.ContainsAny(s, " \t\n\"\\$[]{}") {
		return "{" + s + "}"
	}
	return s
}

func joinList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = listQuote(it)
	}
	return strings.Join(quoted, " ")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
