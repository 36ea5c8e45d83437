package eval

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{
			"couldn't open /home/svc/data/state/store/state.db",
			"couldn't open <path>",
		},
		{
			"read file:///etc/passwd failed",
			"read <path> failed",
		},
		{
			`cannot load C:\Users\svc\state.db`,
			"cannot load <path>",
		},
		{
			"plain error with no paths",
			"plain error with no paths",
		},
		{
			"divide by zero in expr",
			"divide by zero in expr",
		},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitize_KeepsSurroundingText(t *testing.T) {
	got := Sanitize("error: stat /var/lib/scriptvault/blobs/ab/cdef: no such file")
	if strings.Contains(got, "/var/lib") {
		t.Fatalf("path leaked: %q", got)
	}
	if !strings.HasPrefix(got, "error: stat ") {
		t.Fatalf("prefix mangled: %q", got)
	}
	if !strings.HasSuffix(got, ": no such file") {
		t.Fatalf("suffix mangled: %q", got)
	}
}

func TestValidateBrackets(t *testing.T) {
	ok := []string{
		"set x 1",
		"proc p {a b} { return $a }",
		"puts \\{",
		"if {$x} { puts yes } else { puts no }",
		"",
	}
	for _, code := range ok {
		if err := ValidateBrackets(code); err != nil {
			t.Fatalf("ValidateBrackets(%q) = %v", code, err)
		}
	}

	bad := []string{
		"proc p {a b} { return $a",
		"set x }",
		"{{}",
	}
	for _, code := range bad {
		if err := ValidateBrackets(code); err == nil {
			t.Fatalf("ValidateBrackets(%q) accepted unbalanced code", code)
		}
	}
}
