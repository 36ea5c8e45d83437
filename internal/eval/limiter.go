package eval

import (
	"fmt"
	"strings"
)

// ValidateBrackets rejects unbalanced grouping delimiters before any code
// reaches the worker. Escaped braces are skipped.
func ValidateBrackets(code string) error {
	depth := 0
	for i := 0; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unmatched closing brace at position %d", i)
			}
		}
	}
	if depth > 0 {
		return fmt.Errorf("opening brace unmatched until end of command")
	}
	return nil
}

// validate is the fail-fast pre-execution check: it never touches the
// worker, and its rejections never force a restart.
func (s *Service) validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return errValidation("empty script")
	}
	if s.cfg.MaxCodeBytes > 0 && len(code) > s.cfg.MaxCodeBytes {
		return errLimiter("script too large: %d bytes (limit %d)", len(code), s.cfg.MaxCodeBytes)
	}
	if err := ValidateBrackets(code); err != nil {
		return errValidation("%v", err)
	}
	return nil
}
