package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	evalSchema := compile("eval.schema.json")
	continueSchema := compile("continue.schema.json")
	rollbackSchema := compile("rollback.schema.json")

	valid := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		_ = json.Unmarshal([]byte(raw), &v)
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}
	invalid := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		_ = json.Unmarshal([]byte(raw), &v)
		if err := s.Validate(v); err == nil {
			t.Fatalf("accepted invalid payload %s", raw)
		}
	}

	valid(evalSchema, `{"code":"set x 1","actor":"alice","origin":"#chan"}`)
	valid(evalSchema, `{"code":"puts hi","actor":"bob"}`)
	invalid(evalSchema, `{"actor":"alice"}`)
	invalid(evalSchema, `{"code":"","actor":"alice"}`)
	invalid(evalSchema, `{"code":"x","actor":"alice","extra":true}`)

	valid(continueSchema, `{"actor":"alice","origin":"#chan"}`)
	invalid(continueSchema, `{}`)

	valid(rollbackSchema, `{"ref":"deadbeef","actor":"op"}`)
	invalid(rollbackSchema, `{"ref":"abc"}`)
	invalid(rollbackSchema, `{"ref":"XYZ12345"}`)
	invalid(rollbackSchema, `{}`)
}
