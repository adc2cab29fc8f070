package jsonx

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string // exact output; empty means only check parseability
		wantErr bool
	}{
		{
			name:  "valid_unchanged",
			input: `{"a": 1, "b": [2, 3]}`,
			want:  `{"a": 1, "b": [2, 3]}`,
		},
		{
			name:  "valid_with_whitespace_unchanged",
			input: "{\n  \"a\": 1\n}",
			want:  "{\n  \"a\": 1\n}",
		},
		{
			name:  "unterminated_string_at_eof",
			input: `{"a": "cut off`,
		},
		{
			name:  "unbalanced_object",
			input: `{"a": {"b": 1}`,
		},
		{
			name:  "unbalanced_nested_mixed",
			input: `{"a": [1, 2, {"b": 3`,
		},
		{
			name:  "trailing_comma_object",
			input: `{"a": 1,}`,
		},
		{
			name:  "trailing_comma_array",
			input: `{"a": [1, 2,]}`,
		},
		{
			name:  "truncated_mid_value",
			input: `{"checks": [{"check_id": "N-01", "title": "SSH only`,
		},
		{
			name:    "hopeless",
			input:   `{{{":::`,
			wantErr: true,
		},
		{
			name:    "not_json_at_all",
			input:   `vendor cisco model 3850`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Repair(tt.input)
			if tt.wantErr {
				var ue *UnrepairableError
				if !errors.As(err, &ue) {
					t.Fatalf("Repair(%q) error = %v, want *UnrepairableError", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Repair(%q) unexpected error: %v", tt.input, err)
			}
			var v any
			if jerr := json.Unmarshal([]byte(got), &v); jerr != nil {
				t.Fatalf("Repair(%q) = %q, still unparseable: %v", tt.input, got, jerr)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("Repair(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// An unterminated string value followed by the next key must close before
// the comma so the later members survive.
func TestRepairUnterminatedStringBeforeComma(t *testing.T) {
	got, err := Repair(`{"a": "unterminated, "b": 1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(got), &m); err != nil {
		t.Fatalf("repaired output unparseable: %v", err)
	}
	if b, ok := m["b"].(float64); !ok || b != 1 {
		t.Errorf("key b = %v, want 1", m["b"])
	}
	if _, ok := m["a"]; !ok {
		t.Errorf("key a lost during repair: %v", m)
	}
}

func TestRepairIdempotentOnValidJSON(t *testing.T) {
	inputs := []string{
		`{}`,
		`{"s": "a } b ] c"}`,
		`{"n": 1.5, "list": [true, null]}`,
		`{"nested": {"deep": {"x": "y"}}}`,
	}
	for _, in := range inputs {
		got, err := Repair(in)
		if err != nil {
			t.Fatalf("Repair(%q) error: %v", in, err)
		}
		if got != in {
			t.Errorf("Repair(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestUnrepairableErrorCarriesOffset(t *testing.T) {
	_, err := Repair(`{"a": §}`)
	var ue *UnrepairableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UnrepairableError", err)
	}
	if ue.Offset == 0 {
		t.Errorf("expected a nonzero parser offset, got 0")
	}
}

func TestExtractAndRepair(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{
			name:    "fenced_and_truncated",
			input:   "```json\n{\"device_vendor\": \"cisco\", \"os_type\": \"ios\"",
			wantKey: "device_vendor",
		},
		{
			name:    "prose_wrapped",
			input:   `Sure! {"checks": []} Hope that helps.`,
			wantKey: "checks",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAndRepair(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(got), &m); err != nil {
				t.Fatalf("output unparseable: %v", err)
			}
			if _, ok := m[tt.wantKey]; !ok {
				t.Errorf("key %q missing from %v", tt.wantKey, m)
			}
		})
	}

	if _, err := ExtractAndRepair("nothing structured"); !errors.Is(err, ErrNoJSONFound) {
		t.Errorf("error = %v, want ErrNoJSONFound", err)
	}
}
