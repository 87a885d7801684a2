package ai

import (
	"testing"
)

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	type summary struct {
		Summary string `json:"summary"`
	}

	tests := []struct {
		name  string
		input string
		want  summary
	}{
		{
			name:  "valid json object",
			input: `{"summary":"A community of related firms."}`,
			want:  summary{Summary: "A community of related firms."},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{summary: 'A community of related firms.'}`,
			want:  summary{Summary: "A community of related firms."},
		},
		{
			name:  "trailing comma",
			input: `{"summary":"A community of related firms.",}`,
			want:  summary{Summary: "A community of related firms."},
		},
		{
			name:  "missing endbracket",
			input: `{"summary":"A community of related firms.`,
			want:  summary{Summary: "A community of related firms."},
		},
		{
			name:  "stringified invalid json object",
			input: `"{summary: 'A community of related firms.'}"`,
			want:  summary{Summary: "A community of related firms."},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"summary\": \"A community of related firms.\"\n}\n",
			want:  summary{Summary: "A community of related firms."},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got summary
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_GarbageFails(t *testing.T) {
	var out map[string]any
	if err := UnmarshalFlexible("", &out); err == nil {
		t.Error("expected error for empty input")
	}
}
