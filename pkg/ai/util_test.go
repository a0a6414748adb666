package ai

import (
	"testing"
)

func TestUnmarshalFlexible(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
		Type string `json:"type,omitempty"`
	}

	tests := []struct {
		name  string
		input string
		want  entity
	}{
		{
			name:  "valid json object",
			input: `{"name":"ACME CORP","type":"ORGANIZATION"}`,
			want:  entity{Name: "ACME CORP", Type: "ORGANIZATION"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{name: 'ACME CORP'}`,
			want:  entity{Name: "ACME CORP"},
		},
		{
			name:  "trailing comma",
			input: `{"name":"ACME CORP",}`,
			want:  entity{Name: "ACME CORP"},
		},
		{
			name:  "missing closing brace",
			input: `{"name":"ACME CORP`,
			want:  entity{Name: "ACME CORP"},
		},
		{
			name:  "double-encoded object",
			input: `"{\"name\": \"ACME CORP\"}"`,
			want:  entity{Name: "ACME CORP"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"name\": \"ACME CORP\"\n}\n",
			want:  entity{Name: "ACME CORP"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got entity
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexibleArray(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
	}

	input := `[{name:'A'},{name:'B',}]`
	var got []entity
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "A" || got[1].Name != "B" {
		t.Fatalf("UnmarshalFlexible() got = %+v, want two entities A,B", got)
	}
}

func TestUnmarshalFlexibleUnrecoverable(t *testing.T) {
	type entity struct {
		Name string `json:"name"`
	}

	var got entity
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
}
