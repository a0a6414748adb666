package resolve

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Aris Thorne", "aris thorne"},
		{"doctor honorific", "Dr. Aris Thorne", "aris thorne"},
		{"professor honorific", "Prof Aris Thorne", "aris thorne"},
		{"director honorific", "Director Aris Thorne", "aris thorne"},
		{"stacked honorifics", "Prof. Dr. Aris Thorne", "aris thorne"},
		{"parenthetical", "Aris Thorne (CEO)", "aris thorne"},
		{"quotes", `"Aris" Thorne`, "aris thorne"},
		{"extra whitespace", "  Aris   Thorne ", "aris thorne"},
		{"upper case", "ARIS THORNE", "aris thorne"},
		{"honorific inside name kept", "Drake Thorne", "drake thorne"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.want {
				t.Fatalf("NormalizeName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeNameDistinguishesEntities(t *testing.T) {
	// Legal-entity suffixes are not honorifics and must survive.
	if NormalizeName("EWE") == NormalizeName("EWE AG") {
		t.Fatalf("distinct legal entities normalized to the same key")
	}
}
