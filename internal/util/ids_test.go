package util

import (
	"strings"
	"testing"
)

func TestIDPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
	}{
		{"node", NewNodeID, "nd-"},
		{"edge", NewEdgeID, "ed-"},
		{"community", NewCommunityID, "cm-"},
		{"event", NewEventID, "ev-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()
			if !strings.HasPrefix(id, tt.prefix) {
				t.Fatalf("expected prefix %q, got %q", tt.prefix, id)
			}
			if len(id) != len(tt.prefix)+16 {
				t.Fatalf("expected length %d, got %d (%q)", len(tt.prefix)+16, len(id), id)
			}
		})
	}
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewNodeID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}
