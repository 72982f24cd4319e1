package importer

import (
	"testing"

	"tilebatch/internal/config"
)

func TestGroupKey(t *testing.T) {
	tests := []struct {
		name     string
		grouping config.Grouping
		tileID   string
		want     string
	}{
		{"tile mode", config.Grouping{Mode: config.GroupingTile}, "city/block_12_a", "city/block_12_a"},
		{"prefix one token", config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 1}, "block_12_a", "block"},
		{"prefix two tokens", config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 2}, "block-12.a", "block_12"},
		{"prefix keeps directory", config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 1}, "north/block 7", "north/block"},
		{"fewer tokens than requested", config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 5}, "roof_3", "roof_3"},
		{"zero tokens means one", config.Grouping{Mode: config.GroupingPrefix}, "roof_3", "roof"},
		{"separators only", config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 1}, "__", "__"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupKey(tt.grouping, tt.tileID); got != tt.want {
				t.Fatalf("GroupKey(%q) = %q, want %q", tt.tileID, got, tt.want)
			}
		})
	}
}

func TestGroupKeyIsStable(t *testing.T) {
	g := config.Grouping{Mode: config.GroupingPrefix, PrefixTokens: 2}
	first := GroupKey(g, "district/a_b_c")
	for i := 0; i < 10; i++ {
		if got := GroupKey(g, "district/a_b_c"); got != first {
			t.Fatalf("GroupKey changed between calls: %q vs %q", got, first)
		}
	}
}
