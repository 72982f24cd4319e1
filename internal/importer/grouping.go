package importer

import (
	"strings"

	"tilebatch/internal/config"
)

// GroupKey assigns a tile to a scene group. In tile mode every tile is its
// own group. In prefix mode the group is the tile's directory plus the first
// tokens of its name, split on '_', '-', '.', or spaces.
func GroupKey(grouping config.Grouping, tileID string) string {
	if grouping.Mode != config.GroupingPrefix {
		return tileID
	}
	dir, name := "", tileID
	if i := strings.LastIndexByte(tileID, '/'); i >= 0 {
		dir, name = tileID[:i+1], tileID[i+1:]
	}
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	n := grouping.PrefixTokens
	if n <= 0 {
		n = 1
	}
	if len(tokens) == 0 {
		return tileID
	}
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return dir + strings.Join(tokens, "_")
}
