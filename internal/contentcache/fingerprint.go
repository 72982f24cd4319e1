package contentcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"tilebatch/internal/fileutil"
)

// FormatVersion tags the payload encoding and the normalization rules that
// produced it. Bumping it turns every existing entry into a miss.
const FormatVersion = 1

// Fingerprint identifies one cached tile. Key is derived from the identities
// of the descriptor and buffer files plus FormatVersion.
type Fingerprint struct {
	Key    string
	TileID string
	Source string
}

// NewFingerprint derives the fingerprint for a tile from its source files.
// Any change in path, size, or modification time of either file yields a
// different key.
func NewFingerprint(tileID string, descriptor, buffer fileutil.Identity) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x00", FormatVersion)
	for _, id := range []fileutil.Identity{descriptor, buffer} {
		fmt.Fprintf(h, "%s\x00%d\x00%d\x00", id.Path, id.Size, id.ModTime)
	}
	return Fingerprint{
		Key:    hex.EncodeToString(h.Sum(nil)),
		TileID: tileID,
		Source: buffer.Path,
	}
}

// Valid reports whether the fingerprint carries a key.
func (f Fingerprint) Valid() bool {
	return f.Key != ""
}

func (f Fingerprint) String() string {
	if len(f.Key) > 12 {
		return f.TileID + "@" + f.Key[:12]
	}
	return f.TileID + "@" + f.Key
}
