package dedup

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"tilebatch/internal/faults"
)

// sniffLen covers the longest magic number filetype inspects.
const sniffLen = 262

// TextureSource describes a texture file ready to be bound by a host.
type TextureSource struct {
	Key  MaterialKey
	Path string
	// Name is the material name that first referenced the texture.
	Name      string
	Extension string
	MIME      string
	Width     int
	Height    int
}

// Probe identifies the image kind of the texture at path and reads its
// dimensions without decoding pixels.
func Probe(path string) (TextureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TextureSource{}, faults.Wrap(faults.ErrMissingAsset, "", "probe texture", fmt.Sprintf("texture %s not found", path), nil)
		}
		return TextureSource{}, faults.Wrap(faults.ErrMissingAsset, "", "probe texture", "open texture", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return TextureSource{}, faults.Wrap(faults.ErrDecode, "", "probe texture", "read texture header", err)
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(head) {
		return TextureSource{}, faults.Wrap(faults.ErrDecode, "", "probe texture", fmt.Sprintf("%s is not a recognized image", path), nil)
	}

	cfg, _, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		return TextureSource{}, faults.Wrap(faults.ErrDecode, "", "probe texture", fmt.Sprintf("read %s dimensions", kind.Extension), err)
	}
	return TextureSource{
		Path:      path,
		Extension: kind.Extension,
		MIME:      kind.MIME.Value,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}
