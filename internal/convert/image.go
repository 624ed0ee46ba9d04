package convert

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rotisserie/eris"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sells-group/docparse/internal/document"
)

// ImageFormats are the raster tags handled by Image.
var ImageFormats = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff", "webp"}

// Image wraps the first frame of a raster image as a single page with no text layer.
type Image struct{}

func (Image) Convert(ctx context.Context, data []byte) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// image.Decode yields the first frame of multi-frame GIF and TIFF files.
	img, kind, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "image: decode")
	}
	if img.Bounds().Empty() {
		return nil, eris.Errorf("image: %s has no pixels", kind)
	}
	return document.New("image", document.NewImagePage(img)), nil
}
