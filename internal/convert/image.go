// Package convert performs format conversions for stored files.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/fileforge/fileforge/internal/formats"
)

// ErrUnsupported is returned for pairs the codec cannot produce.
var ErrUnsupported = errors.New("conversion requires additional processing libraries")

// Result is the converted output.
type Result struct {
	Data []byte
	MIME string
}

const defaultJPEGQuality = 90

var rasterFormats = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// ImageConverter re-encodes raster images between JPEG, PNG and GIF.
type ImageConverter struct {
	jpegQuality int
}

// NewImageConverter creates a new ImageConverter.
func NewImageConverter() *ImageConverter {
	return &ImageConverter{jpegQuality: defaultJPEGQuality}
}

// Supports reports whether the pair can be converted by this codec.
func (c *ImageConverter) Supports(source, target string) bool {
	return rasterFormats[formats.NormalizeExt(source)] && rasterFormats[formats.NormalizeExt(target)]
}

// Convert decodes src and encodes it as target.
func (c *ImageConverter) Convert(ctx context.Context, src []byte, source, target string) (*Result, error) {
	if !c.Supports(source, target) {
		return nil, ErrUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", source, err)
	}

	var buf bytes.Buffer
	target = formats.NormalizeExt(target)
	switch target {
	case "jpg", "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.jpegQuality})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s image: %w", target, err)
	}

	f, _ := formats.Lookup(target)
	return &Result{Data: buf.Bytes(), MIME: f.MIME}, nil
}
