// Package imaging converts uploaded images into the canonical stored encoding.
//
// Every image kept by the asset store is lossy WebP. Input is identified by
// content only; file extensions and client supplied MIME types are ignored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/tiff" // TIFF decoder
)

const (
	// CanonicalMIME is the content type of every normalized image.
	CanonicalMIME = "image/webp"
	// Quality is the fixed lossy encoder quality on a 0-100 scale.
	Quality = 70
	// MaxPixels caps width times height of decoded input.
	MaxPixels = 50_000_000
)

var ErrUnsupportedFormat = errors.New("imaging: unsupported image format")

// decodable lists the detected content types that have a registered decoder.
var decodable = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/bmp":  {},
	"image/tiff": {},
	"image/webp": {},
}

// Detect returns the content type of buf, walking up the mimetype hierarchy
// until a supported image type is found.
func Detect(buf []byte) (string, error) {
	if len(buf) == 0 {
		return "", ErrUnsupportedFormat
	}

	for mtype := mimetype.Detect(buf); mtype != nil; mtype = mtype.Parent() {
		if _, ok := decodable[mtype.String()]; ok {
			return mtype.String(), nil
		}
	}

	return "", ErrUnsupportedFormat
}

// Normalize returns buf encoded as lossy WebP.
// WebP input is returned as is without copying.
func Normalize(buf []byte) ([]byte, error) {
	format, err := Detect(buf)
	if err != nil {
		return nil, err
	}

	if format == CanonicalMIME {
		return buf, nil
	}

	config, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, format, err)
	}
	if int64(config.Width)*int64(config.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %s: %dx%d exceeds %d pixels", ErrUnsupportedFormat, format, config.Width, config.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, format, err)
	}

	var out bytes.Buffer
	if err := webp.Encode(&out, img, webp.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrUnsupportedFormat, err)
	}

	return out.Bytes(), nil
}
