package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
)

// gradient builds a smooth test image that survives lossy encoding well.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// meanDelta returns the mean absolute per-channel difference of two images.
func meanDelta(t *testing.T, a, b image.Image) float64 {
	t.Helper()

	if a.Bounds().Size() != b.Bounds().Size() {
		t.Fatalf("Expected equal sizes, got %v and %v", a.Bounds().Size(), b.Bounds().Size())
	}

	var sum, n float64
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			r1, g1, b1, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			r2, g2, b2, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			for _, d := range []int64{int64(r1>>8) - int64(r2>>8), int64(g1>>8) - int64(g2>>8), int64(b1>>8) - int64(b2>>8)} {
				if d < 0 {
					d = -d
				}
				sum += float64(d)
				n++
			}
		}
	}

	return sum / n
}

func encodeWith(t *testing.T, encode func(*bytes.Buffer, image.Image) error, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestNormalize_PNGRoundTrip(t *testing.T) {
	src := gradient(64, 48)
	input := encodeWith(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, src)

	out, err := Normalize(input)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	format, err := Detect(out)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if format != CanonicalMIME {
		t.Fatalf("Expected %s, got %s", CanonicalMIME, format)
	}

	decoded, err := webp.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if delta := meanDelta(t, src, decoded); delta > 8 {
		t.Errorf("Expected mean channel delta <= 8, got %.2f", delta)
	}
}

func TestNormalize_OtherFormats(t *testing.T) {
	src := gradient(32, 32)
	inputs := map[string][]byte{
		"image/jpeg": encodeWith(t, func(b *bytes.Buffer, m image.Image) error {
			return jpeg.Encode(b, m, &jpeg.Options{Quality: 90})
		}, src),
		"image/gif": encodeWith(t, func(b *bytes.Buffer, m image.Image) error {
			return gif.Encode(b, m, nil)
		}, src),
		"image/bmp": encodeWith(t, func(b *bytes.Buffer, m image.Image) error {
			return bmp.Encode(b, m)
		}, src),
	}

	for name, input := range inputs {
		t.Run(name, func(tst *testing.T) {
			format, err := Detect(input)
			if err != nil {
				tst.Fatalf("Detect failed: %v", err)
			}
			if format != name {
				tst.Errorf("Expected %s, got %s", name, format)
			}

			out, err := Normalize(input)
			if err != nil {
				tst.Fatalf("Normalize failed: %v", err)
			}
			if format, _ := Detect(out); format != CanonicalMIME {
				tst.Errorf("Expected canonical output, got %s", format)
			}
		})
	}
}

func TestNormalize_WebPPassthrough(t *testing.T) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, gradient(16, 16), webp.Options{Quality: 90}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	input := buf.Bytes()

	out, err := Normalize(input)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if !bytes.Equal(out, input) {
		t.Fatal("Expected WebP input to be returned unchanged")
	}
	if &out[0] != &input[0] {
		t.Error("Expected WebP passthrough without copying")
	}
}

func TestNormalize_Unsupported(t *testing.T) {
	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	valid := encodeWith(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, gradient(32, 32))

	inputs := map[string][]byte{
		"empty":     nil,
		"random":    random,
		"text":      []byte("definitely not an image"),
		"truncated": valid[:len(valid)/3],
	}

	for name, input := range inputs {
		t.Run(name, func(tst *testing.T) {
			out, err := Normalize(input)
			if !errors.Is(err, ErrUnsupportedFormat) {
				tst.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
			}
			if out != nil {
				tst.Errorf("Expected no output on failure, got %d bytes", len(out))
			}
		})
	}
}

func TestNormalize_PixelLimit(t *testing.T) {
	buf := encodeWith(t, func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, gradient(8, 8))

	// Claim a 100000x100000 canvas in the IHDR chunk and fix up its checksum.
	binary.BigEndian.PutUint32(buf[16:20], 100000)
	binary.BigEndian.PutUint32(buf[20:24], 100000)
	binary.BigEndian.PutUint32(buf[29:33], crc32.ChecksumIEEE(buf[12:29]))

	config, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}
	if config.Width != 100000 || config.Height != 100000 {
		t.Fatalf("Expected 100000x100000, got %dx%d", config.Width, config.Height)
	}

	out, err := Normalize(buf)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
	if out != nil {
		t.Errorf("Expected no output on failure, got %d bytes", len(out))
	}
}
