package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding for image.Decode
	"image/png"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Codec abstracts image decoding and result encoding so the pipeline never
// depends on a concrete imaging library.
type Codec interface {
	Decode(data []byte) (*image.NRGBA, error)
	Encode(img image.Image) ([]byte, error)
	// Ext returns the file extension of encoded artifacts, dot included.
	Ext() string
}

// StdCodec decodes PNG/JPEG via the standard image registry and encodes
// results as PNG, the default alpha-capable artifact format.
type StdCodec struct{}

func (StdCodec) Decode(data []byte) (*image.NRGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return toNRGBA(img), nil
}

func (StdCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (StdCodec) Ext() string { return ".png" }

// WebPCodec decodes like StdCodec but encodes results as lossy WebP, which
// keeps result artifacts small while retaining the alpha channel.
type WebPCodec struct {
	Quality float32
}

func (c WebPCodec) Decode(data []byte) (*image.NRGBA, error) {
	return StdCodec{}.Decode(data)
}

func (c WebPCodec) Encode(img image.Image) ([]byte, error) {
	quality := c.Quality
	if quality <= 0 {
		quality = 90
	}
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

func (WebPCodec) Ext() string { return ".webp" }

// CodecFor maps a configured result format to a codec. Unknown formats fall
// back to PNG.
func CodecFor(format string) Codec {
	if format == "webp" {
		return WebPCodec{}
	}
	return StdCodec{}
}
