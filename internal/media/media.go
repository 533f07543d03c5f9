// Package media turns uploaded image bytes into the URLs stored on a photo:
// an inline data URI for the original and a downscaled JPEG thumbnail.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime"
	"net/http"
	"strings"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"
)

var (
	// ErrNotImage is returned when the content isn't an image/* type.
	ErrNotImage = errors.New("media: content is not an image")
	// ErrTooManyPixels is returned when the header claims more than MaxPixels.
	ErrTooManyPixels = errors.New("media: image dimensions exceed the pixel budget")
)

// MaxPixels bounds width*height of an image Thumbnail will decode. Decoders
// allocate the full pixel buffer from the header before reading any data.
const MaxPixels = 40_000_000

const thumbnailQuality = 85

// DataURI encodes data as "data:<mimeType>;base64,<payload>".
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DetectMIME picks the content type for an upload. The bytes are always
// sniffed and must look like an image; the declared multipart type only
// matters when it agrees with the sniffed one. SVG sniffs as XML and is
// rejected.
func DetectMIME(data []byte, declared string) (string, error) {
	sniffed, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil || !strings.HasPrefix(sniffed, "image/") {
		return "", ErrNotImage
	}

	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.EqualFold(mt, sniffed) {
		return strings.ToLower(mt), nil
	}
	return sniffed, nil
}

// Thumbnail decodes a JPEG, PNG or GIF and returns a JPEG data URI whose
// longer side is at most maxSide pixels. Images already within bounds are
// re-encoded at their own size. The header is checked against MaxPixels
// before any pixel data is decoded.
func Thumbnail(data []byte, maxSide uint) (string, error) {
	if maxSide == 0 {
		return "", errors.New("media: thumbnail size must be positive")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("media: reading image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("media: decoding image: %w", err)
	}

	thumb := resize.Thumbnail(maxSide, maxSide, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return "", fmt.Errorf("media: encoding thumbnail: %w", err)
	}

	return DataURI("image/jpeg", buf.Bytes()), nil
}
