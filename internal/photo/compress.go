package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	// Register decoders for the formats cameras and file pickers produce.
	_ "image/gif"
	_ "image/png"
	_ "golang.org/x/image/webp"
)

// compress downscales an oversized image to fit within maxWidth x maxHeight,
// preserving aspect ratio, and re-encodes it as JPEG at the configured
// quality. Images already within bounds pass through byte-identical.
// Returns the (possibly re-encoded) bytes and their MIME type.
func compress(data []byte, maxWidth, maxHeight, quality int) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrImageDecode, err)
	}
	if cfg.Width <= maxWidth && cfg.Height <= maxHeight {
		return data, "image/" + format, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrImageDecode, err)
	}

	w, h := cfg.Width, cfg.Height
	// Fit inside the bounds, whichever dimension constrains harder.
	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := min(scaleW, scaleH)
	dw := max(int(float64(w)*scale), 1)
	dh := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode scaled image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
