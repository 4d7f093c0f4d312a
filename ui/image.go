package ui

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	// Register decoders for uploads.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// maxInputPixels bounds decoded uploads.
const maxInputPixels = 4096 * 4096

// resizedDims scales (w, h) so the short side equals resolution, then rounds
// both sides to a multiple of 64, the latent grid of Stable Diffusion.
func resizedDims(w, h, resolution int) (int, int) {
	k := float64(resolution) / float64(min(w, h))
	nw := int(math.RoundToEven(float64(w)*k/64)) * 64
	nh := int(math.RoundToEven(float64(h)*k/64)) * 64
	return max(nw, 64), max(nh, 64)
}

// PrepareImage decodes an input image, flattens transparency onto white and
// resizes it for the requested resolution. The result is PNG.
func PrepareImage(data []byte, resolution int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode input image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxInputPixels {
		return nil, fmt.Errorf("input image %dx%d is out of bounds", cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode input image: %w", err)
	}

	w, h := resizedDims(cfg.Width, cfg.Height, resolution)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode input image: %w", err)
	}
	return buf.Bytes(), nil
}
