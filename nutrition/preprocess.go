// Package nutrition covers the food flows: photo analysis and barcode
// lookup. Photos are preprocessed on-device so uploads stay small; all
// recognition happens on the backend.
package nutrition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
)

var (
	// ErrUnsupportedImage indicates the photo could not be decoded.
	ErrUnsupportedImage = errors.New("nutrition: unsupported or corrupt image")

	// ErrEmptyImage indicates a zero-byte photo.
	ErrEmptyImage = errors.New("nutrition: empty image data")
)

// jpegQuality balances upload size against the detail the food recognizer
// needs. 85 is visually lossless for plates of food.
const jpegQuality = 85

// DecodeImage decodes JPEG, PNG, or GIF photo bytes.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	_ = format
	return img, nil
}

// DownscaleToFit scales img down so neither dimension exceeds maxDim,
// preserving aspect ratio. Images already within bounds are returned as-is;
// this never upscales.
func DownscaleToFit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return img
	}

	var newWidth, newHeight int
	if width >= height {
		newWidth = maxDim
		newHeight = height * maxDim / width
	} else {
		newHeight = maxDim
		newWidth = width * maxDim / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG renders img as upload-ready JPEG bytes.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// PreparePhoto runs the full preprocessing pipeline: decode, downscale to
// maxDim, re-encode as JPEG.
func PreparePhoto(data []byte, maxDim int) ([]byte, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(DownscaleToFit(img, maxDim))
}
