// Package testdata builds synthetic image fixtures for tests.
package testdata

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"gocv.io/x/gocv"
)

// Scene renders a width x height test scene: a grey background with a dark
// rectangle in the upper-left quadrant, so frames are not uniform.
func Scene(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{R: 180, G: 180, B: 180, A: 255}
	fg := color.RGBA{R: 40, G: 60, B: 90, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 && y < height/2 {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, bg)
			}
		}
	}
	return img
}

// JPEG returns the test scene encoded as JPEG.
func JPEG(width, height int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Scene(width, height), &jpeg.Options{Quality: 90}); err != nil {
		panic(fmt.Sprintf("encode jpeg fixture: %v", err))
	}
	return buf.Bytes()
}

// PNG returns the test scene encoded as PNG.
func PNG(width, height int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Scene(width, height)); err != nil {
		panic(fmt.Sprintf("encode png fixture: %v", err))
	}
	return buf.Bytes()
}

// DataURI returns the JPEG test scene as a browser-style data URI.
func DataURI(width, height int) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(JPEG(width, height))
}

// LoadFrame decodes the JPEG test scene into a Mat. The caller must Close it.
func LoadFrame(width, height int) (*gocv.Mat, error) {
	mat, err := gocv.IMDecode(JPEG(width, height), gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode fixture %dx%d: %w", width, height, err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("decode fixture %dx%d: empty frame", width, height)
	}
	return &mat, nil
}
