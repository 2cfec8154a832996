// Package codec converts inbound image payloads into OpenCV matrices and
// encodes annotated matrices back into file bytes.
package codec

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/spacevision/internal/detection"
)

// Format selects the output encoding for Encode.
type Format string

const (
	// FormatJPEG encodes as JPEG.
	FormatJPEG Format = "jpeg"
	// FormatPNG encodes as PNG.
	FormatPNG Format = "png"
)

// FormatFromFilename picks an output format from a file extension.
// Unknown or missing extensions fall back to JPEG.
func FormatFromFilename(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return FormatPNG
	default:
		return FormatJPEG
	}
}

// Extension returns the file extension, including the dot, for the format.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Matches reports whether name already carries an extension for the format.
func (f Format) Matches(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return f == FormatPNG
	case ".jpg", ".jpeg":
		return f == FormatJPEG
	default:
		return false
	}
}

func (f Format) fileExt() gocv.FileExt {
	if f == FormatPNG {
		return gocv.PNGFileExt
	}
	return gocv.JPEGFileExt
}

// DecodeUpload decodes raw image file bytes into a 3-channel BGR matrix.
// The caller owns the returned Mat and must Close it. On error no Mat needs
// closing.
func DecodeUpload(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: empty image payload", detection.ErrMalformedInput)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", detection.ErrDecode, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: unrecognized or truncated image (%d bytes)", detection.ErrDecode, len(data))
	}

	return mat, nil
}

// DecodeDataURI decodes a "data:<mime>;base64,<payload>" string into a
// 3-channel BGR matrix. Any image/* subtype is accepted.
func DecodeDataURI(uri string) (gocv.Mat, error) {
	_, payload, err := ParseDataURI(uri)
	if err != nil {
		return gocv.Mat{}, err
	}
	return DecodeUpload(payload)
}

// Encode serialises frame in the requested format.
func Encode(frame gocv.Mat, format Format) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("encode %s: empty frame", format)
	}

	buf, err := gocv.IMEncode(format.fileExt(), frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	defer buf.Close()

	// The native buffer is released on Close, so hand back a Go-owned copy.
	return bytes.Clone(buf.GetBytes()), nil
}

// Dimensions returns the width and height of a decoded frame.
func Dimensions(frame gocv.Mat) (width, height int) {
	return frame.Cols(), frame.Rows()
}
