package codec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ayusman/spacevision/internal/detection"
)

const dataScheme = "data:"

// ParseDataURI splits a base64 data URI into its media type and decoded
// payload. Shape problems are reported as detection.ErrMalformedInput, bad
// base64 as detection.ErrDecode.
func ParseDataURI(uri string) (mediaType string, payload []byte, err error) {
	header, encoded, ok := strings.Cut(strings.TrimSpace(uri), ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: data URI has no comma separator", detection.ErrMalformedInput)
	}

	if !strings.HasPrefix(strings.ToLower(header), dataScheme) {
		return "", nil, fmt.Errorf("%w: missing %q scheme", detection.ErrMalformedInput, dataScheme)
	}

	params := strings.Split(header[len(dataScheme):], ";")
	mediaType = strings.ToLower(strings.TrimSpace(params[0]))

	base64Encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			base64Encoded = true
		}
	}
	if !base64Encoded {
		return "", nil, fmt.Errorf("%w: data URI is not base64 encoded", detection.ErrMalformedInput)
	}
	if mediaType != "" && !strings.HasPrefix(mediaType, "image/") {
		return "", nil, fmt.Errorf("%w: media type %q is not an image", detection.ErrMalformedInput, mediaType)
	}

	payload, err = decodeBase64(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid base64 payload: %v", detection.ErrDecode, err)
	}
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("%w: empty image payload", detection.ErrMalformedInput)
	}

	return mediaType, payload, nil
}

// decodeBase64 accepts padded and unpadded standard base64 and ignores
// embedded whitespace, which some browsers insert into long data URIs.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// EncodeDataURI builds a base64 data URI for payload with the given media type.
func EncodeDataURI(mediaType string, payload []byte) string {
	return dataScheme + mediaType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}
