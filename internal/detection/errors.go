package detection

import "errors"

// Error kinds returned by the pipeline. Callers wrap them with fmt.Errorf
// and classify with errors.Is.
var (
	// ErrMalformedInput is returned for requests with a bad shape, such as an
	// empty upload or a data URI without a comma separator.
	ErrMalformedInput = errors.New("malformed input")

	// ErrDecode is returned when bytes do not form a valid image.
	ErrDecode = errors.New("decode failed")

	// ErrInference is returned when the detector failed or produced an
	// unusable structure.
	ErrInference = errors.New("inference failed")

	// ErrStorage is returned when an artifact or archive entry could not be
	// persisted.
	ErrStorage = errors.New("storage failed")
)

// KindOf returns a short name for the error kind of err, suitable for log
// fields and metric labels.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrInference):
		return "inference"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}

// IsClientError reports whether err was caused by the request itself rather
// than by the server or one of its collaborators.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrDecode)
}
