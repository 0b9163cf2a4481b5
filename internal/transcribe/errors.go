package transcribe

import (
	"errors"
	"fmt"
)

// ErrUnsplittable is returned when halving reaches the minimum chunk floor
// and the exported audio still exceeds the service size ceiling.
var ErrUnsplittable = errors.New("cannot split audio below the transcription size ceiling")

// ErrNoOutput is returned when the remote service produced neither timed
// segments nor usable transcript text across the whole file.
var ErrNoOutput = errors.New("no transcription output produced")

// DecodeError indicates the source audio could not be decoded for chunk
// planning (unreadable container or zero duration).
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not decode audio: %v", e.Err)
	}
	return fmt.Sprintf("could not decode audio: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServiceError indicates the remote transcription call failed: a transport
// error, a non-2xx status, or a malformed response body.
type ServiceError struct {
	StatusCode int    // 0 for transport-level failures
	Body       string // response body for HTTP-level failures
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription service returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transcription request failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
