package classifier

import (
	"errors"
	"fmt"
)

// NetworkError is a transport-level failure reaching a classifier endpoint
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteRejectionError is a non-2xx answer from the classifier
type RemoteRejectionError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteRejectionError) Error() string {
	return fmt.Sprintf("%s failed %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary reports whether the rejection might succeed on a later attempt
func (e *RemoteRejectionError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ErrUnknownProvider is returned for a provider the client has no backend for
var ErrUnknownProvider = errors.New("unknown classifier provider")

// IsNetwork reports whether err is a transport failure
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsRejection reports whether err is a non-2xx answer
func IsRejection(err error) bool {
	var re *RemoteRejectionError
	return errors.As(err, &re)
}
