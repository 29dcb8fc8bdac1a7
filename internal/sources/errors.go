package sources

import (
	"errors"
	"fmt"
)

// ConnectivityError reports a failed search request: either a non-200
// response (StatusCode and Body set) or a transport failure (Err set).
type ConnectivityError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search request failed: %v", e.Err)
	}
	return fmt.Sprintf("search returned status %d: %s", e.StatusCode, e.Body)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivityError checks if an error is a ConnectivityError.
func IsConnectivityError(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
