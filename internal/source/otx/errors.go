package otx

import "fmt"

// StatusError is a non-200 answer from the API. Kind is one of the domain
// sentinels and is what errors.Is matches against.
type StatusError struct {
	StatusCode int
	Body       string
	Kind       error
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Kind
}
