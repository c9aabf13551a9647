package eios

import "fmt"

// AuthError reports a failure to obtain a bearer credential. Fatal to the
// current cycle; the next scheduled run retries from scratch.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eios auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("eios auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a non-success response from the content service.
// Retrieval never retries these beyond the one reauth replay on 401.
type UpstreamError struct {
	Endpoint string
	Status   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("eios upstream %s: %s", e.Endpoint, e.Status)
}
