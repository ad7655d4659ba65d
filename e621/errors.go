package e621

import "fmt"

// NetworkError is a transport level failure: connection, DNS, TLS, an
// unreadable body or an unexpected HTTP status.
type NetworkError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request to %s failed with status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("couldn't perform request to %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NotFoundError means the server answered but the pool or post doesn't exist.
type NotFoundError struct {
	What   string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not found: %s", e.What, e.Reason)
	}
	return e.What + " not found"
}

// MappingError means a payload didn't match the API contract.
type MappingError struct {
	Field string
	Msg   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("unexpected JSON for field %q: %s", e.Field, e.Msg)
}

// InvalidArgumentError is raised for bad caller input, before any request.
type InvalidArgumentError struct {
	Arg string
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Arg, e.Msg)
}
