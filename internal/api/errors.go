package api

import "fmt"

// Error is a non-2xx response from the matchmaking API. It implements
// retry.StatusCoder so the executor can classify it.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status carried by the error.
func (e *Error) StatusCode() int { return e.Status }
