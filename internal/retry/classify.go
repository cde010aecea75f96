package retry

import (
	"context"
	"errors"
	"io"
	"net"

	"connectrpc.com/connect"
)

// StatusCoder is implemented by transport errors that carry an HTTP status
// code (see api.Error).
type StatusCoder interface {
	StatusCode() int
}

var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Retryable reports whether err is worth retrying. Transport and timeout
// failures and HTTP 408/429/5xx-equivalents are retryable; client errors
// (4xx other than 408/429) are terminal. Unknown errors are terminal so
// unexpected failures are never masked as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatus[sc.StatusCode()]
	}

	var ce *connect.Error
	if errors.As(err, &ce) {
		switch ce.Code() {
		case connect.CodeUnavailable,
			connect.CodeDeadlineExceeded,
			connect.CodeResourceExhausted,
			connect.CodeInternal:
			return true
		default:
			return false
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return false
}
