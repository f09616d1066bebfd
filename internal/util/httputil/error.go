package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody limits how much of a failed response body is kept in the error message.
const maxErrorBody = 4096

type Error struct {
	code    int
	message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("http error %v: %v", e.code, e.message)
}

func (e *Error) Code() int       { return e.code }
func (e *Error) Message() string { return e.message }

// Temporary reports whether the request may succeed if repeated later.
func (e *Error) Temporary() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func MakeError(code int, message string) error {
	return &Error{code: code, message: message}
}

func ErrorFromResponse(rsp *http.Response) error {
	if 200 <= rsp.StatusCode && rsp.StatusCode <= 299 {
		return nil
	}
	var b strings.Builder
	_, err := io.Copy(&b, io.LimitReader(rsp.Body, maxErrorBody))
	return errors.Join(MakeError(rsp.StatusCode, strings.TrimSpace(b.String())), err)
}

// IsTemporary reports whether err carries an HTTP status worth retrying. Errors without a status,
// such as transport failures, are considered temporary as well unless the context is done.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *Error
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
