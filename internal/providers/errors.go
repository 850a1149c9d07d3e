// Package providers adapts concrete LLM SDKs to the pkg/kernel/model.Model
// boundary (C1). Grounded on the teacher's internal/agent/providers
// package: the provider-per-file layout, BaseProvider retry helper, and
// FailoverReason error classification survive; the streaming/SSE
// machinery does not, since model.Model.Invoke is a single-shot call.
package providers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// classify maps a raw SDK error onto a model.ErrorKind and a retry hint,
// the way the teacher's errors.go maps HTTP status codes onto a
// FailoverReason.
func classify(provider string, err error) *model.Error {
	if err == nil {
		return nil
	}
	var apiErr interface{ StatusCode() int }
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode()
	} else {
		status = sniffStatus(err)
	}

	kind := model.ErrorKindProvider
	retryable := false
	switch {
	case status == http.StatusTooManyRequests:
		kind, retryable = model.ErrorKindRateLimit, true
	case status == http.StatusRequestTimeout:
		kind, retryable = model.ErrorKindTransport, true
	case status >= 500 && status < 600:
		kind, retryable = model.ErrorKindTransport, true
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind, retryable = model.ErrorKindInvalid, false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind, retryable = model.ErrorKindInvalid, false
	case status == 0:
		kind, retryable = model.ErrorKindTransport, true
	}

	return &model.Error{Kind: kind, Retryable: retryable, Provider: provider, Cause: err}
}

// sniffStatus best-effort extracts an HTTP status code embedded in an
// error message, for SDK error types that don't expose one directly.
func sniffStatus(err error) int {
	msg := err.Error()
	for _, code := range []int{429, 408, 500, 502, 503, 504, 400, 401, 403} {
		if strings.Contains(msg, itoa(code)) {
			return code
		}
	}
	return 0
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
