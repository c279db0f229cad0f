package market

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrQuotaExceeded = errors.New("market feed quota exceeded")
	ErrUnauthorized  = errors.New("market feed rejected credentials")
	ErrMissingAPIKey = errors.New("market feed api key not configured")
)

// FetchError describes a failed feed request. Err is ErrQuotaExceeded or
// ErrUnauthorized when the upstream said so, otherwise the transport error
// if there was one.
type FetchError struct {
	Query      string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString("market feed request failed")
	if e.Query != "" {
		fmt.Fprintf(&b, " for %q", e.Query)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsQuota reports whether err means the caller should try again later.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func classify(query string, status int, message string) *FetchError {
	fe := &FetchError{Query: query, StatusCode: status, Message: message}

	lower := strings.ToLower(message)
	switch {
	case status == 429 || strings.Contains(lower, "limit") || strings.Contains(lower, "quota"):
		fe.Err = ErrQuotaExceeded
	case status == 401 || status == 403:
		fe.Err = ErrUnauthorized
	}

	return fe
}
