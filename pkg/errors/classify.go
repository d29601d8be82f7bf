package errors

import (
	"net/http"
	"strings"
)

// Classify maps a raw failure to a category. Classification is a pure
// function of the error's status code and message: HTTP status takes
// precedence, then case-insensitive substring matching on the message.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if fe, ok := err.(*FeedError); ok && fe.StatusCode > 0 {
		if cat, ok := classifyStatus(fe.StatusCode); ok {
			return cat
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return CategoryRateLimit
	case containsAny(msg, "unauthorized", "invalid api key", "401"):
		return CategoryAuthentication
	case containsAny(msg, "forbidden", "access denied", "403"):
		return CategoryAuthorization
	case containsAny(msg, "500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"):
		return CategoryServerError
	case containsAny(msg, "timeout", "abort", "fetch", "network", "connection refused", "no such host"):
		return CategoryNetwork
	case containsAny(msg, "invalid json", "parse error", "malformed", "unexpected end of json"):
		return CategoryDataError
	case containsAny(msg, "database", "connection", "query"):
		return CategoryDatabase
	case containsAny(msg, "validation", "invalid", "required"):
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}

func classifyStatus(code int) (Category, bool) {
	switch {
	case code == http.StatusTooManyRequests:
		return CategoryRateLimit, true
	case code == http.StatusUnauthorized:
		return CategoryAuthentication, true
	case code == http.StatusForbidden:
		return CategoryAuthorization, true
	case code >= 500:
		return CategoryServerError, true
	}
	return CategoryUnknown, false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
