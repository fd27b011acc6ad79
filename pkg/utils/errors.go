package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrFetch            = errors.New("fetch failed")
	ErrExtract          = errors.New("link extraction failed")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrShutdown         = errors.New("engine is shut down")
	ErrConfigValidation = errors.New("configuration validation error")

	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrParsing          = errors.New("parsing error") // HTML or URL
	ErrPageTooLarge     = errors.New("page exceeds size limit")
	ErrCache            = errors.New("page cache error") // Wraps badger errors
	ErrFilesystem       = errors.New("filesystem error")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
)

// URLError attributes a failure to a single URL. Kind is one of the
// package sentinels (ErrFetch, ErrExtract, ErrInvalidURL, ErrShutdown).
type URLError struct {
	Kind error
	URL  string
	Err  error
}

func (e *URLError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *URLError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewURLError builds a URLError of the given kind.
func NewURLError(kind error, rawURL string, cause error) error {
	return &URLError{Kind: kind, URL: rawURL, Err: cause}
}

// NewFetchError reports a failed download. An error that is already a fetch
// error is returned unchanged.
func NewFetchError(rawURL string, cause error) error {
	if errors.Is(cause, ErrFetch) {
		return cause
	}
	return NewURLError(ErrFetch, rawURL, cause)
}

// NewExtractError reports a failed link extraction for a fetched document.
func NewExtractError(rawURL string, cause error) error {
	if errors.Is(cause, ErrExtract) {
		return cause
	}
	return NewURLError(ErrExtract, rawURL, cause)
}

// NewInvalidURLError reports a URL that could not be parsed or resolved to a host.
func NewInvalidURLError(rawURL string, cause error) error {
	if errors.Is(cause, ErrInvalidURL) {
		return cause
	}
	return NewURLError(ErrInvalidURL, rawURL, cause)
}

// WrapErrorf prefixes a formatted message with a sentinel so callers can match it with errors.Is.
func WrapErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CategorizeError maps an error to a predefined category string for logging/reports.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Per-URL errors are categorized by their cause when it is recognizable
	var urlErr *URLError
	if errors.As(err, &urlErr) {
		if urlErr.Err != nil {
			if cat := CategorizeError(urlErr.Err); cat != "Unknown" {
				return cat
			}
		}
		return kindCategory(urlErr.Kind)
	}

	switch {
	case errors.Is(err, ErrShutdown):
		return "Engine_Shutdown"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrRetryFailed):
		switch {
		case errors.Is(err, ErrServerHTTPError):
			return "RetryFailed_HTTPServer"
		case errors.Is(err, ErrClientHTTPError):
			return "RetryFailed_HTTPClient"
		}
		lowerErrMsg := strings.ToLower(err.Error())
		if strings.Contains(lowerErrMsg, "timeout") || strings.Contains(lowerErrMsg, "deadline exceeded") {
			return "RetryFailed_NetworkTimeout"
		}
		if strings.Contains(lowerErrMsg, "connection refused") {
			return "RetryFailed_ConnectionRefused"
		}
		if strings.Contains(lowerErrMsg, "no such host") {
			return "RetryFailed_DNSLookup"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		for _, code := range []string{"404", "403", "401", "429"} {
			if strings.Contains(errMsg, " "+code+" ") {
				return "HTTP_" + code
			}
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrPageTooLarge):
		return "Policy_PageSize"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrCache):
		return "Cache_Other"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrInvalidURL):
		return "Content_InvalidURL"
	case errors.Is(err, ErrFetch):
		return "Fetch_Other"
	case errors.Is(err, ErrExtract):
		return "Extract_Other"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

func kindCategory(kind error) string {
	switch {
	case errors.Is(kind, ErrFetch):
		return "Fetch_Other"
	case errors.Is(kind, ErrExtract):
		return "Extract_Other"
	case errors.Is(kind, ErrInvalidURL):
		return "Content_InvalidURL"
	case errors.Is(kind, ErrShutdown):
		return "Engine_Shutdown"
	}
	return "Unknown"
}
