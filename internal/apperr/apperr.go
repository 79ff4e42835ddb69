// Package apperr classifies failures into the categories the operator sees:
// a short message plus suggested actions, with technical detail kept aside
// for logging. It replaces ad-hoc error strings at the component boundaries.
package apperr

import "fmt"

// Category identifies the kind of failure.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryFilesystem Category = "filesystem"
	CategoryValidation Category = "validation"
	CategoryScraping   Category = "scraping"
	CategoryDownload   Category = "download"
	CategoryUnexpected Category = "unexpected"
)

// Severity expresses how bad a failure is for the run as a whole.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is a categorized application error. Message is what the operator
// reads; Detail holds URLs, status codes and byte counts for diagnostics.
type Error struct {
	Message     string
	Category    Category
	Severity    Severity
	Recoverable bool
	Actions     []string
	Detail      string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network builds a network-category error with actions matching the status code.
func Network(message string, err error, url string, statusCode int) *Error {
	actions := []string{
		"Check your internet connection",
		"Try again in a few moments",
	}

	switch {
	case statusCode == 429:
		actions = []string{
			"Wait a few minutes before retrying",
			"Increase the request delay in the configuration",
		}
	case statusCode == 404:
		actions = []string{
			"The requested resource may no longer exist",
			"Check if the URL is correct",
		}
	case statusCode >= 500:
		actions = []string{
			"The server is experiencing issues",
			"Try again later",
		}
	}

	detail := ""
	if url != "" {
		detail = "URL: " + url
	}

	if statusCode > 0 {
		detail = fmt.Sprintf("Status: %d\n%s", statusCode, detail)
	}

	return &Error{
		Message:     message,
		Category:    CategoryNetwork,
		Severity:    SeverityError,
		Recoverable: true,
		Actions:     actions,
		Detail:      detail,
		Err:         err,
	}
}

// Filesystem builds a filesystem-category error.
func Filesystem(message string, err error, path string) *Error {
	return &Error{
		Message:     message,
		Category:    CategoryFilesystem,
		Severity:    SeverityError,
		Recoverable: true,
		Actions: []string{
			"Check that the destination directory is writable",
			"Check the available disk space",
		},
		Detail: "Path: " + path,
		Err:    err,
	}
}

// Scraping builds a scraping-category error. These never abort a run.
func Scraping(message string, err error, url string) *Error {
	return &Error{
		Message:     message,
		Category:    CategoryScraping,
		Severity:    SeverityWarning,
		Recoverable: true,
		Actions: []string{
			"The page layout may have changed",
			"Retry the affected letter later",
		},
		Detail: "URL: " + url,
		Err:    err,
	}
}

// Download builds a download-category error; retryable failures feed the
// queue backoff policy.
func Download(message string, err error, url string, bytesAtFailure int64) *Error {
	return &Error{
		Message:     message,
		Category:    CategoryDownload,
		Severity:    SeverityError,
		Recoverable: true,
		Actions: []string{
			"The task will be retried automatically",
			"If it keeps failing, retry it manually later",
		},
		Detail: fmt.Sprintf("URL: %s\nBytes at failure: %d", url, bytesAtFailure),
		Err:    err,
	}
}

// Validation builds a validation-category error (bad input, checksum mismatch).
func Validation(message string, err error) *Error {
	return &Error{
		Message:     message,
		Category:    CategoryValidation,
		Severity:    SeverityError,
		Recoverable: true,
		Actions: []string{
			"Verify the expected checksum is correct",
			"Retry the download",
		},
		Err: err,
	}
}

// Unexpected wraps a failure no other category explains.
func Unexpected(message string, err error) *Error {
	return &Error{
		Message:     message,
		Category:    CategoryUnexpected,
		Severity:    SeverityCritical,
		Recoverable: false,
		Actions:     []string{"Check the logs for details"},
		Err:         err,
	}
}
