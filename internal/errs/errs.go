// Package errs sanitizes internal errors before they reach a caller,
// mirroring the teacher's pkg/security.SanitizeError but keyed to the
// ErrorKind taxonomy of the document QA pipeline instead of a generic HTTP
// error-code set.
package errs

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/docuqa-dev/docuqa/pkg/docuqa"
)

// New builds a ResponseError, logging the full underlying error
// server-side and keeping only a sanitized message for the caller.
func New(kind docuqa.ErrorKind, userMessage string, cause error) *docuqa.ResponseError {
	if cause != nil {
		log.Printf("error kind=%s: %v", kind, sanitizeLogMessage(cause.Error()))
	}
	return &docuqa.ResponseError{Kind: kind, Message: userMessage}
}

// Internal wraps an unexpected error as the catch-all kind, sanitizing its
// message in case debug detail is ever surfaced.
func Internal(cause error) *docuqa.ResponseError {
	return New(docuqa.ErrInternal, "An internal error occurred while answering your question.", cause)
}

// sanitizeLogMessage strips obvious secrets from a message before New
// writes it to the server-side log. Stack traces and file paths are
// left in server-side logs deliberately; only client-facing messages go
// through the heavier sanitizeErrorMessage path below.
func sanitizeLogMessage(msg string) string {
	return removeSecretPatterns(msg)
}

// sanitizeErrorMessage is the heavier client-facing sanitizer: strips
// paths, addresses, secrets, and stack traces. Not currently called on the
// happy path (ResponseError.Message is always an authored string, never a
// raw error), but kept available for any code path that must surface a
// wrapped error's text to a caller.
func sanitizeErrorMessage(msg string) string {
	msg = removeFilePaths(msg)
	msg = removeSecretPatterns(msg)
	msg = removeStackTraces(msg)
	return msg
}

func removeFilePaths(msg string) string {
	for _, p := range []string{"/home/", "/var/", "/etc/", "/opt/", "/tmp/", "/Users/"} {
		msg = strings.ReplaceAll(msg, p, "[PATH]/")
	}
	return msg
}

func removeSecretPatterns(msg string) string {
	for _, prefix := range []string{"sk-", "Bearer ", "api_key=", "token="} {
		idx := strings.Index(msg, prefix)
		if idx == -1 {
			continue
		}
		end := idx + len(prefix) + 24
		if end > len(msg) {
			end = len(msg)
		}
		msg = msg[:idx] + "[REDACTED]" + msg[end:]
	}
	return msg
}

var (
	goroutinePattern = regexp.MustCompile(`goroutine \d+ \[[^\]]+\]:[\s\S]*?(?:\n\n|\z)`)
	fileLinePattern  = regexp.MustCompile(`\S+\.go:\d+`)
)

func removeStackTraces(msg string) string {
	msg = goroutinePattern.ReplaceAllString(msg, "[STACK_TRACE_REMOVED]")
	msg = fileLinePattern.ReplaceAllString(msg, "[FILE:LINE]")
	return msg
}

// AsFmt is a small convenience so callers can build a cause inline:
// errs.New(docuqa.ErrInternal, "...", errs.AsFmt("index lookup: %w", err)).
func AsFmt(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
