package crm

import (
	"fmt"
	"strings"
)

// APIRequestError reports a failed CRM call: a transport failure, a non-2xx
// status, or a body declaring success=false.
type APIRequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIRequestError) Error() string {
	if e == nil {
		return ""
	}
	return "Pipedrive API error: " + e.Message
}

func (e *APIRequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatusCode exposes the upstream status, zero for transport failures.
func (e *APIRequestError) HTTPStatusCode() int {
	return e.StatusCode
}

// CommandError reports a command string or struct that cannot be executed.
type CommandError struct {
	Raw    string
	Reason string
}

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	if e.Raw == "" {
		return "unrecognized command: " + e.Reason
	}
	return fmt.Sprintf("unrecognized command %q: %s", e.Raw, e.Reason)
}

// redact removes the API token from text that may embed the request URL.
func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
