// Package failure defines the error kinds a generation run can end with.
// Messages stay free text; the types only let callers tell the kinds apart.
package failure

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing or unusable credential.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError reports a network-level failure reaching a generation endpoint.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseFormatError reports a reply that lacks the expected field.
type ResponseFormatError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ResponseFormatError) Error() string {
	msg := fmt.Sprintf("malformed response for %s", e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResponseFormatError) Unwrap() error { return e.Err }

// PublishError carries the reason the content repository gave for rejecting an item.
type PublishError struct {
	Reason string
	Err    error
}

func (e *PublishError) Error() string { return e.Reason }

func (e *PublishError) Unwrap() error { return e.Err }

// MediaStep names the media sub-step that failed.
type MediaStep string

const (
	StepDownload MediaStep = "download"
	StepUpload   MediaStep = "upload"
	StepAttach   MediaStep = "attach"
)

// MediaError reports a failed download, upload or featured-image assignment.
type MediaError struct {
	Step   MediaStep
	Reason string
	Err    error
}

func (e *MediaError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *MediaError) Unwrap() error { return e.Err }

// Media builds a MediaError for step.
func Media(step MediaStep, reason string, err error) *MediaError {
	return &MediaError{Step: step, Reason: reason, Err: err}
}

// MediaStepOf returns the step of a MediaError in err's chain.
func MediaStepOf(err error) (MediaStep, bool) {
	var me *MediaError
	if errors.As(err, &me) {
		return me.Step, true
	}
	return "", false
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsResponseFormat reports whether err is or wraps a ResponseFormatError.
func IsResponseFormat(err error) bool {
	var fe *ResponseFormatError
	return errors.As(err, &fe)
}

// IsConfig reports whether err is or wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
