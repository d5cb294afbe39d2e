package faceapi

import (
	"errors"
	"fmt"
)

// ServiceRequestError reports a call the face service rejected, or one that
// never reached it (StatusCode 0).
type ServiceRequestError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ServiceRequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("face service request failed: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("face service request failed with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("face service request failed with status %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the transport error, if any.
func (e *ServiceRequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CredentialError reports that no identity could be resolved for the
// managed identity auth mode.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	if e == nil || e.Err == nil {
		return "credential unavailable"
	}
	return fmt.Sprintf("credential unavailable: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TrainingFailedError is returned when a training job ends in failure.
type TrainingFailedError struct {
	GroupID string
	Message string
}

func (e *TrainingFailedError) Error() string {
	return fmt.Sprintf("training of group %s failed: %s", e.GroupID, e.Message)
}

// StatusCode extracts the HTTP status of a ServiceRequestError anywhere in
// err's chain.
func StatusCode(err error) (int, bool) {
	var reqErr *ServiceRequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode, true
	}
	return 0, false
}
