package model

import (
	"fmt"
)

// ValidationError is a malformed or unrecognized input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
}

// ExtractionError reports a job that ended without a usable result.
type ExtractionError struct {
	JobID  string
	Status JobStatus
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extraction %s", e.Status)
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ConflictError reports a duplicate contract for a company/app pair.
type ConflictError struct {
	CompanyID string
	AppID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("contract already exists for company %s and app %s", e.CompanyID, e.AppID)
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// StorageError is an object storage failure after every fallback was tried.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed multi-step write. Compensation has already run
// when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
