package repository

import "errors"

var (
	ErrInterviewNotFound    = errors.New("interview not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrApplicationExists    = errors.New("application already exists")
	ErrCandidateNotFound    = errors.New("candidate not found")
	ErrCandidateExists      = errors.New("candidate already exists")
	ErrJobNotFound          = errors.New("job not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrStatusConflict means the row was not in one of the expected statuses.
	ErrStatusConflict = errors.New("interview status changed concurrently")
)
