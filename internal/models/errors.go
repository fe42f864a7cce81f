package models

import "errors"

// Error kinds shared by every component.
var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrBudgetExceeded   = errors.New("budget exceeded")
	ErrApprovalRejected = errors.New("approval rejected")
	ErrSynthesis        = errors.New("synthesis failed")
	ErrDiscoveryEmpty   = errors.New("no candidates discovered")
	ErrPersistence      = errors.New("persistence failed")
)
