package service

import "errors"

var (
	// ErrContention means the commit kept conflicting with other writers
	// after the bounded retry budget. Safe to retry from the top.
	ErrContention = errors.New("commit contention, try again")

	// ErrQuotaExhausted means the user has no refreshes left today. Never
	// silently downgraded to a restore.
	ErrQuotaExhausted = errors.New("refresh quota exhausted")

	// ErrChoiceRequired is returned when a toggle lands on a withdrawn like:
	// the engine does not silently reactivate, the caller must pick restore
	// or refresh.
	ErrChoiceRequired = errors.New("reactivation requires an explicit restore or refresh")

	// ErrValidation covers operations on labels or events that do not exist
	// in the state the operation assumes.
	ErrValidation = errors.New("validation failed")
)
