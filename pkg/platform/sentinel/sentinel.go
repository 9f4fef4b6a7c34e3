package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and provider adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
// They describe the state of a resource, not a validation failure:
//   - ErrNotFound: record does not exist in the store
//   - ErrConflict: record with the same key already exists
//   - ErrInvalidState: record is in the wrong state for the requested transition
//   - ErrAlreadyUsed: one-shot resource (escrow handle) already consumed
//   - ErrExpired: resource outlived its validity window
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
)
