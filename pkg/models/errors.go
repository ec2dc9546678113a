package models

import "errors"

// Sentinel errors shared by the models package's own invariant checks. The
// broader error taxonomy (StorageError, ValidationError, ...) lives in
// internal/coreerrors; these are the handful of checks pkg/models can raise
// on its own data, independent of any store.
var (
	ErrForkPointNotFound  = errors.New("models: fork point message id not found in parent branch")
	ErrDuplicateMessageID = errors.New("models: message id already present in branch")
	ErrInvalidConfig      = errors.New("models: context config missing required fields")
)
