package domain

import "errors"

var (
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrProviderFetch      = errors.New("provider fetch failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
	ErrTickInProgress     = errors.New("tick already in progress")
)
