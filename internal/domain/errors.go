package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNoSnapshot      = errors.New("no snapshot has been produced yet")
	ErrNoPlatforms     = errors.New("no platforms configured")
	ErrMalformedRecord = errors.New("malformed record")
	ErrPlatformOffline = errors.New("platform offline")
	ErrContextDone     = errors.New("context cancelled")
)
