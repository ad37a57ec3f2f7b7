package service

import "errors"

var (
	ErrSnapshotNotFound       = errors.New("snapshot not found")
	ErrInvalidFilter          = errors.New("invalid filter")
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
	ErrNodeNotFound           = errors.New("node not found")
	ErrLiveClusterUnavailable = errors.New("live cluster unavailable")
	ErrGraphTooLarge          = errors.New("graph too large")
)
