package syncer

import "errors"

var (
	ErrProbeFailed     = errors.New("version probe failed")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrParseFailed     = errors.New("parse failed")
	ErrReconcileFailed = errors.New("cache reconcile failed")
	ErrMetadataFailed  = errors.New("metadata update failed")
	ErrUnknownFeed     = errors.New("unknown feed")
	ErrUnsupportedMode = errors.New("unsupported sync mode")
	ErrSyncInProgress  = errors.New("sync in progress")
)
