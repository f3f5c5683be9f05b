package valuecache

import "errors"

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("valuecache: closed")

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("valuecache: empty key")
)
