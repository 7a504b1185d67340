package pool

import "errors"

// Error taxonomy for the pool layer, per the spec's error table: each is
// a distinct sentinel, wrapped with %w and matched with errors.Is.
var (
	// ErrPoolLocked is returned by Open when another process already
	// holds the pool's lock file.
	ErrPoolLocked = errors.New("pool: locked by another process")
	// ErrPoolOpen is returned when metadata is missing or malformed.
	ErrPoolOpen = errors.New("pool: open failed")
	// ErrIndexError is the pool-level counterpart Open returns in place
	// of indexfile.ErrIndexError: a sibling .idx file has the wrong magic
	// or version.
	ErrIndexError = errors.New("pool: index error")
	// ErrIndexStale is the pool-level counterpart Open returns in place
	// of indexfile.ErrIndexStale: a sibling .idx file's recorded
	// file_size does not match the .data file's actual size.
	ErrIndexStale = errors.New("pool: stale index")
	// ErrMissingChunk is returned by Find when no file's index has the
	// requested OID.
	ErrMissingChunk = errors.New("pool: chunk not found")
	// ErrReadOnlyPool is returned by Insert on a pool opened read-only.
	ErrReadOnlyPool = errors.New("pool: insert into read-only pool")
	// ErrFilePositionMismatch indicates the write-size bookkeeping
	// diverged from the actual file position: fatal, indicates
	// corruption, never automatically retried.
	ErrFilePositionMismatch = errors.New("pool: file position mismatch")
	// ErrInvalidLimit is returned by Create when limit falls outside
	// [LimitLowerBound, LimitUpperBound).
	ErrInvalidLimit = errors.New("pool: limit out of range")
	// ErrNotEmpty is returned by Create when the target directory
	// already has contents.
	ErrNotEmpty = errors.New("pool: directory not empty")
)
