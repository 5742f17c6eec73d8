package vectorstore

import "errors"

// Sentinel errors shared by the storage and retrieval layers.
//
// Callers wrap these with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// ErrConfiguration means the backend is disabled or misconfigured.
	// Fatal at connect time.
	ErrConfiguration = errors.New("vector database misconfigured")

	// ErrInvalidArgument means a required parameter was missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNamespaceNotFound means the namespace does not exist.
	// Whether this is an error or an expected empty result is decided by the caller.
	ErrNamespaceNotFound = errors.New("namespace by that name does not exist")

	// ErrCollectionExists is returned when creating a collection that is already present.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrDimensionMismatch means a record's vector length differs from the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
