package core

import (
	"errors"
)

var (
	// Binding preconditions.
	ErrSlotOutOfRange      = errors.New("slot index beyond category capacity")
	ErrInvalidCategory     = errors.New("unknown binding category")
	ErrCapacityExceeded    = errors.New("declared upper bound exceeds category capacity")
	ErrInvalidHandle       = errors.New("invalid resource handle")
	ErrStaleHandle         = errors.New("resource handle generation is stale")
	ErrIndexBufferRequired = errors.New("indexed draw without an index buffer bound")

	// Consumer lifecycle.
	ErrNoActivePipeline  = errors.New("no active pipeline")
	ErrForeignPipeline   = errors.New("pipeline belongs to another context")
	ErrPipelineDestroyed = errors.New("pipeline already destroyed")
	ErrNilPipeline       = errors.New("nil pipeline")

	// Sparse commitment.
	ErrMisalignedRange   = errors.New("range is not a multiple of the page size")
	ErrRangeOutOfBounds  = errors.New("range exceeds resource size")
	ErrSizeMismatch      = errors.New("resources differ in size or page size")
	ErrSparseUnsupported = errors.New("sparse buffers are not supported by the device")

	ErrInvalidCapabilities = errors.New("invalid capability table")
)
