package sparse

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/containers"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// CommitmentMap tracks which pages of a sparse resource are physically
// backed. committed always equals the number of set pages times pageSize.
type CommitmentMap struct {
	pages     *containers.Bitset
	pageSize  uint64
	committed uint64
}

func NewCommitmentMap(size, pageSize uint64) (*CommitmentMap, error) {
	if !metadata.IsPowerOfTwo(pageSize) {
		return nil, fmt.Errorf("page size %d is not a power of two: %w", pageSize, core.ErrMisalignedRange)
	}
	if !metadata.IsAligned(size, pageSize) {
		return nil, fmt.Errorf("size %d with page size %d: %w", size, pageSize, core.ErrMisalignedRange)
	}
	return &CommitmentMap{
		pages:    containers.NewBitset(int(size / pageSize)),
		pageSize: pageSize,
	}, nil
}

func (m *CommitmentMap) PageSize() uint64 {
	return m.pageSize
}

func (m *CommitmentMap) PageCount() int {
	return m.pages.Len()
}

func (m *CommitmentMap) Size() uint64 {
	return uint64(m.pages.Len()) * m.pageSize
}

// Committed returns the number of committed bytes.
func (m *CommitmentMap) Committed() uint64 {
	return m.committed
}

func (m *CommitmentMap) IsCommitted(page int) bool {
	return m.pages.Test(page)
}

// Runs calls fn with the byte range of every maximal run of committed pages.
func (m *CommitmentMap) Runs(fn func(r metadata.MemoryRange) bool) {
	m.pages.Runs(true, func(first, last int) bool {
		return fn(m.byteRange(first, last))
	})
}

func (m *CommitmentMap) byteRange(first, last int) metadata.MemoryRange {
	return metadata.MemoryRange{
		Offset: uint64(first) * m.pageSize,
		Size:   uint64(last-first+1) * m.pageSize,
	}
}

// pageRange validates a byte range and converts it to inclusive page indices.
func (m *CommitmentMap) pageRange(offset, size uint64) (int, int, error) {
	if !metadata.IsAligned(offset, m.pageSize) || !metadata.IsAligned(size, m.pageSize) {
		return 0, 0, fmt.Errorf("offset %d size %d with page size %d: %w", offset, size, m.pageSize, core.ErrMisalignedRange)
	}
	if offset > m.Size() || size > m.Size()-offset {
		return 0, 0, fmt.Errorf("offset %d size %d in %d bytes: %w", offset, size, m.Size(), core.ErrRangeOutOfBounds)
	}
	first := int(offset / m.pageSize)
	last := int((offset+size)/m.pageSize) - 1
	return first, last, nil
}

// delta counts the pages in [first, last] whose state would flip.
func (m *CommitmentMap) delta(first, last int, commit bool) int {
	n := 0
	for page := first; page <= last; page++ {
		if m.pages.Test(page) != commit {
			n++
		}
	}
	return n
}

func (m *CommitmentMap) apply(first, last int, commit bool, flipped int) {
	m.pages.SetRange(first, last, commit)
	if commit {
		m.committed += uint64(flipped) * m.pageSize
	} else {
		m.committed -= uint64(flipped) * m.pageSize
	}
}
