package sparse

import (
	"fmt"

	"github.com/spaghettifunk/statecache/engine/containers"
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/math"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// Buffer is a virtually backed buffer whose pages are committed on demand.
type Buffer struct {
	handle     core.Handle
	commitment *CommitmentMap
}

func NewBuffer(h core.Handle, size, pageSize uint64) (*Buffer, error) {
	if h.IsNull() {
		return nil, core.ErrInvalidHandle
	}
	m, err := NewCommitmentMap(size, pageSize)
	if err != nil {
		return nil, err
	}
	return &Buffer{handle: h, commitment: m}, nil
}

func (b *Buffer) Handle() core.Handle {
	return b.handle
}

func (b *Buffer) Size() uint64 {
	return b.commitment.Size()
}

func (b *Buffer) Commitment() *CommitmentMap {
	return b.commitment
}

// SetCommitment commits or decommits [offset, offset+size). Both must be
// page multiples; they are never rounded. When at least one page flips,
// exactly one device call spanning the requested range is issued.
func (b *Buffer) SetCommitment(dev Device, offset, size uint64, commit bool) error {
	m := b.commitment
	first, last, err := m.pageRange(offset, size)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	flipped := m.delta(first, last, commit)
	if flipped == 0 {
		return nil
	}
	if err := dev.CommitPages(b.handle, offset, size, commit); err != nil {
		return fmt.Errorf("%s: commit=%t [%d,%d): %w", b.handle, commit, offset, offset+size, err)
	}
	m.apply(first, last, commit, flipped)
	return nil
}

func checkCompatible(dst, src *Buffer) error {
	if dst.commitment.PageSize() != src.commitment.PageSize() || dst.Size() != src.Size() {
		return fmt.Errorf("%s (%d bytes, page %d) vs %s (%d bytes, page %d): %w",
			dst.handle, dst.Size(), dst.commitment.PageSize(),
			src.handle, src.Size(), src.commitment.PageSize(), core.ErrSizeMismatch)
	}
	return nil
}

// CopyCommitment makes dst committed exactly where src is: one commit call
// per maximal committed run of src, one decommit call per run committed only
// in dst. The content is not copied. Each call that succeeds is recorded in
// dst right away, so after an error dst still matches the device.
func CopyCommitment(dev Device, dst, src *Buffer) error {
	if err := checkCompatible(dst, src); err != nil {
		return err
	}
	m := dst.commitment

	extra := pageRuns(m.pages.AndNot(src.commitment.pages))
	for _, run := range extra {
		r := m.byteRange(run[0], run[1])
		if err := dev.CommitPages(dst.handle, r.Offset, r.Size, false); err != nil {
			return fmt.Errorf("%s: decommit: %w", dst.handle, err)
		}
		m.apply(run[0], run[1], false, run[1]-run[0]+1)
	}

	for _, run := range pageRuns(src.commitment.pages) {
		r := m.byteRange(run[0], run[1])
		flipped := m.delta(run[0], run[1], true)
		if err := dev.CommitPages(dst.handle, r.Offset, r.Size, true); err != nil {
			return fmt.Errorf("%s: commit: %w", dst.handle, err)
		}
		m.apply(run[0], run[1], true, flipped)
	}
	return nil
}

// CopyContents copies every committed run of src into dst. Uncommitted
// regions hold undefined content and are never read.
func CopyContents(dev Device, dst, src *Buffer) error {
	if err := checkCompatible(dst, src); err != nil {
		return err
	}
	var err error
	src.commitment.Runs(func(r metadata.MemoryRange) bool {
		err = dev.CopyPages(dst.handle, src.handle, r.Offset, r.Size)
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src.handle, dst.handle, err)
	}
	return nil
}

// Resize moves b into a replacement buffer of newSize backed by the freshly
// created resource h. The committed pages of the overlapping prefix are
// committed and copied into the replacement, then every page of b is
// released. The caller destroys b's resource afterwards. On error the pages
// committed in the replacement are released again, and b's map still
// records what the device holds.
func (b *Buffer) Resize(dev Device, h core.Handle, newSize uint64) (*Buffer, error) {
	out, err := NewBuffer(h, newSize, b.commitment.PageSize())
	if err != nil {
		return nil, err
	}

	overlap := math.Min(b.Size(), newSize)
	var runs []metadata.MemoryRange
	b.commitment.Runs(func(r metadata.MemoryRange) bool {
		if r.Offset >= overlap {
			return false
		}
		r.Size = math.Min(r.End(), overlap) - r.Offset
		runs = append(runs, r)
		return true
	})

	fail := func(err error) (*Buffer, error) {
		if rerr := out.Release(dev); rerr != nil {
			core.LogWarn("resize %s -> %s: release after failure: %s", b.handle, out.handle, rerr)
		}
		return nil, err
	}
	for _, r := range runs {
		if err := out.SetCommitment(dev, r.Offset, r.Size, true); err != nil {
			return fail(err)
		}
		if err := dev.CopyPages(out.handle, b.handle, r.Offset, r.Size); err != nil {
			return fail(fmt.Errorf("resize %s -> %s: %w", b.handle, out.handle, err))
		}
	}
	if err := b.Release(dev); err != nil {
		return fail(err)
	}
	return out, nil
}

// Release decommits every committed page of b, one call per run.
func (b *Buffer) Release(dev Device) error {
	var runs []metadata.MemoryRange
	b.commitment.Runs(func(r metadata.MemoryRange) bool {
		runs = append(runs, r)
		return true
	})
	for _, r := range runs {
		if err := b.SetCommitment(dev, r.Offset, r.Size, false); err != nil {
			return err
		}
	}
	return nil
}

// pageRuns lists the maximal runs of set pages as inclusive [first, last]
// pairs, so the set can change while they are applied.
func pageRuns(pages *containers.Bitset) [][2]int {
	var runs [][2]int
	pages.Runs(true, func(first, last int) bool {
		runs = append(runs, [2]int{first, last})
		return true
	})
	return runs
}
