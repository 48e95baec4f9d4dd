package sparse

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/headless"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

const page = metadata.DefaultSparsePageSize

func newDevice() *headless.Backend {
	return headless.New(metadata.DefaultCapabilities())
}

func newBuffer(t *testing.T, index uint32, pages uint64) *Buffer {
	t.Helper()
	b, err := NewBuffer(core.NewHandle(index, 1), pages*page, page)
	require.NoError(t, err)
	return b
}

func commitCalls(dev *headless.Backend) []headless.Call {
	var out []headless.Call
	for _, c := range dev.Calls() {
		if c.Op == headless.OpCommitPages {
			out = append(out, c)
		}
	}
	return out
}

func TestCommitmentPageScenario(t *testing.T) {
	dev := newDevice()
	src := newBuffer(t, 1, 3)

	require.NoError(t, src.SetCommitment(dev, 0, page, true))
	require.NoError(t, src.SetCommitment(dev, 2*page, page, true))
	calls := commitCalls(dev)
	require.Len(t, calls, 2)
	assert.Equal(t, uint64(0), calls[0].Offset)
	assert.Equal(t, page, calls[0].Size)
	assert.Equal(t, 2*page, calls[1].Offset)
	assert.Equal(t, page, calls[1].Size)
	assert.Equal(t, uint64(131072), src.Commitment().Committed())

	dev.Reset()
	require.NoError(t, src.SetCommitment(dev, page, page, true))
	require.Len(t, commitCalls(dev), 1)
	assert.Equal(t, uint64(196608), src.Commitment().Committed())

	dev.Reset()
	dst := newBuffer(t, 2, 3)
	require.NoError(t, CopyCommitment(dev, dst, src))
	calls = commitCalls(dev)
	require.Len(t, calls, 1)
	assert.Equal(t, dst.Handle(), calls[0].Handle)
	assert.Equal(t, uint64(0), calls[0].Offset)
	assert.Equal(t, 3*page, calls[0].Size)
	assert.True(t, calls[0].Commit)
	assert.Equal(t, uint64(196608), dst.Commitment().Committed())
}

func TestCommitIdempotence(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 8)

	require.NoError(t, b.SetCommitment(dev, 2*page, 3*page, true))
	dev.Reset()
	require.NoError(t, b.SetCommitment(dev, 2*page, 3*page, true))
	require.NoError(t, b.SetCommitment(dev, 3*page, page, true))
	require.NoError(t, b.SetCommitment(dev, 6*page, 2*page, false))
	assert.Empty(t, dev.Calls())
}

func TestPartialFlipIssuesRequestedRange(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 8)

	require.NoError(t, b.SetCommitment(dev, page, page, true))
	dev.Reset()
	require.NoError(t, b.SetCommitment(dev, 0, 4*page, true))
	calls := commitCalls(dev)
	require.Len(t, calls, 1)
	assert.Equal(t, uint64(0), calls[0].Offset)
	assert.Equal(t, 4*page, calls[0].Size)
	assert.Equal(t, 4*page, b.Commitment().Committed())

	dev.Reset()
	require.NoError(t, b.SetCommitment(dev, 3*page, 2*page, false))
	calls = commitCalls(dev)
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Commit)
	assert.Equal(t, 3*page, b.Commitment().Committed())
}

func TestSetCommitmentPreconditions(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 4)

	tests := []struct {
		name   string
		offset uint64
		size   uint64
		err    error
	}{
		{"misaligned offset", 100, page, core.ErrMisalignedRange},
		{"misaligned size", 0, page + 1, core.ErrMisalignedRange},
		{"past the end", 4 * page, page, core.ErrRangeOutOfBounds},
		{"straddles the end", 3 * page, 2 * page, core.ErrRangeOutOfBounds},
		{"offset beyond size", 8 * page, 0, core.ErrRangeOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.SetCommitment(dev, tt.offset, tt.size, true)
			assert.ErrorIs(t, err, tt.err)
			assert.Zero(t, b.Commitment().Committed())
			assert.Empty(t, dev.Calls())
		})
	}

	require.NoError(t, b.SetCommitment(dev, page, 0, true))
	assert.Empty(t, dev.Calls())
}

func TestNewBufferPreconditions(t *testing.T) {
	_, err := NewBuffer(core.NullHandle, page, page)
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
	_, err = NewBuffer(core.NewHandle(1, 1), page+512, page)
	assert.ErrorIs(t, err, core.ErrMisalignedRange)
	_, err = NewBuffer(core.NewHandle(1, 1), 3000, 3000)
	assert.ErrorIs(t, err, core.ErrMisalignedRange)
}

func TestDeviceErrorLeavesMapUntouched(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 4)
	errBoom := errors.New("out of memory")
	dev.FailWith(func(headless.Call) error { return errBoom })

	err := b.SetCommitment(dev, 0, 2*page, true)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, b.Commitment().Committed())
	assert.False(t, b.Commitment().IsCommitted(0))
}

func TestPropertyCommitmentConservation(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	dev := newDevice()
	for round := 0; round < 50; round++ {
		pages := uint64(1 + r.Intn(100))
		b := newBuffer(t, 1, pages)
		for step := 0; step < 100; step++ {
			first := uint64(r.Intn(int(pages)))
			n := uint64(r.Intn(int(pages - first + 1)))
			commit := r.Intn(2) == 0

			before := b.Commitment().Committed()
			flips := 0
			for p := first; p < first+n; p++ {
				if b.Commitment().IsCommitted(int(p)) != commit {
					flips++
				}
			}
			dev.Reset()
			require.NoError(t, b.SetCommitment(dev, first*page, n*page, commit))

			m := b.Commitment()
			set := 0
			for p := 0; p < m.PageCount(); p++ {
				if m.IsCommitted(p) {
					set++
				}
			}
			require.Equal(t, uint64(set)*page, m.Committed())
			if flips == 0 {
				require.Empty(t, dev.Calls())
				require.Equal(t, before, m.Committed())
			} else {
				require.Len(t, dev.Calls(), 1)
			}
		}
	}
}

func TestCopyCommitmentDecommitsExtraRuns(t *testing.T) {
	dev := newDevice()
	src := newBuffer(t, 1, 6)
	dst := newBuffer(t, 2, 6)
	require.NoError(t, src.SetCommitment(dev, 0, 2*page, true))
	require.NoError(t, dst.SetCommitment(dev, 4*page, 2*page, true))
	dev.Reset()

	require.NoError(t, CopyCommitment(dev, dst, src))
	calls := commitCalls(dev)
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Commit)
	assert.Equal(t, 4*page, calls[0].Offset)
	assert.True(t, calls[1].Commit)
	assert.Equal(t, uint64(0), calls[1].Offset)
	assert.Equal(t, 2*page, calls[1].Size)
	assert.Equal(t, src.Commitment().Committed(), dst.Commitment().Committed())
	for p := 0; p < 6; p++ {
		assert.Equal(t, src.Commitment().IsCommitted(p), dst.Commitment().IsCommitted(p))
	}
}

func TestCopyRequiresMatchingBuffers(t *testing.T) {
	dev := newDevice()
	a := newBuffer(t, 1, 4)
	b := newBuffer(t, 2, 5)
	assert.ErrorIs(t, CopyCommitment(dev, a, b), core.ErrSizeMismatch)
	assert.ErrorIs(t, CopyContents(dev, a, b), core.ErrSizeMismatch)

	c, err := NewBuffer(core.NewHandle(3, 1), 4*page, page/2)
	require.NoError(t, err)
	assert.ErrorIs(t, CopyCommitment(dev, a, c), core.ErrSizeMismatch)
}

func TestCopyContentsSkipsUncommittedPages(t *testing.T) {
	dev := newDevice()
	src := newBuffer(t, 1, 8)
	dst := newBuffer(t, 2, 8)
	require.NoError(t, src.SetCommitment(dev, 0, 2*page, true))
	require.NoError(t, src.SetCommitment(dev, 5*page, page, true))
	require.NoError(t, CopyCommitment(dev, dst, src))
	dev.Reset()

	require.NoError(t, CopyContents(dev, dst, src))
	calls := dev.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, headless.OpCopyPages, c.Op)
		assert.Equal(t, dst.Handle(), c.Handle)
		assert.Equal(t, src.Handle(), c.Src)
	}
	assert.Equal(t, metadata.MemoryRange{Offset: 0, Size: 2 * page}, metadata.MemoryRange{Offset: calls[0].Offset, Size: calls[0].Size})
	assert.Equal(t, metadata.MemoryRange{Offset: 5 * page, Size: page}, metadata.MemoryRange{Offset: calls[1].Offset, Size: calls[1].Size})
}

func TestResizePreservesPrefix(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 6)
	require.NoError(t, b.SetCommitment(dev, page, 2*page, true))
	require.NoError(t, b.SetCommitment(dev, 4*page, 2*page, true))
	dev.Reset()

	grown, err := b.Resize(dev, core.NewHandle(2, 1), 8*page)
	require.NoError(t, err)
	assert.Equal(t, 8*page, grown.Size())
	assert.Equal(t, 4*page, grown.Commitment().Committed())
	assert.Equal(t, 2, dev.Count(headless.OpCopyPages))
	assert.Zero(t, b.Commitment().Committed())

	dev.Reset()
	shrunk, err := grown.Resize(dev, core.NewHandle(3, 1), 5*page)
	require.NoError(t, err)
	assert.Equal(t, 3*page, shrunk.Commitment().Committed())
	assert.True(t, shrunk.Commitment().IsCommitted(4))
	assert.False(t, shrunk.Commitment().IsCommitted(0))
	assert.Zero(t, grown.Commitment().Committed())
}

func TestMeteredDeviceCountsCalls(t *testing.T) {
	dev := newDevice()
	m := core.NewMetrics()
	metered := WithMetrics(dev, m)
	src := newBuffer(t, 1, 4)
	dst := newBuffer(t, 2, 4)

	require.NoError(t, src.SetCommitment(metered, 0, 4*page, true))
	require.NoError(t, CopyCommitment(metered, dst, src))
	require.NoError(t, CopyContents(metered, dst, src))
	assert.Equal(t, uint64(2), m.Current.CommitCalls)
	assert.Equal(t, uint64(1), m.Current.CopyCalls)
	assert.Same(t, dev, WithMetrics(dev, nil))
}

func TestCopyCommitmentFailureRecordsAppliedRuns(t *testing.T) {
	dev := newDevice()
	src := newBuffer(t, 1, 4)
	dst := newBuffer(t, 2, 4)
	require.NoError(t, src.SetCommitment(dev, 0, page, true))
	require.NoError(t, src.SetCommitment(dev, 2*page, page, true))

	errBoom := errors.New("boom")
	dev.FailWith(func(c headless.Call) error {
		if c.Op == headless.OpCommitPages && c.Handle == dst.Handle() && c.Offset == 2*page {
			return errBoom
		}
		return nil
	})
	require.ErrorIs(t, CopyCommitment(dev, dst, src), errBoom)

	// The first run reached the device and is recorded, the second is not.
	assert.True(t, dst.Commitment().IsCommitted(0))
	assert.False(t, dst.Commitment().IsCommitted(2))
	assert.Equal(t, page, dst.Commitment().Committed())

	dev.FailWith(nil)
	require.NoError(t, CopyCommitment(dev, dst, src))
	assert.Equal(t, src.Commitment().Committed(), dst.Commitment().Committed())
	assert.True(t, dst.Commitment().IsCommitted(2))
}

func TestCopyCommitmentFailedDecommitKeepsMapExact(t *testing.T) {
	dev := newDevice()
	src := newBuffer(t, 1, 4)
	dst := newBuffer(t, 2, 4)
	require.NoError(t, dst.SetCommitment(dev, page, page, true))
	require.NoError(t, dst.SetCommitment(dev, 3*page, page, true))

	errBoom := errors.New("boom")
	dev.FailWith(func(c headless.Call) error {
		if c.Op == headless.OpCommitPages && !c.Commit && c.Offset == 3*page {
			return errBoom
		}
		return nil
	})
	require.ErrorIs(t, CopyCommitment(dev, dst, src), errBoom)
	assert.False(t, dst.Commitment().IsCommitted(1))
	assert.True(t, dst.Commitment().IsCommitted(3))
	assert.Equal(t, page, dst.Commitment().Committed())

	// Page 1 is known to be released, so committing it again reaches the device.
	dev.FailWith(nil)
	dev.Reset()
	require.NoError(t, dst.SetCommitment(dev, page, page, true))
	assert.Len(t, commitCalls(dev), 1)
}

func TestResizeFailureReleasesReplacement(t *testing.T) {
	dev := newDevice()
	b := newBuffer(t, 1, 4)
	require.NoError(t, b.SetCommitment(dev, 0, 2*page, true))
	require.NoError(t, b.SetCommitment(dev, 3*page, page, true))
	dev.Reset()

	errBoom := errors.New("boom")
	dev.FailWith(func(c headless.Call) error {
		if c.Op == headless.OpCopyPages && c.Offset == 3*page {
			return errBoom
		}
		return nil
	})
	out, err := b.Resize(dev, core.NewHandle(2, 1), 6*page)
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, out)
	assert.Equal(t, 3*page, b.Commitment().Committed())

	var committed int
	for _, c := range commitCalls(dev) {
		require.Equal(t, core.NewHandle(2, 1), c.Handle)
		if c.Commit {
			committed += int(c.Size / page)
		} else {
			committed -= int(c.Size / page)
		}
	}
	assert.Zero(t, committed)
}
