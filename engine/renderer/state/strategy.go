package state

import (
	"github.com/spaghettifunk/statecache/engine/core"
	"github.com/spaghettifunk/statecache/engine/renderer/metadata"
)

// applyFunc issues the device calls for the slots [lo, hi] of one category.
// Each call that succeeds is stored in shadow before the next one is made,
// so a failure part way leaves shadow equal to what the device holds.
type applyFunc func(dev Device, c metadata.Category, pending []metadata.Binding, shadow *shadowTable, lo, hi int, forced bool, stats *core.FrameCounters) error

type applyStrategy struct {
	name  string
	apply applyFunc
}

// resolveStrategies turns the capability table into one strategy per
// category. It runs once per context; nothing else looks at the batch flags.
func resolveStrategies(caps metadata.Capabilities) [metadata.CategoryCount]applyStrategy {
	var table [metadata.CategoryCount]applyStrategy
	for c := range table {
		if caps.BatchBind[c] {
			table[c] = applyStrategy{name: "batched", apply: applyBatched}
		} else {
			table[c] = applyStrategy{name: "per-slot", apply: applyPerSlot}
		}
	}
	return table
}

// applyBatched issues a single call over the whole range, changed or not.
func applyBatched(dev Device, c metadata.Category, pending []metadata.Binding, shadow *shadowTable, lo, hi int, forced bool, stats *core.FrameCounters) error {
	if err := dev.BindBatch(c, lo, pending[lo:hi+1]); err != nil {
		return err
	}
	shadow.store(pending, lo, hi)
	stats.BatchBinds++
	return nil
}

// applyPerSlot issues one call per slot that differs from shadow, in
// increasing slot order. Forced ranges issue every slot.
func applyPerSlot(dev Device, c metadata.Category, pending []metadata.Binding, shadow *shadowTable, lo, hi int, forced bool, stats *core.FrameCounters) error {
	for slot := lo; slot <= hi; slot++ {
		if !forced && pending[slot] == shadow.bindings[slot] {
			stats.SkippedSlots++
			continue
		}
		if err := dev.BindSingle(c, slot, pending[slot]); err != nil {
			return err
		}
		shadow.store(pending, slot, slot)
		stats.SingleBinds++
	}
	return nil
}
