// Package forging computes delegate forging slots and round boundaries from
// the milestone schedule.
package forging

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
)

// BlockTimeLookup returns the timestamp of the block at the specified height.
type BlockTimeLookup func(height int64) (int64, error)

// ForgingInfo describes the slot a timestamp falls into.
type ForgingInfo struct {
	CurrentForger  int   `json:"currentForger"`
	NextForger     int   `json:"nextForger"`
	BlockTimestamp int64 `json:"blockTimestamp"`
	CanForge       bool  `json:"canForge"`
}

// SlotInfo describes a single forging slot.
type SlotInfo struct {
	StartTime  int64 `json:"startTime"`
	EndTime    int64 `json:"endTime"`
	BlockTime  int64 `json:"blockTime"`
	SlotNumber int64 `json:"slotNumber"`
	CanForge   bool  `json:"canForge"`
}

// IdealTimeline returns a lookup that assumes no slot was ever missed, so
// block 1 is at timestamp 0 and every following block is one blocktime
// after its parent.
func IdealTimeline(sch *milestones.Schedule) BlockTimeLookup {
	return func(height int64) (int64, error) {
		if height < 1 {
			return 0, fmt.Errorf("no block at height %d", height)
		}

		var ts int64
		changes := sch.BlockTimeChanges()
		for i, ms := range changes {
			end := height
			if i+1 < len(changes) && changes[i+1].Height <= height {
				end = changes[i+1].Height
			}
			if ms.Height >= end {
				break
			}
			ts += (end - ms.Height) * ms.BlockTime
		}

		return ts, nil
	}
}

// CalculateForgingInfo returns the current and next forger indexes and the
// slot timestamp for the specified timestamp and height. When activeDelegates
// is zero the value of the milestone at height is used.
func CalculateForgingInfo(timestamp int64, height int64, activeDelegates int, sch *milestones.Schedule, lookup BlockTimeLookup) (ForgingInfo, error) {
	if activeDelegates <= 0 {
		activeDelegates = sch.At(height).ActiveDelegates
	}

	slot, err := GetSlotInfo(timestamp, height, sch, lookup)
	if err != nil {
		return ForgingInfo{}, err
	}

	current, err := forgerIndex(height, slot.SlotNumber, activeDelegates, sch, lookup)
	if err != nil {
		return ForgingInfo{}, err
	}

	fi := ForgingInfo{
		CurrentForger:  current,
		NextForger:     (current + 1) % activeDelegates,
		BlockTimestamp: slot.StartTime,
		CanForge:       slot.CanForge,
	}

	return fi, nil
}

// GetSlotInfo walks every blocktime change reached by height and returns the
// slot the timestamp falls into.
func GetSlotInfo(timestamp int64, height int64, sch *milestones.Schedule, lookup BlockTimeLookup) (SlotInfo, error) {
	if height < 1 {
		height = 1
	}

	changes := sch.BlockTimeChanges()

	var totalSlots int64
	var lastSpanEnd int64
	prevHeight := changes[0].Height
	blockTime := changes[0].BlockTime

	for i := 1; i < len(changes); i++ {
		next := changes[i]
		if height < next.Height {
			break
		}

		spanStart, err := lookup(prevHeight)
		if err != nil {
			return SlotInfo{}, fmt.Errorf("lookup height %d: %w", prevHeight, err)
		}

		lastBlock, err := lookup(next.Height - 1)
		if err != nil {
			return SlotInfo{}, fmt.Errorf("lookup height %d: %w", next.Height-1, err)
		}

		lastSpanEnd = lastBlock + blockTime
		totalSlots += floorDiv(lastSpanEnd-spanStart, blockTime)

		prevHeight = next.Height
		blockTime = next.BlockTime
	}

	inSpan := floorDiv(timestamp-lastSpanEnd, blockTime)
	start := lastSpanEnd + inSpan*blockTime

	si := SlotInfo{
		StartTime:  start,
		EndTime:    start + blockTime - 1,
		BlockTime:  blockTime,
		SlotNumber: totalSlots + inSpan,
		CanForge:   timestamp < start+blockTime/2,
	}

	return si, nil
}

// SlotNumber returns the slot number of the timestamp at height.
func SlotNumber(timestamp int64, height int64, sch *milestones.Schedule, lookup BlockTimeLookup) (int64, error) {
	si, err := GetSlotInfo(timestamp, height, sch, lookup)
	if err != nil {
		return 0, err
	}
	return si.SlotNumber, nil
}

// IsForgingAllowed reports if more than half of the slot is left.
func IsForgingAllowed(timestamp int64, height int64, sch *milestones.Schedule, lookup BlockTimeLookup) (bool, error) {
	si, err := GetSlotInfo(timestamp, height, sch, lookup)
	if err != nil {
		return false, err
	}
	return si.CanForge, nil
}

// =============================================================================

// forgerIndex offsets the slot number by the first slot of the active
// delegate span that height falls into.
func forgerIndex(height int64, slotNumber int64, activeDelegates int, sch *milestones.Schedule, lookup BlockTimeLookup) (int, error) {
	if activeDelegates <= 0 {
		return 0, errors.New("active delegates must be positive")
	}

	var lastSpanSlot int64
	changes := sch.ActiveDelegateChanges()
	for i := 1; i < len(changes); i++ {
		next := changes[i]
		if height < next.Height {
			break
		}

		ts, err := lookup(next.Height - 1)
		if err != nil {
			return 0, fmt.Errorf("lookup height %d: %w", next.Height-1, err)
		}

		si, err := GetSlotInfo(ts, next.Height-1, sch, lookup)
		if err != nil {
			return 0, err
		}
		lastSpanSlot = si.SlotNumber + 1
	}

	idx := (slotNumber - lastSpanSlot) % int64(activeDelegates)
	if idx < 0 {
		idx += int64(activeDelegates)
	}

	return int(idx), nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
