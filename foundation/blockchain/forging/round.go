package forging

import (
	"fmt"

	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
)

// RoundInfo locates a height inside the sequence of delegate rounds.
type RoundInfo struct {
	Round        int64 `json:"round"`
	NextRound    int64 `json:"nextRound"`
	RoundHeight  int64 `json:"roundHeight"`
	MaxDelegates int   `json:"maxDelegates"`
}

// CalculateRound returns the round the specified height belongs to. A
// milestone may only change the number of active delegates on the first
// height of a round.
func CalculateRound(height int64, sch *milestones.Schedule) (RoundInfo, error) {
	if height < 1 {
		height = 1
	}

	changes := sch.ActiveDelegateChanges()

	ri := RoundInfo{
		Round:        1,
		NextRound:    0,
		RoundHeight:  1,
		MaxDelegates: changes[0].ActiveDelegates,
	}

	milestoneHeight := changes[0].Height
	for i := 1; i < len(changes); i++ {
		next := changes[i]
		if height < next.Height {
			break
		}

		span := next.Height - milestoneHeight
		if span%int64(ri.MaxDelegates) != 0 {
			return RoundInfo{}, fmt.Errorf("Bad milestone at height: %d. The number of delegates can only be changed at the beginning of a new round.", next.Height)
		}

		ri.Round += span / int64(ri.MaxDelegates)
		ri.RoundHeight = next.Height
		ri.MaxDelegates = next.ActiveDelegates
		milestoneHeight = next.Height
	}

	fromLast := height - milestoneHeight
	ri.Round += fromLast / int64(ri.MaxDelegates)
	ri.RoundHeight += (fromLast / int64(ri.MaxDelegates)) * int64(ri.MaxDelegates)

	ri.NextRound = ri.Round
	if (fromLast+1)%int64(ri.MaxDelegates) == 0 {
		ri.NextRound = ri.Round + 1
	}

	return ri, nil
}

// IsNewRound reports if height is the first height of a round.
func IsNewRound(height int64, sch *milestones.Schedule) bool {
	if height == 1 {
		return true
	}

	ms := milestoneForRounds(height, sch)
	return (height-ms.Height)%int64(ms.ActiveDelegates) == 0
}

// milestoneForRounds returns the last active delegate change reached by
// height.
func milestoneForRounds(height int64, sch *milestones.Schedule) milestones.Milestone {
	changes := sch.ActiveDelegateChanges()
	ms := changes[0]
	for _, c := range changes[1:] {
		if height < c.Height {
			break
		}
		ms = c
	}
	return ms
}
