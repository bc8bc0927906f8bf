// Package milestones maintains the height indexed protocol parameters of
// the chain.
package milestones

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// Milestone is a set of protocol parameters effective from Height onward.
type Milestone struct {
	Height            int64    `json:"height"`
	BlockTime         int64    `json:"blocktime"`
	ActiveDelegates   int      `json:"activeDelegates"`
	Reward            *big.Int `json:"reward,omitempty"`
	MultiPaymentLimit int      `json:"multiPaymentLimit,omitempty"`
	AIP11             bool     `json:"aip11"`
	HtlcEnabled       bool     `json:"htlcEnabled"`
	MagistrateEnabled bool     `json:"magistrateEnabled"`
	AIP36             bool     `json:"aip36"`
}

// Schedule is an immutable, height ordered list of milestones.
type Schedule struct {
	milestones []Milestone
}

// New constructs a schedule from the provided milestones. Numeric values
// left at zero inherit the value of the previous milestone.
func New(ms ...Milestone) (*Schedule, error) {
	if len(ms) == 0 {
		return nil, errors.New("at least one milestone is required")
	}

	sorted := make([]Milestone, len(ms))
	copy(sorted, ms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Height < sorted[j].Height
	})

	if sorted[0].Height != 1 {
		return nil, fmt.Errorf("first milestone must start at height 1, got %d", sorted[0].Height)
	}

	for i := range sorted {
		if i > 0 {
			if sorted[i].Height == sorted[i-1].Height {
				return nil, fmt.Errorf("duplicate milestone at height %d", sorted[i].Height)
			}
			inherit(&sorted[i], sorted[i-1])
		}

		if sorted[i].Reward == nil {
			sorted[i].Reward = new(big.Int)
		}
	}

	if sorted[0].BlockTime <= 0 {
		return nil, errors.New("first milestone must define a positive blocktime")
	}
	if sorted[0].ActiveDelegates <= 0 {
		return nil, errors.New("first milestone must define a positive number of active delegates")
	}

	return &Schedule{milestones: sorted}, nil
}

// MustNew is New for static schedules known to be valid.
func MustNew(ms ...Milestone) *Schedule {
	s, err := New(ms...)
	if err != nil {
		panic(err)
	}
	return s
}

// At returns the milestone in effect at the specified height.
func (s *Schedule) At(height int64) Milestone {
	idx := sort.Search(len(s.milestones), func(i int) bool {
		return s.milestones[i].Height > height
	})
	if idx == 0 {
		return s.milestones[0]
	}
	return s.milestones[idx-1]
}

// All returns a copy of the resolved milestones.
func (s *Schedule) All() []Milestone {
	return append([]Milestone(nil), s.milestones...)
}

// BlockTimeChanges returns the first milestone and every milestone that
// changes the block time.
func (s *Schedule) BlockTimeChanges() []Milestone {
	return s.changes(func(prev, cur Milestone) bool {
		return prev.BlockTime != cur.BlockTime
	})
}

// ActiveDelegateChanges returns the first milestone and every milestone
// that changes the number of active delegates.
func (s *Schedule) ActiveDelegateChanges() []Milestone {
	return s.changes(func(prev, cur Milestone) bool {
		return prev.ActiveDelegates != cur.ActiveDelegates
	})
}

// MarshalJSON implements the json.Marshaler interface.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.milestones)
}

// UnmarshalJSON implements the json.Unmarshaler interface. Flags not set on
// a milestone keep the value of the previous milestone.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var raw []struct {
		Milestone
		AIP11             *bool `json:"aip11"`
		HtlcEnabled       *bool `json:"htlcEnabled"`
		MagistrateEnabled *bool `json:"magistrateEnabled"`
		AIP36             *bool `json:"aip36"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].Height < raw[j].Height
	})

	ms := make([]Milestone, len(raw))
	for i, r := range raw {
		ms[i] = r.Milestone
		if i > 0 {
			ms[i].AIP11 = ms[i-1].AIP11
			ms[i].HtlcEnabled = ms[i-1].HtlcEnabled
			ms[i].MagistrateEnabled = ms[i-1].MagistrateEnabled
			ms[i].AIP36 = ms[i-1].AIP36
		}
		if r.AIP11 != nil {
			ms[i].AIP11 = *r.AIP11
		}
		if r.HtlcEnabled != nil {
			ms[i].HtlcEnabled = *r.HtlcEnabled
		}
		if r.MagistrateEnabled != nil {
			ms[i].MagistrateEnabled = *r.MagistrateEnabled
		}
		if r.AIP36 != nil {
			ms[i].AIP36 = *r.AIP36
		}
	}

	sch, err := New(ms...)
	if err != nil {
		return err
	}

	*s = *sch
	return nil
}

// =============================================================================

func (s *Schedule) changes(changed func(prev, cur Milestone) bool) []Milestone {
	out := []Milestone{s.milestones[0]}
	for i := 1; i < len(s.milestones); i++ {
		if changed(s.milestones[i-1], s.milestones[i]) {
			out = append(out, s.milestones[i])
		}
	}
	return out
}

func inherit(m *Milestone, prev Milestone) {
	if m.BlockTime == 0 {
		m.BlockTime = prev.BlockTime
	}
	if m.ActiveDelegates == 0 {
		m.ActiveDelegates = prev.ActiveDelegates
	}
	if m.Reward == nil {
		m.Reward = new(big.Int).Set(prev.Reward)
	}
	if m.MultiPaymentLimit == 0 {
		m.MultiPaymentLimit = prev.MultiPaymentLimit
	}
}
