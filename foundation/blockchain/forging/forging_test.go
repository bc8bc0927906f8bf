package forging_test

import (
	"fmt"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/forging"
	"github.com/ardanlabs/dposledger/foundation/blockchain/milestones"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type forgingCase struct {
	height    int64
	timestamp int64
	current   int
	next      int
	blockTS   int64
	canForge  bool
}

func lookupFrom(m map[int64]int64) forging.BlockTimeLookup {
	return func(height int64) (int64, error) {
		ts, exists := m[height]
		if !exists {
			return 0, fmt.Errorf("height %d not expected", height)
		}
		return ts, nil
	}
}

func Test_ForgingInfo(t *testing.T) {
	type table struct {
		name   string
		sch    *milestones.Schedule
		lookup forging.BlockTimeLookup
		cases  []forgingCase
	}

	tt := []table{
		{
			name:   "fixed",
			sch:    milestones.MustNew(milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4}),
			lookup: lookupFrom(map[int64]int64{1: 0}),
			cases: []forgingCase{
				{1, 0, 0, 1, 0, true},
				{1, 7, 0, 1, 0, false},
				{2, 8, 1, 2, 8, true},
				{2, 15, 1, 2, 8, false},
				{4, 24, 3, 0, 24, true},
				{9, 64, 0, 1, 64, true},
			},
		},
		{
			name: "dynamic-blocktime",
			sch: milestones.MustNew(
				milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4},
				milestones.Milestone{Height: 2, BlockTime: 4},
				milestones.Milestone{Height: 4, BlockTime: 3},
				milestones.Milestone{Height: 6, BlockTime: 4},
			),
			lookup: lookupFrom(map[int64]int64{1: 0, 2: 8, 3: 12, 4: 16, 5: 19}),
			cases: []forgingCase{
				{1, 0, 0, 1, 0, true},
				{2, 8, 1, 2, 8, true},
				{3, 12, 2, 3, 12, true},
				{4, 16, 3, 0, 16, true},
				{5, 19, 0, 1, 19, true},
				{6, 22, 1, 2, 22, true},
				{7, 26, 2, 3, 26, true},
				{8, 30, 3, 0, 30, true},
				{4, 18, 3, 0, 16, false},
				{8, 32, 3, 0, 30, false},
				{2, 12, 2, 3, 12, true},
				{2, 24, 1, 2, 24, true},
				{3, 16, 3, 0, 16, true},
				{6, 26, 2, 3, 26, true},
			},
		},
		{
			name: "dynamic-delegates",
			sch: milestones.MustNew(
				milestones.Milestone{Height: 1, BlockTime: 4, ActiveDelegates: 4},
				milestones.Milestone{Height: 4, BlockTime: 3},
				milestones.Milestone{Height: 5, BlockTime: 5, ActiveDelegates: 5},
			),
			lookup: lookupFrom(map[int64]int64{1: 0, 3: 8, 4: 12}),
			cases: []forgingCase{
				{1, 0, 0, 1, 0, true},
				{4, 12, 3, 0, 12, true},
				{5, 15, 0, 1, 15, true},
				{6, 20, 1, 2, 20, true},
				{8, 30, 3, 4, 30, true},
				{9, 35, 4, 0, 35, true},
				{10, 40, 0, 1, 40, true},
				{10, 44, 0, 1, 40, false},
				{4, 15, 0, 1, 15, true},
				{4, 18, 1, 2, 18, true},
				{5, 35, 4, 0, 35, true},
			},
		},
	}

	t.Log("Given the need to know which delegate forges at a given time.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling the %s schedule.", testID, tst.name)
				{
					for _, c := range tst.cases {
						ad := tst.sch.At(c.height).ActiveDelegates

						fi, err := forging.CalculateForgingInfo(c.timestamp, c.height, ad, tst.sch, tst.lookup)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to calculate (%d,%d): %v", failed, testID, c.timestamp, c.height, err)
						}

						exp := forging.ForgingInfo{CurrentForger: c.current, NextForger: c.next, BlockTimestamp: c.blockTS, CanForge: c.canForge}
						if fi != exp {
							t.Fatalf("\t%s\tTest %d:\tShould get the forging info for (%d,%d): got %+v, exp %+v", failed, testID, c.timestamp, c.height, fi, exp)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get the forging info for every case.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_MilestoneIndependence(t *testing.T) {
	t.Log("Given the need for later milestones to not change earlier slots.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a delegate change is added after the heights queried.", testID)
		{
			base := milestones.MustNew(milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4})
			later := milestones.MustNew(
				milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4},
				milestones.Milestone{Height: 9, ActiveDelegates: 6},
			)

			for h := int64(1); h < 9; h++ {
				ts := (h - 1) * 8
				a, err := forging.CalculateForgingInfo(ts, h, 4, base, forging.IdealTimeline(base))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould calculate against the base schedule: %v", failed, testID, err)
				}
				b, err := forging.CalculateForgingInfo(ts, h, 4, later, forging.IdealTimeline(later))
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould calculate against the later schedule: %v", failed, testID, err)
				}
				if a != b {
					t.Fatalf("\t%s\tTest %d:\tShould get the same result at height %d: %+v != %+v", failed, testID, h, a, b)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get the same results before the boundary.", success, testID)
		}
	}
}

func Test_IdealTimeline(t *testing.T) {
	t.Log("Given the need to derive block timestamps from the milestones.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen blocktimes change.", testID)
		{
			sch := milestones.MustNew(
				milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4},
				milestones.Milestone{Height: 2, BlockTime: 4},
				milestones.Milestone{Height: 4, BlockTime: 3},
				milestones.Milestone{Height: 6, BlockTime: 4},
			)
			lookup := forging.IdealTimeline(sch)

			exp := map[int64]int64{1: 0, 2: 8, 3: 12, 4: 16, 5: 19, 6: 22, 7: 26, 8: 30}
			for h, want := range exp {
				got, err := lookup(h)
				if err != nil || got != want {
					t.Fatalf("\t%s\tTest %d:\tShould get timestamp %d at height %d: got %d, %v", failed, testID, want, h, got, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get every timestamp.", success, testID)
		}
	}
}

func Test_Rounds(t *testing.T) {
	type table struct {
		name   string
		height int64
		exp    forging.RoundInfo
		isNew  bool
	}

	sch := milestones.MustNew(
		milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4},
		milestones.Milestone{Height: 9, ActiveDelegates: 6},
	)

	tt := []table{
		{name: "genesis", height: 1, exp: forging.RoundInfo{Round: 1, NextRound: 1, RoundHeight: 1, MaxDelegates: 4}, isNew: true},
		{name: "end-of-round", height: 4, exp: forging.RoundInfo{Round: 1, NextRound: 2, RoundHeight: 1, MaxDelegates: 4}},
		{name: "second-round", height: 5, exp: forging.RoundInfo{Round: 2, NextRound: 2, RoundHeight: 5, MaxDelegates: 4}, isNew: true},
		{name: "after-change", height: 9, exp: forging.RoundInfo{Round: 3, NextRound: 3, RoundHeight: 9, MaxDelegates: 6}, isNew: true},
		{name: "change-end", height: 14, exp: forging.RoundInfo{Round: 3, NextRound: 4, RoundHeight: 9, MaxDelegates: 6}},
		{name: "change-next", height: 15, exp: forging.RoundInfo{Round: 4, NextRound: 4, RoundHeight: 15, MaxDelegates: 6}, isNew: true},
	}

	t.Log("Given the need to locate heights inside rounds.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling height %d.", testID, tst.height)
				{
					ri, err := forging.CalculateRound(tst.height, sch)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to calculate the round: %v", failed, testID, err)
					}
					if ri != tst.exp {
						t.Fatalf("\t%s\tTest %d:\tShould get the round info: got %+v, exp %+v", failed, testID, ri, tst.exp)
					}
					t.Logf("\t%s\tTest %d:\tShould get the round info.", success, testID)

					if got := forging.IsNewRound(tst.height, sch); got != tst.isNew {
						t.Fatalf("\t%s\tTest %d:\tShould report new round %v: got %v", failed, testID, tst.isNew, got)
					}
					t.Logf("\t%s\tTest %d:\tShould report new round correctly.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}

		testID := len(tt)
		t.Logf("\tTest %d:\tWhen a milestone changes delegates mid round.", testID)
		{
			bad := milestones.MustNew(
				milestones.Milestone{Height: 1, BlockTime: 8, ActiveDelegates: 4},
				milestones.Milestone{Height: 7, ActiveDelegates: 6},
			)
			if _, err := forging.CalculateRound(10, bad); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject the milestone.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the milestone.", success, testID)
		}
	}
}
