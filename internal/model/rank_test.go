package model

import (
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestInsertRankBetweenNeighbors(t *testing.T) {
	Convey("Given two widely spaced ranks", t, func() {
		ranks := []int64{100, 200}

		Convey("inserting in the middle picks the midpoint", func() {
			rank, redistribute := InsertRank(ranks, 1)
			So(redistribute, ShouldBeFalse)
			So(rank, ShouldEqual, 150)
		})

		Convey("inserting at the front halves the lowest rank", func() {
			rank, redistribute := InsertRank(ranks, 0)
			So(redistribute, ShouldBeFalse)
			So(rank, ShouldEqual, 50)
		})

		Convey("inserting at the end adds a step", func() {
			rank, redistribute := InsertRank(ranks, 2)
			So(redistribute, ShouldBeFalse)
			So(rank, ShouldEqual, 200+RankStep)
		})
	})
}

func TestInsertRankDetectsVanishedGap(t *testing.T) {
	Convey("Given two adjacent ranks with no room between them", t, func() {
		ranks := []int64{100, 101}

		Convey("inserting between them requires redistribution", func() {
			_, redistribute := InsertRank(ranks, 1)
			So(redistribute, ShouldBeTrue)
		})
	})
}

// TestRedistributeScenario is spec.md §8 S6 verbatim: two plots at ranks
// 100 and 101, insert a new plot at index 1.
func TestRedistributeScenario(t *testing.T) {
	existing, inserted := Redistribute(2, 1)

	all := append(append([]int64{}, existing...), inserted)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	if len(all) != 3 {
		t.Fatalf("expected 3 ranks, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		gap := all[i] - all[i-1]
		if gap <= 1000 {
			t.Errorf("rank gap %d at position %d is not > 1000", gap, i)
		}
	}
	// The inserted plot must land at index 1 of the final sorted order.
	found := false
	for i, r := range all {
		if r == inserted && i == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("inserted rank %d not found at index 1 of %v", inserted, all)
	}
}

func TestRedistributeMonotonicAndGapped(t *testing.T) {
	existing, inserted := Redistribute(5, 3)
	all := append(append([]int64{}, existing...), inserted)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] <= all[i-1] {
			t.Fatalf("ranks not strictly increasing: %v", all)
		}
		if all[i]-all[i-1] < MinRankGap {
			t.Fatalf("rank gap below floor: %v", all)
		}
	}
}
