package rangepull

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func Test_Plan(t *testing.T) {
	Convey("Plan divides a file into chunkSize-bounded ranges", t, func() {
		got := Plan(10, 3)
		So(got, ShouldResemble, []Range{{0, 2}, {3, 5}, {6, 8}, {9, 9}})
	})

	Convey("Plan coverage holds for a spread of sizes and chunk sizes", t, func() {
		for _, size := range []int64{1, 2, 3, 7, 100, 4096} {
			for _, cs := range []int64{1, 2, 3, 5, 4096} {
				plan := Plan(size, cs)
				So(len(plan), ShouldBeGreaterThan, 0)
				So(plan[0].Lo, ShouldEqual, 0)
				So(plan[len(plan)-1].Hi, ShouldEqual, size-1)
				for i := 0; i < len(plan)-1; i++ {
					So(plan[i].Hi+1, ShouldEqual, plan[i+1].Lo)
					So(plan[i].Size(), ShouldEqual, cs)
				}
				So(plan[len(plan)-1].Size(), ShouldBeLessThanOrEqualTo, cs)
			}
		}
	})
}

func Test_Adjacent(t *testing.T) {
	Convey("Adjacent reports contiguous ranges", t, func() {
		So(Range{0, 1}.Adjacent(Range{2, 3}), ShouldBeTrue)
		So(Range{0, 1}.Adjacent(Range{5, 6}), ShouldBeFalse)
	})
}

func Test_Merge(t *testing.T) {
	Convey("Merge fuses adjacent ranges and passes through the rest", t, func() {
		So(Merge([]Range{{0, 1}, {2, 3}, {5, 6}}), ShouldResemble, []Range{{0, 3}, {5, 6}})
		So(Merge([]Range{{0, 1}, {5, 6}, {7, 8}}), ShouldResemble, []Range{{0, 1}, {5, 8}})
		So(Merge([]Range{{0, 1}, {3, 4}, {6, 7}}), ShouldResemble, []Range{{0, 1}, {3, 4}, {6, 7}})
	})

	Convey("Merge is a no-op on a single-element input", t, func() {
		So(Merge([]Range{{4, 9}}), ShouldResemble, []Range{{4, 9}})
	})

	Convey("Merge is a no-op on an empty input", t, func() {
		So(Merge(nil), ShouldResemble, []Range(nil))
	})

	Convey("Merge is idempotent and preserves total union size", t, func() {
		in := []Range{{0, 2}, {3, 5}, {8, 9}, {20, 30}}
		once := Merge(in)
		twice := Merge(once)
		So(twice, ShouldResemble, once)

		var sumIn, sumOnce int64
		for _, r := range in {
			sumIn += r.Size()
		}
		for _, r := range once {
			sumOnce += r.Size()
		}
		So(sumOnce, ShouldEqual, sumIn)
	})
}

func Test_Invert(t *testing.T) {
	Convey("Invert returns the complement of an occupied set", t, func() {
		So(Invert(10, []Range{{0, 3}}), ShouldResemble, []Range{{4, 9}})
		So(Invert(5, []Range{{2, 3}}), ShouldResemble, []Range{{0, 1}, {4, 4}})
	})

	Convey("Invert of a fully-covered range is empty", t, func() {
		So(Invert(10, []Range{{0, 9}}), ShouldBeEmpty)
	})

	Convey("Invert of an empty occupied set is the whole span", t, func() {
		So(Invert(10, nil), ShouldResemble, []Range{{0, 9}})
	})

	Convey("Invert and occupied are disjoint and union to the whole span", t, func() {
		occupied := []Range{{0, 2}, {6, 8}}
		gaps := Invert(10, occupied)
		seen := make(map[int64]bool)
		for _, r := range occupied {
			for b := r.Lo; b <= r.Hi; b++ {
				seen[b] = true
			}
		}
		for _, r := range gaps {
			for b := r.Lo; b <= r.Hi; b++ {
				So(seen[b], ShouldBeFalse)
				seen[b] = true
			}
		}
		for b := int64(0); b < 10; b++ {
			So(seen[b], ShouldBeTrue)
		}
	})
}

func Test_MergeLeftovers(t *testing.T) {
	Convey("MergeLeftovers fuses pairs under the cap", t, func() {
		So(MergeLeftovers(Plan(10, 3), 4), ShouldResemble, []Range{{0, 2}, {3, 5}, {6, 9}})
	})

	Convey("MergeLeftovers passes through a trailing unpaired element", t, func() {
		got := MergeLeftovers([]Range{{0, 1}, {2, 3}, {4, 5}}, 100)
		So(got, ShouldResemble, []Range{{0, 3}, {4, 5}})
	})
}

func Test_Outstanding(t *testing.T) {
	Convey("Outstanding is the plan minus exactly-completed chunks", t, func() {
		got := Outstanding(10, 3, []Range{{0, 2}, {6, 8}})
		So(got, ShouldResemble, []Range{{3, 5}, {9, 9}})
	})

	Convey("Outstanding re-downloads a chunk that only partially completed under a different chunk size", t, func() {
		// completed was recorded at chunk size 5: [(0,4)]. Resuming at chunk
		// size 3 has no plan entry equal to (0,4), so both overlapping plan
		// entries are outstanding.
		got := Outstanding(10, 3, []Range{{0, 4}})
		So(got, ShouldResemble, []Range{{0, 2}, {3, 5}, {6, 8}, {9, 9}})
	})
}
