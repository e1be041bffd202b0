package reconcile

import (
	"bytes"
	"fmt"

	"github.com/google/btree"

	"github.com/dot2gua/hbase98learning/hbck/region"
)

// TilingViolation is a hole or an overlap in the key space of one table
// replica. For a hole, Regions holds the neighbours of the gap.
type TilingViolation struct {
	Kind      ErrorKind
	Table     string
	ReplicaId int32
	StartKey  []byte
	EndKey    []byte
	Regions   []region.Key
}

func (v TilingViolation) String() string {
	return fmt.Sprintf("%s %s replica %d [%q,%q) %d regions", v.Kind, v.Table, v.ReplicaId, v.StartKey, v.EndKey, len(v.Regions))
}

type tilingGroup struct {
	table   string
	replica int32
}

func lessByRange(a, b *region.Descriptor) bool {
	if c := bytes.Compare(a.StartKey, b.StartKey); c != 0 {
		return c < 0
	}
	if c := region.CompareEnd(a.EndKey, b.EndKey); c != 0 {
		return c < 0
	}
	return a.RegionId < b.RegionId
}

// CheckTiling walks the descriptors of each table replica in start key order
// and reports every place where the ranges do not tile ["", "") exactly
// once. Split parents are skipped since their daughters own the range.
func CheckTiling(descriptors []*region.Descriptor) (violations []TilingViolation) {
	groups := make(map[tilingGroup]*btree.BTreeG[*region.Descriptor])
	var order []tilingGroup
	for _, d := range descriptors {
		if d.IsSplitParent() {
			continue
		}
		g := tilingGroup{table: d.Table, replica: d.ReplicaId}
		tree, found := groups[g]
		if !found {
			tree = btree.NewG[*region.Descriptor](8, lessByRange)
			groups[g] = tree
			order = append(order, g)
		}
		tree.ReplaceOrInsert(d)
	}
	for _, g := range order {
		violations = append(violations, checkGroup(g, groups[g])...)
	}
	return
}

func checkGroup(g tilingGroup, tree *btree.BTreeG[*region.Descriptor]) (violations []TilingViolation) {
	var (
		// cursor is the end of the covered prefix; unbounded once a region
		// reaching the end of the key space was seen
		cursor    []byte
		unbounded bool
		last      *region.Descriptor
	)
	tree.Ascend(func(d *region.Descriptor) bool {
		switch {
		case unbounded:
			violations = append(violations, overlap(g, d.StartKey, d.EndKey, last, d))
		case bytes.Compare(d.StartKey, cursor) > 0:
			hole := TilingViolation{Kind: HOLE_IN_KEYSPACE, Table: g.table, ReplicaId: g.replica,
				StartKey: cursor, EndKey: d.StartKey}
			if last != nil {
				hole.Regions = append(hole.Regions, last.Key())
			}
			hole.Regions = append(hole.Regions, d.Key())
			violations = append(violations, hole)
		case bytes.Compare(d.StartKey, cursor) < 0:
			end := cursor
			if region.CompareEnd(d.EndKey, cursor) < 0 {
				end = d.EndKey
			}
			violations = append(violations, overlap(g, d.StartKey, end, last, d))
		}
		if !unbounded && region.CompareEnd(d.EndKey, cursor) > 0 || last == nil {
			if len(d.EndKey) == 0 {
				unbounded = true
			}
			cursor = d.EndKey
			last = d
		}
		return true
	})
	if last != nil && !unbounded {
		violations = append(violations, TilingViolation{Kind: HOLE_IN_KEYSPACE, Table: g.table, ReplicaId: g.replica,
			StartKey: cursor, Regions: []region.Key{last.Key()}})
	}
	return
}

func overlap(g tilingGroup, start, end []byte, previous, d *region.Descriptor) TilingViolation {
	v := TilingViolation{Kind: OVERLAPPING_REGIONS, Table: g.table, ReplicaId: g.replica,
		StartKey: start, EndKey: end}
	if previous != nil {
		v.Regions = append(v.Regions, previous.Key())
	}
	v.Regions = append(v.Regions, d.Key())
	return v
}

// MissingRanges returns the parts of [start, end) not covered by any of
// the given descriptors. An empty end means the end of the key space.
func MissingRanges(start, end []byte, covering []*region.Descriptor) (missing [][2][]byte) {
	tree := btree.NewG[*region.Descriptor](8, lessByRange)
	for _, d := range covering {
		tree.ReplaceOrInsert(d)
	}
	cursor := start
	done := false
	tree.Ascend(func(d *region.Descriptor) bool {
		if len(end) > 0 && bytes.Compare(d.StartKey, end) >= 0 {
			return false
		}
		if len(d.EndKey) > 0 && bytes.Compare(d.EndKey, cursor) <= 0 {
			return true
		}
		if bytes.Compare(d.StartKey, cursor) > 0 {
			missing = append(missing, [2][]byte{cursor, d.StartKey})
		}
		if len(d.EndKey) == 0 || (len(end) > 0 && bytes.Compare(d.EndKey, end) >= 0) {
			done = true
			return false
		}
		if bytes.Compare(d.EndKey, cursor) > 0 {
			cursor = d.EndKey
		}
		return true
	})
	if !done {
		missing = append(missing, [2][]byte{cursor, end})
	}
	return
}
