package region

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Descriptor identifies one key range of a table. An empty EndKey means the
// range is unbounded. Descriptors are treated as immutable values.
type Descriptor struct {
	Table     string
	StartKey  []byte
	EndKey    []byte
	RegionId  int64
	ReplicaId int32
	Offline   bool
	Split     bool
}

// Key is the comparable identity of a region, usable as a map key.
type Key struct {
	Table     string
	StartKey  string
	EndKey    string
	RegionId  int64
	ReplicaId int32
}

func (d *Descriptor) Key() Key {
	return Key{
		Table:     d.Table,
		StartKey:  string(d.StartKey),
		EndKey:    string(d.EndKey),
		RegionId:  d.RegionId,
		ReplicaId: d.ReplicaId,
	}
}

// IsSplitParent is true for a region that has been split and taken offline;
// its daughters cover its range.
func (d *Descriptor) IsSplitParent() bool {
	return d.Offline && d.Split
}

// RegionName is the catalog row key: table,startKey,regionId with a
// _XXXX replica suffix for non-default replicas.
func (d *Descriptor) RegionName() string {
	return RegionName(d.Table, d.StartKey, d.RegionId, d.ReplicaId)
}

// EncodedName is the name of the region's directory on the filesystem.
func (d *Descriptor) EncodedName() string {
	return EncodeName(d.RegionName())
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("{ENCODED => %s, NAME => '%s', STARTKEY => '%s', ENDKEY => '%s'}",
		d.EncodedName(), d.RegionName(), d.StartKey, d.EndKey)
}

func RegionName(table string, startKey []byte, regionId int64, replicaId int32) string {
	var b bytes.Buffer
	b.WriteString(table)
	b.WriteByte(',')
	b.Write(startKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(regionId, 10))
	if replicaId > 0 {
		b.WriteString(fmt.Sprintf("_%04X", replicaId))
	}
	return b.String()
}

func EncodeName(regionName string) string {
	sum := md5.Sum([]byte(regionName))
	return hex.EncodeToString(sum[:])
}

// TableOfRow returns the table part of a catalog row key.
func TableOfRow(rowKey string) string {
	if i := strings.IndexByte(rowKey, ','); i >= 0 {
		return rowKey[:i]
	}
	return rowKey
}

func (k Key) String() string {
	s := fmt.Sprintf("%s,%s,%d", k.Table, k.StartKey, k.RegionId)
	if k.ReplicaId > 0 {
		s += fmt.Sprintf("_%04X", k.ReplicaId)
	}
	return s
}

// RangeString renders the key range as [start,end).
func (k Key) RangeString() string {
	return fmt.Sprintf("[%q,%q)", k.StartKey, k.EndKey)
}

// Less orders keys by table, start key, end key, region id, replica.
func (k Key) Less(o Key) bool {
	if k.Table != o.Table {
		return k.Table < o.Table
	}
	if k.StartKey != o.StartKey {
		return k.StartKey < o.StartKey
	}
	if k.EndKey != o.EndKey {
		// unbounded end sorts last
		if k.EndKey == "" {
			return false
		}
		if o.EndKey == "" {
			return true
		}
		return k.EndKey < o.EndKey
	}
	if k.RegionId != o.RegionId {
		return k.RegionId < o.RegionId
	}
	return k.ReplicaId < o.ReplicaId
}

// CompareEnd compares two end keys where the empty key means +infinity.
func CompareEnd(a, b []byte) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}
	return bytes.Compare(a, b)
}
