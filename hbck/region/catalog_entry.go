package region

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

type State int32

const (
	StateUnassigned State = iota
	StateOpening
	StateOpen
	StateClosing
	StateSplitPending
)

var stateNames = map[State]string{
	StateUnassigned:   "unassigned",
	StateOpening:      "opening",
	StateOpen:         "open",
	StateClosing:      "closing",
	StateSplitPending: "split-pending",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateUnassigned, fmt.Errorf("unknown region state %q", name)
}

var ErrMalformedEntry = errors.New("malformed catalog entry")

// CatalogEntry is one row of the catalog table. When the embedded
// descriptor cannot be decoded, Descriptor is nil and DecodeErr says why.
type CatalogEntry struct {
	RowKey     string
	Descriptor *Descriptor
	Server     string
	State      State
	UpdatedAt  time.Time
	Generation uint64
	DecodeErr  error
}

// NewCatalogEntry builds the row for d, keyed by its region name.
func NewCatalogEntry(d *Descriptor, server string, state State, updatedAt time.Time) *CatalogEntry {
	return &CatalogEntry{
		RowKey:     d.RegionName(),
		Descriptor: d,
		Server:     server,
		State:      state,
		UpdatedAt:  updatedAt,
	}
}

const (
	fieldEntryRegionInfo protowire.Number = 1
	fieldEntryServer     protowire.Number = 2
	fieldEntryState      protowire.Number = 3
	fieldEntryUpdated    protowire.Number = 4
	fieldEntryGeneration protowire.Number = 5
)

// EncodeValue serializes the row value; the row key is stored separately.
func (entry *CatalogEntry) EncodeValue() []byte {
	var b []byte
	if entry.Descriptor != nil {
		b = protowire.AppendTag(b, fieldEntryRegionInfo, protowire.BytesType)
		b = protowire.AppendBytes(b, entry.Descriptor.Marshal())
	}
	if entry.Server != "" {
		b = protowire.AppendTag(b, fieldEntryServer, protowire.BytesType)
		b = protowire.AppendString(b, entry.Server)
	}
	b = protowire.AppendTag(b, fieldEntryState, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(entry.State))
	if !entry.UpdatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldEntryUpdated, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(entry.UpdatedAt.UnixMilli()))
	}
	b = protowire.AppendTag(b, fieldEntryGeneration, protowire.VarintType)
	b = protowire.AppendVarint(b, entry.Generation)
	return b
}

// DecodeCatalogEntry parses a row value. A broken row frame is an error; a
// broken descriptor inside a sound frame is recorded in DecodeErr.
func DecodeCatalogEntry(rowKey string, value []byte) (*CatalogEntry, error) {
	entry := &CatalogEntry{RowKey: rowKey}
	var regionInfo []byte
	b := value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w %s: %v", ErrMalformedEntry, rowKey, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldEntryRegionInfo && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, fmt.Errorf("%w %s: %v", ErrMalformedEntry, rowKey, protowire.ParseError(m))
			}
			regionInfo = v
			n = m
		case num == fieldEntryServer && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return nil, fmt.Errorf("%w %s: %v", ErrMalformedEntry, rowKey, protowire.ParseError(m))
			}
			entry.Server = v
			n = m
		case typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, fmt.Errorf("%w %s: %v", ErrMalformedEntry, rowKey, protowire.ParseError(m))
			}
			switch num {
			case fieldEntryState:
				entry.State = State(v)
			case fieldEntryUpdated:
				entry.UpdatedAt = time.UnixMilli(int64(v))
			case fieldEntryGeneration:
				entry.Generation = v
			}
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w %s: %v", ErrMalformedEntry, rowKey, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}

	if regionInfo == nil {
		entry.DecodeErr = fmt.Errorf("%w: row %s has no regioninfo", ErrMalformedDescriptor, rowKey)
		return entry, nil
	}
	d, err := Unmarshal(regionInfo)
	if err != nil {
		entry.DecodeErr = err
		return entry, nil
	}
	if d.RegionName() != rowKey {
		entry.DecodeErr = fmt.Errorf("%w: row key %s does not match region %s", ErrMalformedDescriptor, rowKey, d.RegionName())
		return entry, nil
	}
	entry.Descriptor = d
	return entry, nil
}

// Table is the table of the row, from the descriptor when present.
func (entry *CatalogEntry) Table() string {
	if entry.Descriptor != nil {
		return entry.Descriptor.Table
	}
	return TableOfRow(entry.RowKey)
}
