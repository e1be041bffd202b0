package region

import (
	"bytes"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	DefaultNamespace = "default"
)

var (
	// PBUFMagic prefixes every serialized descriptor.
	PBUFMagic = []byte("PBUF")

	ErrMalformedDescriptor = errors.New("malformed region descriptor")
)

// descriptor fields, same numbering as the RegionInfo message
const (
	fieldRegionId  protowire.Number = 1
	fieldTableName protowire.Number = 2
	fieldStartKey  protowire.Number = 3
	fieldEndKey    protowire.Number = 4
	fieldOffline   protowire.Number = 5
	fieldSplit     protowire.Number = 6
	fieldReplicaId protowire.Number = 7

	fieldNamespace protowire.Number = 1
	fieldQualifier protowire.Number = 2
)

// Marshal serializes d with the PBUF magic prefix.
func (d *Descriptor) Marshal() []byte {
	b := append([]byte{}, PBUFMagic...)
	return d.appendProto(b)
}

func (d *Descriptor) appendProto(b []byte) []byte {
	b = protowire.AppendTag(b, fieldRegionId, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.RegionId))

	var tableName []byte
	tableName = protowire.AppendTag(tableName, fieldNamespace, protowire.BytesType)
	tableName = protowire.AppendString(tableName, DefaultNamespace)
	tableName = protowire.AppendTag(tableName, fieldQualifier, protowire.BytesType)
	tableName = protowire.AppendString(tableName, d.Table)
	b = protowire.AppendTag(b, fieldTableName, protowire.BytesType)
	b = protowire.AppendBytes(b, tableName)

	b = protowire.AppendTag(b, fieldStartKey, protowire.BytesType)
	b = protowire.AppendBytes(b, d.StartKey)
	b = protowire.AppendTag(b, fieldEndKey, protowire.BytesType)
	b = protowire.AppendBytes(b, d.EndKey)
	if d.Offline {
		b = protowire.AppendTag(b, fieldOffline, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if d.Split {
		b = protowire.AppendTag(b, fieldSplit, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if d.ReplicaId != 0 {
		b = protowire.AppendTag(b, fieldReplicaId, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.ReplicaId))
	}
	return b
}

// Unmarshal parses a blob produced by Marshal. Every failure wraps
// ErrMalformedDescriptor.
func Unmarshal(data []byte) (*Descriptor, error) {
	if !bytes.HasPrefix(data, PBUFMagic) {
		return nil, fmt.Errorf("%w: missing PBUF magic", ErrMalformedDescriptor)
	}
	return unmarshalProto(data[len(PBUFMagic):])
}

func unmarshalProto(b []byte) (*Descriptor, error) {
	d := &Descriptor{}
	var seenRegionId, seenTable bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldTableName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			table, err := unmarshalTableName(v)
			if err != nil {
				return nil, err
			}
			d.Table, seenTable = table, true
			b = b[n:]
		case (num == fieldStartKey || num == fieldEndKey) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			var key []byte
			if len(v) > 0 {
				key = append([]byte{}, v...)
			}
			if num == fieldStartKey {
				d.StartKey = key
			} else {
				d.EndKey = key
			}
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			switch num {
			case fieldRegionId:
				d.RegionId, seenRegionId = int64(v), true
			case fieldOffline:
				d.Offline = protowire.DecodeBool(v)
			case fieldSplit:
				d.Split = protowire.DecodeBool(v)
			case fieldReplicaId:
				d.ReplicaId = int32(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !seenRegionId || !seenTable || d.Table == "" {
		return nil, fmt.Errorf("%w: missing region id or table", ErrMalformedDescriptor)
	}
	if len(d.EndKey) > 0 && bytes.Compare(d.StartKey, d.EndKey) >= 0 {
		return nil, fmt.Errorf("%w: start key %q not before end key %q", ErrMalformedDescriptor, d.StartKey, d.EndKey)
	}
	return d, nil
}

func unmarshalTableName(b []byte) (string, error) {
	var qualifier string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", malformed(protowire.ParseError(n))
		}
		b = b[n:]
		if num == fieldQualifier && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", malformed(protowire.ParseError(n))
			}
			qualifier = v
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return "", malformed(protowire.ParseError(n))
		}
		b = b[n:]
	}
	return qualifier, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
}
