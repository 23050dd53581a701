package docstore

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/doctable"
)

// Stored value layout:
//
//  1. Flags (uvarint), currently only the format version bits.
//  2. Data size (uvarint).
//  3. Data: msgpack map of the document fields, keys sorted.
type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfSupportedMask = vfVer1
	vfDefault       = vfVer1

	minValueSize = 3
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func encodeMsgpack(buf []byte, v any) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", v, err)
	}
	return bb.Buf, nil
}

func decodeMsgpack(data []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	dec.UseLooseInterfaceDecoding(true)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(data, 0, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}

func encodeDocument(doc doctable.Document) ([]byte, error) {
	data, err := encodeMsgpack(nil, map[string]any(doc))
	if err != nil {
		return nil, err
	}
	var bb bytesBuilder
	bb.AppendUvarint(uint64(vfDefault))
	bb.AppendUvarint(uint64(len(data)))
	bb.Write(data)
	return bb.Buf, nil
}

func decodeDocument(value []byte) (doctable.Document, error) {
	if len(value) < minValueSize {
		return nil, dataErrf(value, 0, nil, "invalid value: at least %d bytes required", minValueSize)
	}
	d := makeByteDecoder(value)

	v, err := d.Uvarint()
	if err != nil {
		return nil, err
	}
	flags := valueFlags(v)
	if (flags &^ vfSupportedMask) != 0 {
		return nil, dataErrf(value, 0, nil, "invalid value: unsupported flags %x", v)
	}
	if flags.ver() != vfVer1 {
		return nil, dataErrf(value, 0, nil, "invalid value: unsupported version %d", flags.ver())
	}

	data, err := d.VarBytes()
	if err != nil {
		return nil, err
	}
	if len(d.Buf) != 0 {
		return nil, dataErrf(value, d.Off(), nil, "invalid value: %d trailing bytes", len(d.Buf))
	}

	var m map[string]any
	if err := decodeMsgpack(data, &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return doctable.Document(m), nil
}

// normalizeValue maps loosely decoded msgpack values onto the document value
// set: int64 for integers that fit, float64, UTC time.Time, []any and
// map[string]any.
func normalizeValue(v any) any {
	switch v := v.(type) {
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return v
	case time.Time:
		return v.UTC()
	case []any:
		for i, e := range v {
			v[i] = normalizeValue(e)
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeValue(e)
		}
		return v
	default:
		return v
	}
}
