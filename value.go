package grank

import (
	"encoding/binary"
	"math"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Payload is the local value a process contributes to the collective.
// The only implementations the collective accepts are Int32 and Float32.
type Payload interface {
	Kind() Kind
}

// Int32 is a 32-bit signed integer payload.
type Int32 int32

func (Int32) Kind() Kind { return KindInt32 }

// Float32 is a 32-bit IEEE 754 payload.
type Float32 float32

func (Float32) Kind() Kind { return KindFloat32 }

// kindOf returns the kind of p, or KindUnknown if p is not one of the
// supported variants.
func kindOf(p Payload) Kind {
	switch p.(type) {
	case Int32:
		return KindInt32
	case Float32:
		return KindFloat32
	default:
		return KindUnknown
	}
}

func encodePayload(p Payload) ([]byte, error) {
	b := make([]byte, 4)
	switch v := p.(type) {
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	default:
		return nil, errors.Wrap(ErrUnsupportedKind, "encode payload")
	}
	return b, nil
}

func decodePayload(k Kind, b []byte) (Payload, error) {
	if len(b) != k.Width() || !k.Valid() {
		return nil, errors.Wrap(ErrUnsupportedKind, "decode payload", j.MKV{
			"kind": int(k), "len": len(b),
		})
	}
	bits := binary.LittleEndian.Uint32(b)
	switch k {
	case KindInt32:
		return Int32(int32(bits)), nil
	case KindFloat32:
		return Float32(math.Float32frombits(bits)), nil
	}
	return nil, errors.Wrap(ErrUnsupportedKind, "decode payload", j.KV("kind", int(k)))
}

// TaggedValue pairs a payload with the identity of the process that
// contributed it.
type TaggedValue struct {
	origin  int
	payload Payload
}

func NewTaggedValue(origin int, p Payload) TaggedValue {
	return TaggedValue{origin: origin, payload: p}
}

func (v TaggedValue) Origin() int { return v.origin }

func (v TaggedValue) Payload() Payload { return v.payload }

func (v TaggedValue) Int32() (int32, bool) {
	i, ok := v.payload.(Int32)
	return int32(i), ok
}

func (v TaggedValue) Float32() (float32, bool) {
	f, ok := v.payload.(Float32)
	return float32(f), ok
}

// Less reports whether v orders before o. Only payloads are compared, the
// origin never takes part. NaN orders before every other float.
// It panics if the two payloads are of different kinds.
func (v TaggedValue) Less(o TaggedValue) bool {
	switch a := v.payload.(type) {
	case Int32:
		b, ok := o.payload.(Int32)
		if !ok {
			panic("grank: comparing payloads of different kinds")
		}
		return a < b
	case Float32:
		b, ok := o.payload.(Float32)
		if !ok {
			panic("grank: comparing payloads of different kinds")
		}
		return a < b || (isNaN(a) && !isNaN(b))
	default:
		panic("grank: comparing unsupported payload")
	}
}

func isNaN(f Float32) bool {
	return f != f
}
