package grank

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrUnsupportedKind = errors.New("unsupported payload kind", j.C("ERR_6f1d2c0b9e4a7753"))
	ErrGroupSize       = errors.New("group too small", j.C("ERR_b03e95a1c27d6e48"))
	ErrNotMember       = errors.New("process is not a member of the group", j.C("ERR_2d8a44f0e1b97c36"))
	ErrInvalidRoot     = errors.New("coordinator is not a member of the group", j.C("ERR_91c7e2d05fa34b18"))
	ErrBadBuffer       = errors.New("buffer does not match group size", j.C("ERR_5ab0f6937c1e2d84"))
	ErrKindMismatch    = errors.New("payload kinds differ across the group", j.C("ERR_e47c1a9d3b0f5628"))
)

// Kind identifies the fixed-width numeric type carried by a Payload.
type Kind int

const (
	KindUnknown Kind = 0
	KindInt32   Kind = 1
	KindFloat32 Kind = 2

	kindSentinel Kind = 3
)

// Valid returns true if the kind is one the collective can rank.
func (k Kind) Valid() bool {
	return k > KindUnknown && k < kindSentinel
}

// Width returns the number of bytes a payload of this kind occupies on the
// wire, or 0 for unsupported kinds.
func (k Kind) Width() int {
	switch k {
	case KindInt32, KindFloat32:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	default:
		return "unknown"
	}
}

func validateKind(k Kind) error {
	if !k.Valid() {
		return errors.Wrap(ErrUnsupportedKind, "", j.KV("kind", int(k)))
	}
	return nil
}
