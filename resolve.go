package grank

import (
	"sort"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// resolve assigns positional ranks to the payloads in buf.
//
// The sort is stable so equal payloads keep identity order and the member
// with the smaller identity gets the smaller rank. The returned slice is
// indexed by identity.
func resolve(buf []byte, k Kind) ([]int32, error) {
	if err := validateKind(k); err != nil {
		return nil, err
	}
	width := k.Width()
	if len(buf)%width != 0 {
		return nil, errors.Wrap(ErrBadBuffer, "resolve", j.MKV{
			"len": len(buf), "width": width,
		})
	}

	n := len(buf) / width
	values := make([]TaggedValue, 0, n)
	for i := 0; i < n; i++ {
		p, err := decodePayload(k, buf[i*width:(i+1)*width])
		if err != nil {
			return nil, err
		}
		values = append(values, NewTaggedValue(i, p))
	}

	sort.SliceStable(values, func(a, b int) bool {
		return values[a].Less(values[b])
	})

	ranks := make([]int32, n)
	for pos, v := range values {
		ranks[v.Origin()] = int32(pos)
	}
	return ranks, nil
}
