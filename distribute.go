package grank

import (
	"context"
	"encoding/binary"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

const rankWidth = 4

func encodeRanks(ranks []int32) []byte {
	b := make([]byte, len(ranks)*rankWidth)
	for i, r := range ranks {
		binary.LittleEndian.PutUint32(b[i*rankWidth:], uint32(r))
	}
	return b
}

// scatter delivers slot i of ranks to member i. Only root's ranks are read;
// other members pass nil.
func scatter(ctx context.Context, c Comm, root int, ranks []int32) (int, error) {
	var send []byte
	if c.Rank() == root {
		send = encodeRanks(ranks)
	}

	slot, err := c.Scatter(ctx, root, send, rankWidth)
	if err != nil {
		return 0, errors.Wrap(err, "scatter ranks")
	}
	if len(slot) != rankWidth {
		return 0, errors.Wrap(ErrBadBuffer, "scattered", j.KV("len", len(slot)))
	}
	return int(int32(binary.LittleEndian.Uint32(slot))), nil
}
