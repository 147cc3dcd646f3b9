package grank

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// gather moves every member's encoded payload to root. Only root gets a
// buffer back; slot i holds exactly the bytes member i contributed.
func gather(ctx context.Context, c Comm, root int, p Payload) ([]byte, error) {
	send, err := encodePayload(p)
	if err != nil {
		return nil, err
	}

	buf, err := c.Gather(ctx, root, send)
	if err != nil {
		return nil, errors.Wrap(err, "gather payloads")
	}
	if c.Rank() != root {
		return nil, nil
	}

	if exp := c.Size() * len(send); len(buf) != exp {
		return nil, errors.Wrap(ErrBadBuffer, "gathered", j.MKV{
			"expected": exp, "got": len(buf),
		})
	}
	return buf, nil
}
