package grank

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// GlobalRank returns the 0-based position p would hold if the payloads of
// every member of the group were sorted ascending. Equal payloads are ranked
// by member identity, so the returned ranks always form a permutation of
// [0, Size).
//
// Every member of the group must call GlobalRank with a payload of the same
// kind and the same options. Payloads of an unsupported kind fail with
// ErrUnsupportedKind before any communication; the other members are not
// told and stay blocked until their context is done.
func GlobalRank(ctx context.Context, c Comm, p Payload, opts ...Option) (int, error) {
	o := buildOptions(opts)

	k := kindOf(p)
	if err := validateKind(k); err != nil {
		o.log.Error(ctx, err)
		return 0, err
	}

	rank, size := c.Rank(), c.Size()
	if rank < 0 || rank >= size {
		return 0, errors.Wrap(ErrNotMember, "", j.MKV{"rank": rank, "size": size})
	}
	root := o.coordinator(size)
	if root < 0 || root >= size {
		return 0, errors.Wrap(ErrInvalidRoot, "", j.MKV{"root": root, "size": size})
	}

	isRoot := rank == root
	role := roleLabel(isRoot)
	invocationCounter.WithLabelValues(k.String(), role).Inc()
	groupSizeGauge.Set(float64(size))
	t0 := time.Now()

	var (
		res int
		err error
	)
	if isRoot {
		res, err = coordinate(ctx, c, root, p, o)
	} else {
		res, err = participate(ctx, c, root, p, o)
	}
	if err != nil {
		errorCounter.WithLabelValues(k.String(), role).Inc()
		o.log.Error(ctx, errors.Wrap(err, "global rank"), j.MKV{"rank": rank, "root": root})
		return 0, err
	}

	durationHist.WithLabelValues(role).Observe(time.Since(t0).Seconds())
	o.log.Debug(ctx, "global rank resolved", j.MKV{
		"rank": rank, "size": size, "root": root, "global_rank": res,
	})
	return res, nil
}

// coordinate is the root's side: gather, sort and scatter.
func coordinate(ctx context.Context, c Comm, root int, p Payload, o options) (int, error) {
	k := kindOf(p)
	if o.agreeKind {
		if err := agreeKind(ctx, c, root, k); err != nil {
			return 0, err
		}
	}

	buf, err := gather(ctx, c, root, p)
	if err != nil {
		return 0, err
	}

	ranks, err := resolve(buf, k)
	if err != nil {
		return 0, err
	}
	o.log.Debug(ctx, "resolved group ranks", j.KV("size", len(ranks)))

	return scatter(ctx, c, root, ranks)
}

// participate is every other member's side: contribute and wait for the
// assigned rank.
func participate(ctx context.Context, c Comm, root int, p Payload, o options) (int, error) {
	if o.agreeKind {
		if err := agreeKind(ctx, c, root, kindOf(p)); err != nil {
			return 0, err
		}
	}

	if _, err := gather(ctx, c, root, p); err != nil {
		return 0, err
	}

	return scatter(ctx, c, root, nil)
}

const (
	verdictAgree    byte = 0
	verdictMismatch byte = 1
)

// agreeKind gathers every member's kind on root and broadcasts whether they
// all match, so that every member fails the same way on disagreement.
func agreeKind(ctx context.Context, c Comm, root int, k Kind) error {
	kinds, err := c.Gather(ctx, root, []byte{byte(k)})
	if err != nil {
		return errors.Wrap(err, "gather kinds")
	}

	var verdict []byte
	if c.Rank() == root {
		verdict = []byte{verdictAgree}
		for _, b := range kinds {
			if Kind(b) != k {
				verdict[0] = verdictMismatch
				break
			}
		}
	}

	verdict, err = c.Bcast(ctx, root, verdict)
	if err != nil {
		return errors.Wrap(err, "broadcast kind verdict")
	}
	if len(verdict) != 1 {
		return errors.Wrap(ErrBadBuffer, "kind verdict", j.KV("len", len(verdict)))
	}
	if verdict[0] != verdictAgree {
		return errors.Wrap(ErrKindMismatch, "", j.KV("kind", k.String()))
	}
	return nil
}
