package grank

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// RequireSize returns ErrGroupSize if the group has fewer than minSize members.
// It is meant for programs that impose their own minimum before running any
// collective, so that every member aborts instead of some of them starting.
func RequireSize(c Comm, minSize int) error {
	if c.Size() < minSize {
		return errors.Wrap(ErrGroupSize, "", j.MKV{"size": c.Size(), "min": minSize})
	}
	return nil
}
