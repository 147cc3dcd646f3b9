package etcdgroup

import (
	"context"
	"path"

	"github.com/google/uuid"
	"github.com/luno/jettison"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/log"
)

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (noopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (noopLogger) Error(context.Context, error, ...jettison.Option)  {}

type Options struct {
	// MemberName is the name of this member of the group, every member
	// must have a unique name. If not provided, a random UUID is used.
	MemberName string

	// Log will log out messages and errors on group activity
	Log log.Interface

	// NotifyRank is called once the group is formed with this member's
	// identity and the group size.
	NotifyRank func(group string, member string, rank, size int)

	// memberKey is set to signal membership in the group. It is
	// associated with the session lease so that if the process dies,
	// the key is removed and the rest of the group notices.
	memberKey string

	// memberKeyPrefix is used to list all the members of the group
	memberKeyPrefix string

	// opsPrefix holds the keys written by collectives
	opsPrefix string
}

func validateOptions(name string, size int, o *Options) error {
	if name == "" {
		return errors.New("invalid group name")
	}
	if size < 1 {
		return errors.New("invalid group size")
	}
	if o.MemberName == "" {
		o.MemberName = uuid.New().String()
	}
	if o.Log == nil {
		o.Log = noopLogger{}
	}
	if o.NotifyRank == nil {
		o.NotifyRank = func(string, string, int, int) {}
	}
	o.memberKey = path.Join(name, "members", o.MemberName)
	o.memberKeyPrefix = path.Join(name, "members") + "/"
	o.opsPrefix = path.Join(name, "ops")
	return nil
}
