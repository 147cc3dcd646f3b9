package etcdgroup

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var (
	ErrMemberAlreadyExists = errors.New("member key already exists", j.C("ERR_3e0a7d91c5b26f48"))
	ErrGroupFull           = errors.New("group already has enough members", j.C("ERR_d6215bf8e0c9a734"))
	ErrMemberLost          = errors.New("group member left", j.C("ERR_8b4f3c27a1e90d65"))
)

func putMemberKey(ctx context.Context, sess *concurrency.Session, key string) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	cmp := clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
	// If the key doesn't exist, we'll put it with our lease
	put := clientv3.OpPut(key, ts, clientv3.WithLease(sess.Lease()))
	// If it does exist, let's get it, so we can see who owns it
	get := clientv3.OpGet(key)
	resp, err := sess.Client().Txn(ctx).If(cmp).Then(put).Else(get).Commit()
	if err != nil {
		return errors.Wrap(err, "put member key")
	}
	if !resp.Succeeded {
		owner := resp.Responses[0].GetResponseRange().Kvs[0].Lease
		return errors.Wrap(ErrMemberAlreadyExists, "", j.MKV{
			"owner_lease": owner,
			"member_key":  key,
			"my_lease":    sess.Lease(),
		})
	}
	return nil
}

// roster is the agreed membership of a formed group.
type roster struct {
	// keys holds member keys, index == identity
	keys []string
	// epoch is the create revision of the first member key. It separates
	// the collectives of this group from those of earlier groups that used
	// the same name.
	epoch int64
}

// rankOf returns the identity of key, or -1 if it is not in the roster.
func (r roster) rankOf(key string) int {
	for i, k := range r.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// rosterFrom orders members by the time they joined. The first size
// members make up the group.
func rosterFrom(kvs []*mvccpb.KeyValue, size int) roster {
	if len(kvs) > size {
		kvs = kvs[:size]
	}
	var r roster
	for _, kv := range kvs {
		r.keys = append(r.keys, string(kv.Key))
	}
	if len(kvs) > 0 {
		r.epoch = kvs[0].CreateRevision
	}
	return r
}

// awaitRoster waits until size members have joined and returns the roster.
func awaitRoster(ctx context.Context, sess *concurrency.Session, prefix string, size int) (roster, error) {
	kvs, err := waitForKeys(ctx, sess.Client(), prefix, size, sess.Done(), sessionErr)
	if err != nil {
		return roster{}, errors.Wrap(err, "await members", j.MKV{
			"joined": len(kvs), "size": size,
		})
	}
	return rosterFrom(kvs, size), nil
}

// watchRoster returns the key of the first member of r to leave, which
// happens when its lease expires or it closes.
func watchRoster(ctx context.Context, cli *clientv3.Client, prefix string, r roster) (string, error) {
	inRoster := make(map[string]bool, len(r.keys))
	for _, k := range r.keys {
		inRoster[k] = true
	}

	// Catch members that left between forming the roster and watching
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return "", errors.Wrap(err, "get members")
	}
	present := make(map[string]bool, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		present[string(kv.Key)] = true
	}
	if gone := Difference(inRoster, present); len(gone) > 0 {
		return gone[0], nil
	}

	watchChan := cli.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case wr, ok := <-watchChan:
			if !ok {
				return "", ctx.Err()
			}
			if err := wr.Err(); err != nil {
				return "", errors.Wrap(err, "watch members")
			}
			for _, ev := range wr.Events {
				if ev.Type == clientv3.EventTypeDelete && inRoster[string(ev.Kv.Key)] {
					return string(ev.Kv.Key), nil
				}
			}
		}
	}
}

func memberName(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
