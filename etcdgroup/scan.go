package etcdgroup

import (
	"context"

	"github.com/luno/jettison/errors"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdScanPage = 1000

// scanPrefix returns every key under prefix ordered by creation, together
// with the store revision the scan was pinned to.
func scanPrefix(ctx context.Context, cli *clientv3.Client, prefix string) ([]*mvccpb.KeyValue, int64, error) {
	var (
		minRev int64
		atRev  int64
		kvs    []*mvccpb.KeyValue
	)
	for {
		opts := []clientv3.OpOption{
			clientv3.WithMinCreateRev(minRev),
			clientv3.WithPrefix(),
			clientv3.WithLimit(etcdScanPage),
			clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
		}
		if atRev > 0 {
			// Later pages must see the same snapshot as the first
			opts = append(opts, clientv3.WithRev(atRev))
		}
		resp, err := cli.Get(ctx, prefix, opts...)
		if err != nil {
			return nil, 0, errors.Wrap(err, "get")
		}
		if atRev == 0 {
			atRev = resp.Header.Revision
		}

		for _, kv := range resp.Kvs {
			minRev = kv.CreateRevision + 1
			kvs = append(kvs, kv)
		}

		if !resp.More {
			break
		}
	}
	return kvs, atRev, nil
}

// waitForKeys blocks until at least n keys exist under prefix and returns
// them in creation order. It gives up when ctx is done or abort is closed,
// returning the keys seen so far with the error.
func waitForKeys(ctx context.Context, cli *clientv3.Client, prefix string, n int,
	abort <-chan struct{}, abortErr func() error,
) ([]*mvccpb.KeyValue, error) {
	kvs, rev, err := scanPrefix(ctx, cli, prefix)
	if err != nil {
		return nil, err
	}
	if len(kvs) >= n {
		return kvs, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchChan := cli.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for {
		select {
		case <-ctx.Done():
			return kvs, ctx.Err()
		case <-abort:
			return kvs, abortErr()
		case resp, ok := <-watchChan:
			if !ok {
				if ctx.Err() != nil {
					return kvs, ctx.Err()
				}
				return kvs, errors.New("watch closed")
			}
			if err := resp.Err(); err != nil {
				return kvs, errors.Wrap(err, "watch")
			}
			for _, ev := range resp.Events {
				if ev.IsCreate() {
					kvs = append(kvs, ev.Kv)
				}
			}
			if len(kvs) >= n {
				return kvs, nil
			}
		}
	}
}
