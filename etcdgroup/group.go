// Package etcdgroup forms a fixed-size process group through etcd and runs
// collectives over leased etcd keys.
//
// Each process joins with an etcd concurrency.Session. Members are given
// identities in the order their member keys were created, and the group is
// formed once the requested number of members has joined. Later joiners get
// ErrGroupFull.
//
// Every collective is identified by a sequence number that each member
// increments locally, so all members must issue collectives in the same
// order. Blocks are written to per-member slot keys under the collective's
// prefix with the writer's lease. Every slot has a single reader, which
// watches for it and deletes it once read, so a completed collective leaves
// no keys behind.
//
// When a member's lease expires or it closes, the remaining members fail
// all pending and future collectives with ErrMemberLost. There is no
// recovery: the group has to be formed again.
package etcdgroup

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

var (
	ErrSessionClosed = errors.New("etcd session closed", j.C("ERR_f2a6c19e07d3b584"))
	ErrNoSuchMember  = errors.New("no such member", j.C("ERR_41d9e8b7a0c25f36"))
	ErrBlockSize     = errors.New("unexpected block size", j.C("ERR_c70b52e6f4a19d83"))
	ErrBadSlot       = errors.New("invalid collective slot", j.C("ERR_9e3d07a5b81c6f42"))
)

const (
	leaveTimeout = 5 * time.Second

	// maxTxnOps is the default limit of operations in an etcd transaction.
	maxTxnOps = 128
)

func sessionErr() error {
	return ErrSessionClosed
}

// Member is one process of a group formed in etcd.
type Member struct {
	cli    *clientv3.Client
	sess   *concurrency.Session
	name   string
	opts   Options
	roster roster
	rank   int

	mu  sync.Mutex
	seq int64

	cancel   context.CancelFunc
	finished chan struct{}

	dead     chan struct{}
	deadOnce sync.Once
	deadErr  error
}

// Join adds this process to the group called name and blocks until size
// members have joined. The session must stay open for as long as the
// member is used; its lease ties every key the member writes.
func Join(ctx context.Context, sess *concurrency.Session, name string, size int, o Options) (*Member, error) {
	if err := validateOptions(name, size, &o); err != nil {
		return nil, err
	}
	if err := putMemberKey(ctx, sess, o.memberKey); err != nil {
		return nil, err
	}
	o.Log.Debug(ctx, "joining group", j.MKV{"member": o.memberKey, "size": size})

	r, err := awaitRoster(ctx, sess, o.memberKeyPrefix, size)
	if err != nil {
		// Later joiners would count our key towards the group
		leave(sess, o)
		return nil, err
	}

	rank := r.rankOf(o.memberKey)
	if rank < 0 {
		leave(sess, o)
		return nil, errors.Wrap(ErrGroupFull, "", j.MKV{"group": name, "size": size})
	}

	mctx, cancel := context.WithCancel(context.Background())
	m := &Member{
		cli:      sess.Client(),
		sess:     sess,
		name:     name,
		opts:     o,
		roster:   r,
		rank:     rank,
		cancel:   cancel,
		finished: make(chan struct{}),
		dead:     make(chan struct{}),
	}
	go m.monitor(mctx)

	o.Log.Info(ctx, "joined group", j.MKV{
		"group": name, "rank": rank, "size": size, "epoch": r.epoch,
	})
	o.NotifyRank(name, o.MemberName, rank, size)
	return m, nil
}

// leave removes the member key of a join that did not complete. The join
// context may already be done, so it uses its own.
func leave(sess *concurrency.Session, o Options) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	if _, err := sess.Client().Delete(ctx, o.memberKey); err != nil {
		// NoReturnErr: The lease will remove it
		o.Log.Error(ctx, errors.Wrap(err, "delete member key", j.KV("member", o.memberKey)))
	}
}

// Close stops monitoring the group and removes this member's key, which
// makes the remaining members fail with ErrMemberLost. It does not close
// the session.
func (m *Member) Close(ctx context.Context) error {
	m.cancel()
	<-m.finished
	m.fail(errors.New("member closed"))

	_, err := m.cli.Delete(ctx, m.opts.memberKey)
	if err != nil {
		return errors.Wrap(err, "delete member key")
	}
	return nil
}

func (m *Member) Rank() int { return m.rank }

func (m *Member) Size() int { return len(m.roster.keys) }

func (m *Member) monitor(ctx context.Context) {
	m.opts.Log.Debug(ctx, "monitoring group members")
	defer m.opts.Log.Debug(ctx, "stopped monitoring group members")
	defer close(m.finished)

	type result struct {
		lost string
		err  error
	}
	res := make(chan result, 1)
	go func() {
		lost, err := watchRoster(ctx, m.cli, m.opts.memberKeyPrefix, m.roster)
		res <- result{lost, err}
	}()

	select {
	case r := <-res:
		if r.lost != "" {
			m.fail(errors.Wrap(ErrMemberLost, "", j.KV("member",
				memberName(r.lost, m.opts.memberKeyPrefix))))
		} else if ctx.Err() == nil {
			m.opts.Log.Error(ctx, errors.Wrap(r.err, "watch roster"))
			m.fail(errors.Wrap(r.err, "watch roster"))
		}
	case <-m.sess.Done():
		m.fail(ErrSessionClosed)
	case <-ctx.Done():
	}
}

func (m *Member) fail(err error) {
	m.deadOnce.Do(func() {
		m.deadErr = err
		close(m.dead)
	})
}

func (m *Member) failure() error {
	return m.deadErr
}

func (m *Member) checkAlive() error {
	select {
	case <-m.dead:
		return m.deadErr
	default:
		return nil
	}
}

func (m *Member) checkPeer(i int) error {
	if i < 0 || i >= m.Size() {
		return errors.Wrap(ErrNoSuchMember, "", j.MKV{"member": i, "size": m.Size()})
	}
	return nil
}

// nextOp returns the key prefix of the next collective. Must be called
// with mu held.
func (m *Member) nextOp(phase string) string {
	m.seq++
	return path.Join(m.opts.opsPrefix,
		strconv.FormatInt(m.roster.epoch, 10),
		strconv.FormatInt(m.seq, 10),
		phase)
}

func slotKey(op string, rank int) string {
	return fmt.Sprintf("%s/%08d", op, rank)
}

func (m *Member) put(ctx context.Context, key string, val []byte) error {
	_, err := m.cli.Put(ctx, key, string(val), clientv3.WithLease(m.sess.Lease()))
	if err != nil {
		return errors.Wrap(err, "put", j.KV("key", key))
	}
	return nil
}

// putSlots writes block(i) to the slot of every member i other than this
// one, in as few transactions as etcd allows.
func (m *Member) putSlots(ctx context.Context, op string, block func(i int) []byte) error {
	ops := make([]clientv3.Op, 0, m.Size()-1)
	for i := 0; i < m.Size(); i++ {
		if i == m.rank {
			continue
		}
		ops = append(ops, clientv3.OpPut(slotKey(op, i), string(block(i)),
			clientv3.WithLease(m.sess.Lease())))
	}
	for len(ops) > 0 {
		n := len(ops)
		if n > maxTxnOps {
			n = maxTxnOps
		}
		if _, err := m.cli.Txn(ctx).Then(ops[:n]...).Commit(); err != nil {
			return errors.Wrap(err, "put slots", j.KV("op", op))
		}
		ops = ops[n:]
	}
	return nil
}

// remove deletes keys once their only reader has consumed them.
func (m *Member) remove(ctx context.Context, key string, opts ...clientv3.OpOption) {
	if _, err := m.cli.Delete(ctx, key, opts...); err != nil {
		// NoReturnErr: The session lease removes it
		m.opts.Log.Error(ctx, errors.Wrap(err, "delete consumed keys", j.KV("key", key)))
	}
}

// take waits for the slot written to this member under op and deletes it.
func (m *Member) take(ctx context.Context, op string) ([]byte, error) {
	key := slotKey(op, m.rank)
	kvs, err := waitForKeys(ctx, m.cli, key, 1, m.dead, m.failure)
	if err != nil {
		m.opts.Log.Debug(ctx, "collective incomplete", j.KV("key", key))
		return nil, err
	}
	m.remove(ctx, key)
	return kvs[0].Value, nil
}

// awaitSlots waits for the slots of every member but this one under
// prefix, logging which members have not contributed when it gives up.
func (m *Member) awaitSlots(ctx context.Context, prefix string) ([]*mvccpb.KeyValue, error) {
	kvs, err := waitForKeys(ctx, m.cli, prefix, m.Size()-1, m.dead, m.failure)
	if err != nil {
		expected := make(map[int]bool, m.Size())
		for i := 0; i < m.Size(); i++ {
			if i != m.rank {
				expected[i] = true
			}
		}
		present := make(map[int]bool, len(kvs))
		for _, kv := range kvs {
			if i, err := strconv.Atoi(strings.TrimPrefix(string(kv.Key), prefix)); err == nil {
				present[i] = true
			}
		}
		m.opts.Log.Debug(ctx, "collective incomplete", j.MKV{
			"op": prefix, "missing": fmt.Sprint(Difference(expected, present)),
		})
		return nil, err
	}
	return kvs, nil
}

func (m *Member) begin(root int) error {
	if err := m.checkPeer(root); err != nil {
		return err
	}
	return m.checkAlive()
}

// Gather has every member but root write its block to its own slot. Root
// reads the slots and deletes them.
func (m *Member) Gather(ctx context.Context, root int, send []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(root); err != nil {
		return nil, err
	}
	return m.gather(ctx, root, send)
}

// Scatter has root write block i to the slot of member i. Each member
// reads its slot and deletes it.
func (m *Member) Scatter(ctx context.Context, root int, send []byte, width int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(root); err != nil {
		return nil, err
	}
	return m.scatter(ctx, root, send, width)
}

// Bcast is a Scatter where every member receives the same block.
func (m *Member) Bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(root); err != nil {
		return nil, err
	}
	return m.bcast(ctx, root, data)
}

// Barrier gathers an empty block on member 0 and broadcasts its release.
func (m *Member) Barrier(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(0); err != nil {
		return err
	}
	if _, err := m.gather(ctx, 0, nil); err != nil {
		return err
	}
	_, err := m.bcast(ctx, 0, nil)
	return err
}

func (m *Member) gather(ctx context.Context, root int, send []byte) ([]byte, error) {
	op := m.nextOp("gather")
	if m.rank != root {
		return nil, m.put(ctx, slotKey(op, m.rank), send)
	}

	prefix := op + "/"
	kvs, err := m.awaitSlots(ctx, prefix)
	if err != nil {
		return nil, err
	}
	m.remove(ctx, prefix, clientv3.WithPrefix())
	return assemble(kvs, prefix, m.Size(), root, send)
}

func (m *Member) scatter(ctx context.Context, root int, send []byte, width int) ([]byte, error) {
	op := m.nextOp("scatter")
	if m.rank == root {
		if len(send) != width*m.Size() {
			return nil, errors.Wrap(ErrBlockSize, "scatter", j.MKV{
				"expected": width * m.Size(), "got": len(send),
			})
		}
		err := m.putSlots(ctx, op, func(i int) []byte {
			return send[i*width : (i+1)*width]
		})
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), send[root*width:(root+1)*width]...), nil
	}

	b, err := m.take(ctx, op)
	if err != nil {
		return nil, err
	}
	if len(b) != width {
		return nil, errors.Wrap(ErrBlockSize, "scatter", j.MKV{
			"expected": width, "got": len(b),
		})
	}
	return b, nil
}

func (m *Member) bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	op := m.nextOp("bcast")
	if m.rank == root {
		err := m.putSlots(ctx, op, func(int) []byte { return data })
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), data...), nil
	}
	return m.take(ctx, op)
}

// assemble concatenates the gathered blocks in identity order, with own
// as root's block. Every block must be as wide as root's.
func assemble(kvs []*mvccpb.KeyValue, prefix string, size, root int, own []byte) ([]byte, error) {
	width := len(own)
	slots := make([][]byte, size)
	seen := make([]bool, size)
	slots[root], seen[root] = own, true

	for _, kv := range kvs {
		key := string(kv.Key)
		i, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
		if err != nil || i < 0 || i >= size || i == root {
			return nil, errors.Wrap(ErrBadSlot, "", j.KV("key", key))
		}
		if len(kv.Value) != width {
			return nil, errors.Wrap(ErrBlockSize, "gather", j.MKV{
				"from": i, "expected": width, "got": len(kv.Value),
			})
		}
		slots[i] = kv.Value
		seen[i] = true
	}

	out := make([]byte, 0, size*width)
	for i, s := range slots {
		if !seen[i] {
			return nil, errors.Wrap(ErrBadSlot, "missing", j.KV("member", i))
		}
		out = append(out, s...)
	}
	return out, nil
}
