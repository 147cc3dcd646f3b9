// Package memgroup provides an in-process process group whose members talk
// over buffered channels, one FIFO link per ordered pair of members.
//
// Collectives are built from point-to-point messages on those links. Since
// every link is FIFO and every member issues collectives in the same order,
// messages always match up with the call that expects them.
package memgroup

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrAborted      = errors.New("group aborted", j.C("ERR_0c9d3e7a51f84b26"))
	ErrNoSuchMember = errors.New("no such member", j.C("ERR_a8e261f4d09b3c75"))
	ErrBlockSize    = errors.New("unexpected block size", j.C("ERR_73f5b0c29e1d48a6"))
)

// linkDepth is the number of messages a link buffers before Send blocks.
const linkDepth = 16

// Group is a fixed set of members created together.
type Group struct {
	links   [][]chan []byte // links[src][dst]
	members []*Member

	done      chan struct{}
	abortOnce sync.Once
	cause     error
}

// New returns a group of size members. It panics if size is not positive.
func New(size int) *Group {
	if size < 1 {
		panic("memgroup: size must be positive")
	}
	g := &Group{
		links:   make([][]chan []byte, size),
		members: make([]*Member, size),
		done:    make(chan struct{}),
	}
	for src := range g.links {
		g.links[src] = make([]chan []byte, size)
		for dst := range g.links[src] {
			g.links[src][dst] = make(chan []byte, linkDepth)
		}
		g.members[src] = &Member{g: g, rank: src}
	}
	return g
}

// Size returns the number of members.
func (g *Group) Size() int {
	return len(g.members)
}

// Member returns the member with identity i.
func (g *Group) Member(i int) *Member {
	return g.members[i]
}

// Members returns all members in identity order.
func (g *Group) Members() []*Member {
	return append([]*Member(nil), g.members...)
}

// Abort fails every pending and future operation on the group with
// ErrAborted. It models a member dying mid-collective: there is no recovery,
// the whole group is done. Only the first call has an effect.
func (g *Group) Abort(cause error) {
	g.abortOnce.Do(func() {
		g.cause = cause
		close(g.done)
	})
}

func (g *Group) abortErr() error {
	if g.cause == nil {
		return ErrAborted
	}
	return errors.Wrap(ErrAborted, g.cause.Error())
}

func (g *Group) aborted() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Member is one process of a Group. Collectives on a member are serialised,
// but Send and Recv must not be mixed with collectives running concurrently
// on the same member.
type Member struct {
	g    *Group
	rank int

	mu sync.Mutex
}

func (m *Member) Rank() int { return m.rank }

func (m *Member) Size() int { return m.g.Size() }

func (m *Member) checkPeer(i int) error {
	if i < 0 || i >= m.g.Size() {
		return errors.Wrap(ErrNoSuchMember, "", j.MKV{"member": i, "size": m.g.Size()})
	}
	return nil
}

// Send delivers a copy of data to member dst. It blocks only while the link
// to dst is full.
func (m *Member) Send(ctx context.Context, dst int, data []byte) error {
	if err := m.checkPeer(dst); err != nil {
		return err
	}
	if m.g.aborted() {
		return m.g.abortErr()
	}

	b := append([]byte(nil), data...)
	select {
	case m.g.links[m.rank][dst] <- b:
		return nil
	case <-m.g.done:
		return m.g.abortErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next message sent by member src.
func (m *Member) Recv(ctx context.Context, src int) ([]byte, error) {
	if err := m.checkPeer(src); err != nil {
		return nil, err
	}
	if m.g.aborted() {
		return nil, m.g.abortErr()
	}

	select {
	case b := <-m.g.links[src][m.rank]:
		return b, nil
	case <-m.g.done:
		return nil, m.g.abortErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Member) Gather(ctx context.Context, root int, send []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gather(ctx, root, send)
}

func (m *Member) Scatter(ctx context.Context, root int, send []byte, width int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scatter(ctx, root, send, width)
}

func (m *Member) Bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bcast(ctx, root, data)
}

// Barrier gathers an empty block on member 0 and broadcasts its release.
func (m *Member) Barrier(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.gather(ctx, 0, nil); err != nil {
		return err
	}
	_, err := m.bcast(ctx, 0, nil)
	return err
}

func (m *Member) gather(ctx context.Context, root int, send []byte) ([]byte, error) {
	if err := m.checkPeer(root); err != nil {
		return nil, err
	}
	if m.rank != root {
		return nil, m.Send(ctx, root, send)
	}

	out := make([]byte, 0, len(send)*m.Size())
	for src := 0; src < m.Size(); src++ {
		if src == root {
			out = append(out, send...)
			continue
		}
		b, err := m.Recv(ctx, src)
		if err != nil {
			return nil, err
		}
		if len(b) != len(send) {
			return nil, errors.Wrap(ErrBlockSize, "gather", j.MKV{
				"from": src, "expected": len(send), "got": len(b),
			})
		}
		out = append(out, b...)
	}
	return out, nil
}

func (m *Member) scatter(ctx context.Context, root int, send []byte, width int) ([]byte, error) {
	if err := m.checkPeer(root); err != nil {
		return nil, err
	}
	if m.rank != root {
		b, err := m.Recv(ctx, root)
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

	if len(send) != width*m.Size() {
		return nil, errors.Wrap(ErrBlockSize, "scatter", j.MKV{
			"expected": width * m.Size(), "got": len(send),
		})
	}
	for dst := 0; dst < m.Size(); dst++ {
		if dst == root {
			continue
		}
		if err := m.Send(ctx, dst, send[dst*width:(dst+1)*width]); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), send[root*width:(root+1)*width]...), nil
}

func (m *Member) bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := m.checkPeer(root); err != nil {
		return nil, err
	}
	if m.rank != root {
		return m.Recv(ctx, root)
	}
	for dst := 0; dst < m.Size(); dst++ {
		if dst == root {
			continue
		}
		if err := m.Send(ctx, dst, data); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), data...), nil
}
