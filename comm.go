package grank

import "context"

// Comm is the process-group substrate the collective is built on.
//
// All collective methods block until every member of the group has made the
// matching call. Members must issue collectives in the same order, and a
// member that never makes the call leaves the others blocked until their
// context is done.
type Comm interface {
	// Rank returns this process's identity in [0, Size).
	Rank() int
	// Size returns the number of processes in the group.
	Size() int

	// Gather sends one block from every member to root. Root receives the
	// blocks concatenated in identity order, other members receive nil.
	// Every member must send a block of the same length.
	Gather(ctx context.Context, root int, send []byte) ([]byte, error)

	// Scatter splits send (only read on root) into Size slots of width
	// bytes and delivers slot i to member i.
	Scatter(ctx context.Context, root int, send []byte, width int) ([]byte, error)

	// Bcast delivers data (only read on root) to every member.
	Bcast(ctx context.Context, root int, data []byte) ([]byte, error)

	// Barrier returns once every member has entered it.
	Barrier(ctx context.Context) error
}
