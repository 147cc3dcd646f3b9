package grank

import (
	"context"
	"hash"
	"hash/fnv"

	"github.com/luno/jettison"
	"github.com/luno/jettison/log"
)

var defaultHasher = fnv.New64a

type hasher func() hash.Hash64

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...jettison.Option) {}
func (noopLogger) Info(context.Context, string, ...jettison.Option)  {}
func (noopLogger) Error(context.Context, error, ...jettison.Option)  {}

type Option func(*options)

// WithRoot sets the identity of the coordinating process. Defaults to 0.
// Every member of the group must pass the same root.
func WithRoot(root int) Option {
	return func(o *options) {
		o.root = root
		o.rootName = ""
	}
}

// WithRootFor picks the coordinating process by consistently hashing name
// onto the group. Different operation names spread the sorting work across
// members while every member still agrees on the coordinator.
func WithRootFor(name string) Option {
	return func(o *options) {
		o.rootName = name
	}
}

// WithHash overrides the default 64-bit FNV-1a hash used by WithRootFor.
func WithHash(h func() hash.Hash64) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithLogger sets the logger used for collective activity.
func WithLogger(l log.Interface) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithKindAgreement adds a handshake before the gather in which the
// coordinator checks that every member declared the same payload kind.
// On disagreement every member returns ErrKindMismatch instead of ranking
// mixed bytes. It costs one extra gather and broadcast.
func WithKindAgreement() Option {
	return func(o *options) {
		o.agreeKind = true
	}
}

type options struct {
	root      int
	rootName  string
	hasher    hasher
	log       log.Interface
	agreeKind bool
}

func buildOptions(opts []Option) options {
	o := options{
		hasher: defaultHasher,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = noopLogger{}
	}
	return o
}

// coordinator returns the root identity for a group of size members.
func (o options) coordinator(size int) int {
	if o.rootName != "" {
		return rootFor(o.hasher, o.rootName, size)
	}
	return o.root
}
