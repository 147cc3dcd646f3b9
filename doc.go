// Package grank provides a global rank collective over a group of processes.
//
// Every member of a group holds one int32 or float32 value. GlobalRank gathers the values to a coordinator,
// which sorts them stably and sends each member back the position of its own value in that order.
// Equal values keep identity order, so the member with the lower identity receives the lower rank.
//
// Members talk through a Comm, a transport providing point-to-multipoint collectives to a fixed size group.
// Package memgroup provides an in-process Comm built on channels.
// Package etcdgroup provides a Comm for separate processes, using etcd keys bound to a concurrency.Session.
//
// The coordinator defaults to identity 0. WithRootFor consistently hashes an operation name to one of the
// n members, spreading the work of independent collectives across the group.
//
// All members of a group must call GlobalRank with the same options and in the same order as their other collectives.
package grank
