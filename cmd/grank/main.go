// Command grank draws a random value on every member of a group and prints
// the global rank of each value, one line per member in identity order.
//
// By default the group runs in-process. With -etcd the process joins a group
// formed through etcd; start -size processes with the same -group to run it.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/log"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luno/grank"
	"github.com/luno/grank/etcdgroup"
	"github.com/luno/grank/memgroup"
)

func main() {
	c := defaultConfig()

	configPath := flag.String("config", "", "Path to a YAML configuration file")
	members := flag.Int("n", c.Members, "Number of in-memory members")
	kind := flag.String("kind", c.Kind, "Value kind: float or int")
	seed := flag.Int64("seed", c.Seed, "Base random seed, offset by member identity")
	minSize := flag.Int("min-size", c.MinSize, "Abort if the group is smaller than this")
	rootFor := flag.String("root-for", "", "Hash this operation name to pick the coordinator")
	timeout := flag.Duration("timeout", c.Timeout, "Give up after this long")
	debug := flag.Bool("debug", false, "Log collective activity")
	endpoints := flag.String("etcd", "", "Comma separated etcd endpoints; joins an etcd group when set")
	group := flag.String("group", c.Etcd.Group, "etcd group name")
	size := flag.Int("size", 0, "etcd group size")
	member := flag.String("member", "", "etcd member name (random if empty)")
	flag.Parse()

	ctx := context.Background()

	if *configPath != "" {
		if err := loadConfig(*configPath, &c); err != nil {
			log.Error(ctx, err)
			os.Exit(1)
		}
	}

	// Flags given on the command line override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "n":
			c.Members = *members
		case "kind":
			c.Kind = *kind
		case "seed":
			c.Seed = *seed
		case "min-size":
			c.MinSize = *minSize
		case "root-for":
			c.RootFor = *rootFor
		case "timeout":
			c.Timeout = *timeout
		case "debug":
			c.Debug = *debug
		case "etcd":
			c.Etcd.Endpoints = strings.Split(*endpoints, ",")
		case "group":
			c.Etcd.Group = *group
		case "size":
			c.Etcd.Size = *size
		case "member":
			c.Etcd.Member = *member
		}
	})

	if err := c.validate(); err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var err error
	if len(c.Etcd.Endpoints) > 0 {
		err = runEtcd(ctx, c)
	} else {
		err = runMemory(ctx, c)
	}
	if err != nil {
		log.Error(ctx, err)
		os.Exit(1)
	}
}

func runMemory(ctx context.Context, c Config) error {
	log.Info(ctx, "running in-memory group", j.MKV{"members": c.Members, "kind": c.Kind})

	g := memgroup.New(c.Members)
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range g.Members() {
		m := m
		eg.Go(func() error {
			err := runMember(ctx, m, c)
			if err != nil {
				// A failed member takes the whole group down
				g.Abort(err)
			}
			return err
		})
	}
	return eg.Wait()
}

func runEtcd(ctx context.Context, c Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return errors.Wrap(err, "zap logger")
	}
	defer func() { _ = logger.Sync() }()

	cli, err := clientv3.New(clientv3.Config{
		Endpoints: c.Etcd.Endpoints,
		Context:   ctx,
		Logger:    logger,
	})
	if err != nil {
		return errors.Wrap(err, "etcd client")
	}
	defer cli.Close()

	sess, err := concurrency.NewSession(cli, concurrency.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "etcd session")
	}
	defer sess.Close()

	var opts etcdgroup.Options
	opts.MemberName = c.Etcd.Member
	if c.Debug {
		opts.Log = log.Jettison{}
	}
	m, err := etcdgroup.Join(ctx, sess, c.Etcd.Group, c.Etcd.Size, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(context.Background()); err != nil {
			// NoReturnErr: The session lease cleans up
			log.Error(ctx, errors.Wrap(err, "close member"))
		}
	}()

	return runMember(ctx, m, c)
}

func runMember(ctx context.Context, comm grank.Comm, c Config) error {
	ctx = log.ContextWith(ctx, j.KV("member", comm.Rank()))

	if err := grank.RequireSize(comm, c.MinSize); err != nil {
		return err
	}

	k, err := c.kind()
	if err != nil {
		return err
	}

	// Seed differently for each member
	r := rand.New(rand.NewSource(c.Seed + int64(comm.Rank())))
	var value grank.Payload
	if k == grank.KindInt32 {
		value = grank.Int32(r.Int31n(100))
	} else {
		value = grank.Float32(r.Float32())
	}

	opts := []grank.Option{grank.WithKindAgreement()}
	if c.RootFor != "" {
		opts = append(opts, grank.WithRootFor(c.RootFor))
	}
	if c.Debug {
		opts = append(opts, grank.WithLogger(log.Jettison{}))
	}

	rank, err := grank.GlobalRank(ctx, comm, value, opts...)
	if err != nil {
		return err
	}

	// Take turns printing, in identity order
	for i := 0; i < comm.Size(); i++ {
		if err := comm.Barrier(ctx); err != nil {
			return err
		}
		if i == comm.Rank() {
			fmt.Printf("Rank for %v on process %d - %d\n", value, comm.Rank(), rank)
		}
	}
	return comm.Barrier(ctx)
}
