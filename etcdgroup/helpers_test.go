package etcdgroup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func etcdEndpoints() []string {
	if v, ok := os.LookupEnv("TESTING_ETCD_ENDPOINTS"); ok {
		return strings.Split(v, ",")
	}
	return []string{"http://localhost:2379"}
}

func etcdForTesting(t testing.TB) *clientv3.Client {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdEndpoints(),
		DialTimeout: time.Second,
		// Dialing hangs without error if the v3 endpoint is unavailable.
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
		Logger:      zap.NewNop(),
	})
	if errors.Is(err, context.DeadlineExceeded) {
		t.Skip("Couldn't connect to local etcd v3 instance, skipping...")
	}
	jtest.RequireNil(t, err)
	t.Cleanup(func() {
		_ = cli.Close()
	})
	return cli
}

func sessionForTesting(t testing.TB, cli *clientv3.Client) *concurrency.Session {
	s, err := concurrency.NewSession(cli, concurrency.WithTTL(5))
	require.NoError(t, err)
	t.Cleanup(func() {
		select {
		case <-s.Done():
			return
		default:
		}
		err := s.Close()
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			// Session closed during test.
			return
		}
		require.NoError(t, err)
	})
	return s
}

func rando(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
