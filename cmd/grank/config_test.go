package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luno/grank"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grank.yaml")
	err := os.WriteFile(path, []byte(`
members: 8
kind: int
seed: 42
timeout: 5s
etcd:
  endpoints: [localhost:2379]
  group: scores
  size: 3
`), 0o600)
	require.NoError(t, err)

	c := defaultConfig()
	jtest.RequireNil(t, loadConfig(path, &c))

	assert.Equal(t, 8, c.Members)
	assert.Equal(t, int64(42), c.Seed)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 1, c.MinSize)
	assert.Equal(t, []string{"localhost:2379"}, c.Etcd.Endpoints)
	assert.Equal(t, "scores", c.Etcd.Group)
	assert.Equal(t, 3, c.Etcd.Size)

	k, err := c.kind()
	jtest.RequireNil(t, err)
	assert.Equal(t, grank.KindInt32, k)
	jtest.AssertNil(t, c.validate())
}

func TestLoadConfig_Missing(t *testing.T) {
	c := defaultConfig()
	err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), &c)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
		expOK  bool
		expErr error
	}{
		{name: "defaults", modify: func(*Config) {}, expOK: true},
		{name: "bad kind",
			modify: func(c *Config) { c.Kind = "int64" },
			expErr: grank.ErrUnsupportedKind,
		},
		{name: "no members",
			modify: func(c *Config) { c.Members = 0 },
		},
		{name: "etcd without size",
			modify: func(c *Config) { c.Etcd.Endpoints = []string{"localhost:2379"} },
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := defaultConfig()
			tc.modify(&c)
			err := c.validate()
			if tc.expOK {
				jtest.AssertNil(t, err)
			} else if tc.expErr != nil {
				jtest.Assert(t, tc.expErr, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
