package main

import (
	"os"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"

	"github.com/luno/grank"
)

// Config holds the settings of one demo run.
type Config struct {
	// Members is the size of the in-memory group. Ignored with etcd.
	Members int    `yaml:"members"`
	Kind    string `yaml:"kind"` // float or int
	Seed    int64  `yaml:"seed"`
	// MinSize aborts the run if the group is smaller
	MinSize int           `yaml:"min_size"`
	RootFor string        `yaml:"root_for"`
	Timeout time.Duration `yaml:"timeout"`
	Debug   bool          `yaml:"debug"`

	Etcd EtcdConfig `yaml:"etcd"`
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Group     string   `yaml:"group"`
	Size      int      `yaml:"size"`
	Member    string   `yaml:"member"`
}

func defaultConfig() Config {
	return Config{
		Members: 4,
		Kind:    "float",
		Seed:    time.Now().UnixNano(),
		MinSize: 1,
		Timeout: time.Minute,
		Etcd: EtcdConfig{
			Group: "grank",
		},
	}
}

func loadConfig(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config", j.KV("path", path))
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return errors.Wrap(err, "parse config", j.KV("path", path))
	}
	return nil
}

func (c Config) validate() error {
	if _, err := c.kind(); err != nil {
		return err
	}
	if len(c.Etcd.Endpoints) > 0 {
		if c.Etcd.Group == "" || c.Etcd.Size < 1 {
			return errors.New("etcd mode needs a group name and size")
		}
		return nil
	}
	if c.Members < 1 {
		return errors.New("members must be positive", j.KV("members", c.Members))
	}
	return nil
}

func (c Config) kind() (grank.Kind, error) {
	switch c.Kind {
	case "float", "float32":
		return grank.KindFloat32, nil
	case "int", "int32":
		return grank.KindInt32, nil
	default:
		return grank.KindUnknown, errors.Wrap(grank.ErrUnsupportedKind, "parse kind", j.KV("kind", c.Kind))
	}
}
