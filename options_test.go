package grank

import (
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/luno/jettison/log"
	"github.com/stretchr/testify/assert"

	"github.com/luno/grank/memgroup"
)

func TestBuildOptions(t *testing.T) {
	l := log.Jettison{}

	testCases := []struct {
		name string
		opts []Option

		expRoot      int
		expRootName  string
		expAgreeKind bool
		expLog       log.Interface
	}{
		{name: "defaults",
			expLog: noopLogger{},
		},
		{name: "fixed root",
			opts:    []Option{WithRoot(3)},
			expRoot: 3,
			expLog:  noopLogger{},
		},
		{name: "fixed root overrides hashed root",
			opts:    []Option{WithRootFor("a"), WithRoot(2)},
			expRoot: 2,
			expLog:  noopLogger{},
		},
		{name: "hashed root",
			opts:        []Option{WithRootFor("a")},
			expRootName: "a",
			expLog:      noopLogger{},
		},
		{name: "logger and kind agreement",
			opts:         []Option{WithLogger(l), WithKindAgreement()},
			expAgreeKind: true,
			expLog:       l,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := buildOptions(tc.opts)
			assert.Equal(t, tc.expRoot, o.root)
			assert.Equal(t, tc.expRootName, o.rootName)
			assert.Equal(t, tc.expAgreeKind, o.agreeKind)
			assert.Equal(t, tc.expLog, o.log)
			assert.NotNil(t, o.hasher)
		})
	}
}

func TestRequireSize(t *testing.T) {
	g := memgroup.New(3)

	jtest.AssertNil(t, RequireSize(g.Member(0), 3))
	jtest.Assert(t, ErrGroupSize, RequireSize(g.Member(0), 4))
}
