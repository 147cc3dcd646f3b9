package grank

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootFor(t *testing.T) {
	testCases := []struct {
		name    string
		opName  string
		size    int
		expRoot int
	}{
		{name: "zero size returns invalid root", expRoot: -1},
		{name: "negative size returns invalid root", size: -3, expRoot: -1},
		{name: "single member is always root", opName: "anything", size: 1, expRoot: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expRoot, RootFor(tc.opName, tc.size))
		})
	}
}

func TestRootFor_StableWhenShrinking(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for i := 0; i < 1000; i++ {
		name := randString(r)
		root := RootFor(name, 20)
		require.True(t, root >= 0 && root < 20)

		// Names mapped below the smaller size keep their root
		if root < 10 {
			assert.Equal(t, root, RootFor(name, 10), name)
		}
	}
}

func TestRootFor_EvenDistribution(t *testing.T) {
	r := rand.New(rand.NewSource(0))

	nameCount := 100_000
	size := 20
	counts := make(map[int]int)
	for i := 0; i < nameCount; i++ {
		counts[RootFor(randString(r), size)] += 1
	}
	require.Len(t, counts, size)

	exp := float64(nameCount) / float64(size)
	// We assert that every member coordinates 90-110% of its share
	tenCent := exp * 0.1
	for root, count := range counts {
		assert.InDelta(t, exp, count, tenCent,
			"root %d coordinates %d of %d names", root, count, nameCount,
		)
	}
}

func TestRootFor_CustomHash(t *testing.T) {
	o := buildOptions([]Option{WithRootFor("scores"), WithHash(fnv.New64)})
	assert.Equal(t, rootFor(fnv.New64, "scores", 5), o.coordinator(5))
}

func randString(r *rand.Rand) string {
	alphabet := "abcdefghijklmnopqrstuvwxyz"
	var b strings.Builder
	for i := 0; i < 20; i++ {
		_ = b.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}
