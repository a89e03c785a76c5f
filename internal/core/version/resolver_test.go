package version

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		ref  string
		ok   bool
		want Tag
	}{
		{"app:v1.2.3", true, Tag{Kind: KindTriple, Major: "1", Minor: "2", Patch: "3"}},
		{"app:1.2.3", true, Tag{Kind: KindTriple, Major: "1", Minor: "2", Patch: "3"}},
		{"app:v2", true, Tag{Kind: KindTriple, Major: "2", Minor: "0", Patch: "0"}},
		{"app:1.4", true, Tag{Kind: KindTriple, Major: "1", Minor: "4", Patch: "0"}},
		{"app:42", true, Tag{Kind: KindInteger, Integer: "42"}},
		{"v3.1.0", true, Tag{Kind: KindTriple, Major: "3", Minor: "1", Patch: "0"}},
		{"registry:5000/app:v0.9.1", true, Tag{Kind: KindTriple, Major: "0", Minor: "9", Patch: "1"}},
		{"app:v1.02.007", true, Tag{Kind: KindTriple, Major: "1", Minor: "2", Patch: "7"}},
		{"app:99999999999999999999999", true, Tag{Kind: KindInteger, Integer: "99999999999999999999999"}},
		{"app:latest", false, Tag{}},
		{"app:v1.2.3-rc1", false, Tag{}},
		{"app:1.2.3.4", false, Tag{}},
		{"app:", false, Tag{}},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := Parse(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagPart(t *testing.T) {
	assert.Equal(t, "v1.2", TagPart("registry:5000/app:v1.2"))
	assert.Equal(t, "v1.2", TagPart("v1.2"))
	assert.Equal(t, "", TagPart("app:"))
}

// =============================================================================
// Next Tests
// =============================================================================

func TestNext_BumpsHighestTriple(t *testing.T) {
	got := Next([]string{"app:v1.2.3", "app:v1.9.0", "app:v2.0.0"})
	assert.Equal(t, "v2.0.1", got)
}

func TestNext_IntegersOnly(t *testing.T) {
	got := Next([]string{"app:3", "app:7"})
	assert.Equal(t, "8", got)
}

func TestNext_Empty(t *testing.T) {
	assert.Equal(t, "v1.0.0", Next([]string{}))
	assert.Equal(t, "v1.0.0", Next(nil))
}

func TestNext_TripleBeatsLargerInteger(t *testing.T) {
	got := Next([]string{"app:v1.0.0", "app:99"})
	assert.Equal(t, "v1.0.1", got)
}

func TestNext_IgnoresUnparseable(t *testing.T) {
	assert.Equal(t, "v1.0.0", Next([]string{"app:latest", "app:sha-1234abc"}))
	assert.Equal(t, "v0.3.1", Next([]string{"app:latest", "app:v0.3.0"}))
}

func TestNext_ShortTriplesDefaultToZero(t *testing.T) {
	assert.Equal(t, "v2.0.1", Next([]string{"app:v2"}))
	assert.Equal(t, "v1.4.1", Next([]string{"app:1.4", "app:v1.3.9"}))
}

func TestNext_OrderIndependent(t *testing.T) {
	tags := []string{"app:v1.10.0", "app:v1.9.9", "app:v1.2.30", "app:5"}
	want := Next(tags)
	assert.Equal(t, "v1.10.1", want)

	reversed := make([]string, len(tags))
	for i, tag := range tags {
		reversed[len(tags)-1-i] = tag
	}
	assert.Equal(t, want, Next(reversed))
}

func TestNext_NeverRepeatsObservedTag(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		var tags []string
		for j := 0; j < rng.Intn(6)+1; j++ {
			if rng.Intn(2) == 0 {
				tags = append(tags, "app:v"+strconv.Itoa(rng.Intn(4))+"."+strconv.Itoa(rng.Intn(4))+"."+strconv.Itoa(rng.Intn(4)))
			} else {
				tags = append(tags, "app:"+strconv.Itoa(rng.Intn(50)))
			}
		}

		next, ok := Parse(Next(tags))
		require.True(t, ok)
		for _, ref := range tags {
			seen, ok := Parse(ref)
			require.True(t, ok)
			if seen.Kind == next.Kind {
				assert.True(t, seen.Less(next), "%v should follow %s", tags, ref)
			}
		}
	}
}

func TestNext_TopOfRange(t *testing.T) {
	tests := []struct {
		name string
		refs []string
		want string
	}{
		{"patch at max", []string{"app:v1.0.18446744073709551615"}, "v1.0.18446744073709551616"},
		{"integer at max", []string{"app:18446744073709551615"}, "18446744073709551616"},
		{"patch carries digits", []string{"app:v1.2.999"}, "v1.2.1000"},
		{"integer carries digits", []string{"app:99"}, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.refs))
		})
	}
}

func TestNext_MonotonicPastUint64(t *testing.T) {
	tags := []string{"app:v1.0.18446744073709551615"}
	for i := 0; i < 3; i++ {
		next := Next(tags)
		prev, _ := Parse(tags[len(tags)-1])
		got, ok := Parse(next)
		require.True(t, ok, next)
		assert.True(t, prev.Less(got), "%s should follow %s", next, tags[len(tags)-1])
		tags = append(tags, "app:"+next)
	}
	assert.Equal(t, "v1.0.18446744073709551619", Next(tags))
}

func TestLess_ComparesByMagnitude(t *testing.T) {
	small, _ := Parse("app:9")
	large, _ := Parse("app:10")
	assert.True(t, small.Less(large))
	assert.False(t, large.Less(small))

	a, _ := Parse("app:v1.9.0")
	b, _ := Parse("app:v1.10.0")
	assert.True(t, a.Less(b))
}

func TestIncrementDecimal(t *testing.T) {
	assert.Equal(t, "1", incrementDecimal("0"))
	assert.Equal(t, "10", incrementDecimal("9"))
	assert.Equal(t, "1000", incrementDecimal("999"))
	assert.Equal(t, "1240", incrementDecimal("1239"))
}
