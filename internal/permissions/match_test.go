package permissions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		target  string
		want    bool
	}{
		{"*", "note", true},
		{"*", "a/b/c", true},
		{"private/*", "private/secret", true},
		{"private/*", "public/secret", false},
		{"memory_*", "memory_travel", true},
		{"memory_*", "memory_personal", true},
		{"memory_*", "memories", false},
		{"?ote", "note", true},
		{"?ote", "nnote", false},
		{"notes://*", "notes://2024/jan", true},
		{"notes://", "notes://anything", true},
		{"notes://", "files://anything", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, MatchPattern(tc.pattern, tc.target),
			"pattern %q against %q", tc.pattern, tc.target)
	}
}

// TestGlobMatchLiteralRoundTrip verifies the glob matcher always matches a
// target against itself and against a star-joined split of itself.
func TestGlobMatchLiteralRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := rapid.StringMatching(`[a-z/_]{1,20}`).Draw(t, "target")

		require.True(t, globMatch(target, target))
		require.True(t, globMatch("*", target))

		// Split at a random point and rejoin with '*'.
		cut := rapid.IntRange(0, len(target)).Draw(t, "cut")
		pattern := target[:cut] + "*" + target[cut:]
		require.True(t, globMatch(pattern, target))
	})
}

// TestGlobMatchStarNeverUndershoots verifies a prefix pattern with a
// trailing star matches exactly the targets with that prefix.
func TestGlobMatchStarNeverUndershoots(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "prefix")
		target := rapid.StringMatching(`[a-z]{0,10}`).Draw(t, "target")

		got := globMatch(prefix+"*", target)
		want := strings.HasPrefix(target, prefix)
		require.Equal(t, want, got)
	})
}
