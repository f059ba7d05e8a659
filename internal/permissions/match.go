package permissions

import "strings"

// MatchPattern reports whether a target matches a single pattern. Three
// pattern forms are supported:
//
//   - glob: contains '*' (any run, including '/') or '?' (one byte)
//   - URI prefix: contains "://" and no glob chars, prefix match
//   - literal: anything else, exact match
func MatchPattern(pattern, target string) bool {
	switch {
	case strings.ContainsAny(pattern, "*?"):
		return globMatch(pattern, target)
	case strings.Contains(pattern, "://"):
		return strings.HasPrefix(target, pattern)
	default:
		return pattern == target
	}
}

// matchAny reports whether any pattern in the list matches the target.
func matchAny(patterns []string, target string) bool {
	for _, p := range patterns {
		if MatchPattern(p, target) {
			return true
		}
	}
	return false
}

// globMatch matches '*' against any run of bytes and '?' against exactly
// one. Unlike path.Match, '*' crosses '/' so "memory_*" and "private/*"
// behave the way property names need.
func globMatch(pattern, target string) bool {
	// Iterative backtracking match over the last '*' seen.
	var (
		p, t       int
		starP      = -1
		starT      int
	)

	for t < len(target) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' ||
			pattern[p] == target[t]):

			p++
			t++

		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starT = t
			p++

		case starP >= 0:
			// Backtrack: let the last '*' consume one more byte.
			starT++
			p = starP + 1
			t = starT

		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
