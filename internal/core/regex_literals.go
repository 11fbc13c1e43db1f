package core

import (
	"sort"
	"strings"

	"github.com/standardbeagle/reflexcore/internal/types"
)

// terminators are the regex metacharacters that end the current literal
// buffer (spec §4.1).
const terminators = ".*+?|()[]{}^$"

// classEscapes are backslash-escapes that denote a character class rather
// than a literal character; they also terminate the buffer.
var classEscapes = map[byte]bool{
	's': true, 'd': true, 'w': true,
	'S': true, 'D': true, 'W': true,
	'n': true, 't': true, 'r': true,
	'b': true, 'B': true,
}

// ExtractLiterals extracts guaranteed literal substrings from a regex
// pattern (spec §4.1). It is a heuristic left-to-right scan, not a full
// regex-AST walk: sufficient to seed trigram lookups, never used to
// evaluate the pattern itself.
//
// Every returned literal is guaranteed to appear verbatim in any string the
// pattern matches (soundness, spec §8 property 7); literals shorter than 3
// bytes are discarded since they carry no trigram.
func ExtractLiterals(pattern string) []string {
	var literals []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() >= 3 {
			literals = append(literals, buf.String())
		}
		buf.Reset()
	}

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		if c == '\\' && i+1 < len(pattern) {
			next := pattern[i+1]
			if classEscapes[next] {
				flush()
			} else {
				buf.WriteByte(next)
			}
			i += 2
			continue
		}

		if strings.IndexByte(terminators, c) >= 0 {
			flush()
			i++
			continue
		}

		buf.WriteByte(c)
		i++
	}
	flush()

	return dedupSortStrings(literals)
}

func dedupSortStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TrigramsFromLiterals is the union of trigrams over all literals,
// deduplicated and sorted ascending (spec §4.1: "Trigrams are the union of
// trigrams over all emitted literals").
func TrigramsFromLiterals(literals []string) []types.Trigram {
	seen := make(map[types.Trigram]struct{})
	var out []types.Trigram
	for _, lit := range literals {
		for _, tri := range ExtractTrigrams([]byte(lit)) {
			if _, ok := seen[tri]; ok {
				continue
			}
			seen[tri] = struct{}{}
			out = append(out, tri)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
