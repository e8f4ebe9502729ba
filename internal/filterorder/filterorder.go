// Package filterorder keeps the ordering rule for the user-supplied audio
// filter chain as data: known filter names carry a fixed rank, everything
// else sorts last, and insertion is a pure function so the rule can be
// tested in isolation. Parsing of the colon-separated audio-filter option
// also lives here, outside the output core itself.
package filterorder

import (
	"math"
	"strings"
)

// TimeStretchFilter is the stage inserted first in the chain when time
// stretching is enabled, ahead of every rank-ordered user filter.
const TimeStretchFilter = "scaletempo"

// ranks maps the filter names with a fixed position in the chain. Every
// other name ranks math.MaxInt and keeps its relative insertion order.
var ranks = map[string]int{
	"equalizer":   0,
	"compressor":  1,
	"spatializer": 2,
	"stereo_pan":  3,
	"headphone":   4,
}

// Rank returns the deterministic chain rank for a filter name.
func Rank(name string) int {
	if r, ok := ranks[name]; ok {
		return r
	}
	return math.MaxInt
}

// Insert returns chain with name inserted before the first entry of
// strictly greater rank, leaving equal-rank entries ahead of it. chain is
// not modified.
func Insert(chain []string, name string) []string {
	rank := Rank(name)
	pos := len(chain)
	for i, existing := range chain {
		if Rank(existing) > rank {
			pos = i
			break
		}
	}
	out := make([]string, 0, len(chain)+1)
	out = append(out, chain[:pos]...)
	out = append(out, name)
	return append(out, chain[pos:]...)
}

// Parse splits a colon-separated filter list, dropping empty entries.
func Parse(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ":") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Join is the inverse of Parse.
func Join(chain []string) string {
	return strings.Join(chain, ":")
}
