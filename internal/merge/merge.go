// Package merge reconciles a queued edit with changes made to the page since
// the edit was queued.
package merge

import (
	"slices"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ThreeWay is a line based three-way merge. Changes from both sides are
// combined when they touch different lines; overlapping changes that differ
// make the merge fail.
type ThreeWay struct{}

// hunk replaces base[start:end] with lines.
type hunk struct {
	start, end int
	lines      []string
	mine       bool
}

// Merge applies the changes from base to mine on top of theirs. It returns
// false if the two sides changed the same lines differently.
func (ThreeWay) Merge(base, mine, theirs string) (string, bool) {
	switch {
	case mine == theirs, base == theirs:
		return mine, true
	case base == mine:
		return theirs, true
	}

	baseLines := difflib.SplitLines(base)
	mineLines := difflib.SplitLines(mine)
	theirLines := difflib.SplitLines(theirs)

	hunks := append(changes(baseLines, mineLines, true), changes(baseLines, theirLines, false)...)
	sort.SliceStable(hunks, func(i, j int) bool {
		if hunks[i].start != hunks[j].start {
			return hunks[i].start < hunks[j].start
		}
		return hunks[i].end < hunks[j].end
	})

	var out []string
	pos := 0
	for i := 0; i < len(hunks); {
		// Group every hunk that overlaps or touches the current range.
		start, end := hunks[i].start, hunks[i].end
		j := i + 1
		for j < len(hunks) && hunks[j].start <= end {
			end = max(end, hunks[j].end)
			j++
		}
		group := hunks[i:j]

		out = append(out, baseLines[pos:start]...)
		lines, ok := resolve(baseLines, start, end, group)
		if !ok {
			return "", false
		}
		out = append(out, lines...)

		pos = end
		i = j
	}
	out = append(out, baseLines[pos:]...)

	// SplitLines terminates the last line; undo that.
	return strings.TrimSuffix(strings.Join(out, ""), "\n"), true
}

// changes lists the hunks that turn a into b.
func changes(a, b []string, mine bool) []hunk {
	var hunks []hunk
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		hunks = append(hunks, hunk{start: op.I1, end: op.I2, lines: b[op.J1:op.J2], mine: mine})
	}
	return hunks
}

// resolve merges a group of overlapping hunks covering base[start:end].
func resolve(base []string, start, end int, group []hunk) ([]string, bool) {
	var hasMine, hasTheirs bool
	for _, h := range group {
		if h.mine {
			hasMine = true
		} else {
			hasTheirs = true
		}
	}

	mine := apply(base, start, end, group, true)
	theirs := apply(base, start, end, group, false)
	switch {
	case !hasTheirs:
		return mine, true
	case !hasMine:
		return theirs, true
	case slices.Equal(mine, theirs):
		return mine, true
	}
	return nil, false
}

// apply rewrites base[start:end] with the hunks of one side.
func apply(base []string, start, end int, group []hunk, mine bool) []string {
	var out []string
	pos := start
	for _, h := range group {
		if h.mine != mine {
			continue
		}
		out = append(out, base[pos:h.start]...)
		out = append(out, h.lines...)
		pos = h.end
	}
	return append(out, base[pos:end]...)
}
