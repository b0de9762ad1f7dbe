package extract

import "sort"

// AliasState tracks, for one traversal, which pointer variables alias each
// other and what each was last assigned. It is flow-insensitive and scoped
// by simple name only, so results are candidates, not facts.
type AliasState struct {
	aliases     map[string]map[string]struct{}
	assignments map[string]string
}

// NewAliasState returns an empty state.
func NewAliasState() *AliasState {
	return &AliasState{
		aliases:     make(map[string]map[string]struct{}),
		assignments: make(map[string]string),
	}
}

// AddAlias records that p and q may refer to the same target. Symmetric.
func (a *AliasState) AddAlias(p, q string) {
	if p == "" || q == "" || p == q {
		return
	}
	a.link(p, q)
	a.link(q, p)
}

func (a *AliasState) link(from, to string) {
	set, ok := a.aliases[from]
	if !ok {
		set = make(map[string]struct{})
		a.aliases[from] = set
	}
	set[to] = struct{}{}
}

// AddAssignment records lhs = rhs. The last write wins.
func (a *AliasState) AddAssignment(lhs, rhs string) {
	if lhs == "" || rhs == "" {
		return
	}
	a.assignments[lhs] = rhs
}

// Assignment returns the last recorded assignment of p.
func (a *AliasState) Assignment(p string) (string, bool) {
	v, ok := a.assignments[p]
	return v, ok
}

// Resolve returns the candidate targets of p: every alias of p, each alias's
// assignment, and p's own assignment. Sorted and de-duplicated.
func (a *AliasState) Resolve(p string) []string {
	seen := make(map[string]struct{})
	for alias := range a.aliases[p] {
		seen[alias] = struct{}{}
		if v, ok := a.assignments[alias]; ok {
			seen[v] = struct{}{}
		}
	}
	if v, ok := a.assignments[p]; ok {
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Targets is Resolve without the names of other tracked pointers, leaving
// only values that were assigned to a pointer.
func (a *AliasState) Targets(p string) []string {
	var out []string
	for _, c := range a.Resolve(p) {
		if a.isPointer(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (a *AliasState) isPointer(name string) bool {
	if _, ok := a.assignments[name]; ok {
		return true
	}
	_, ok := a.aliases[name]
	return ok
}
