package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/jward/xref/internal/facts"
)

// ComputeUnitHash computes a deterministic hash over the facts of a unit.
// Fact order does not affect the hash; locations do.
func ComputeUnitHash(u *facts.Unit) string {
	h := sha256.New()
	fmt.Fprintf(h, "unit:%s\n", u.Path)

	lines := make([]string, 0, len(u.Functions)+len(u.Types)+len(u.Inheritance)+len(u.Calls))
	for _, fn := range u.Functions {
		lines = append(lines, fmt.Sprintf("function:%s(%s):%s:%s:%s:%d:%d:%v:%v",
			fn.QualifiedName, fn.Signature(), fn.Kind, fn.ReturnType,
			fn.File, fn.Line, fn.Column, fn.IsDefinition, fn.IsVirtual))
	}
	for _, t := range u.Types {
		lines = append(lines, fmt.Sprintf("type:%s:%s:%s:%d:%d:%v",
			t.QualifiedName, t.Kind, t.File, t.Line, t.Column, t.IsDefinition))
	}
	for _, e := range u.Inheritance {
		lines = append(lines, fmt.Sprintf("base:%s:%s:%d", e.Derived, e.Base, e.Ordinal))
	}
	for _, c := range u.Calls {
		lines = append(lines, fmt.Sprintf("call:%s(%s):%s:%s:%d:%d:%+v:%s:%d:%s:%s:%s",
			c.Caller, c.CallerSignature, c.Callee, c.File, c.Line, c.Column, c.Flags,
			c.MacroFile, c.MacroLine,
			strings.Join(c.ContextStack, ">"), strings.Join(c.ContextSignatures, ">"),
			strings.Join(c.Candidates, facts.CandidateSeparator)))
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(h, l)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
