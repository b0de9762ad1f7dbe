package facts

import "strings"

// Markers prefix callee identities produced by the resolution heuristics.
const (
	MarkerMacro                   = "[macro] "
	MarkerVirtual                 = "[virtual] "
	MarkerResolvedFunctionPointer = "[resolved function pointer] "
	MarkerFunctionPointer         = "[function pointer] "
	MarkerLambda                  = "[lambda] "
	MarkerTemplate                = "[template] "
	MarkerOperator                = "[operator] "
)

// CandidateSeparator joins the members of a candidate set identity.
const CandidateSeparator = "|"

// GlobalCaller names the placeholder caller for calls at namespace scope.
const GlobalCaller = "<global>"

var markers = []string{
	MarkerMacro,
	MarkerVirtual,
	MarkerResolvedFunctionPointer,
	MarkerFunctionPointer,
	MarkerLambda,
	MarkerTemplate,
	MarkerOperator,
}

// IsSynthetic reports whether a callee identity was produced by a heuristic
// rather than naming a declaration directly.
func IsSynthetic(identity string) bool {
	for _, m := range markers {
		if strings.HasPrefix(identity, m) {
			return true
		}
	}
	return false
}

// Marker returns the heuristic marker of identity without its trailing
// space, or "" for plain qualified names.
func Marker(identity string) string {
	for _, m := range markers {
		if strings.HasPrefix(identity, m) {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// VirtualIdentity builds the candidate-set identity for a virtual call.
func VirtualIdentity(candidates []string) string {
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = MarkerVirtual + c
	}
	return strings.Join(parts, CandidateSeparator)
}
