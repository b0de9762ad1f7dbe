// Package scripts embeds the report scripts shipped with xref. Each report
// is a Risor script evaluated against the graph store; its last expression
// is the report value. Reports read the global limit.
package scripts

import "embed"

//go:embed *.risor
var FS embed.FS
