package xref

import "github.com/jward/xref/internal/store"

// Public aliases for the store types returned by the query API.

type Store = store.Store
type Function = store.Function
type Type = store.Type
type CallEdge = store.CallEdge
type CallFlags = store.CallFlags
type Run = store.Run
type FunctionFilter = store.FunctionFilter
type FlushReport = store.FlushReport
type ExternalPolicy = store.ExternalPolicy

const (
	PolicyPlaceholder = store.PolicyPlaceholder
	PolicyReject      = store.PolicyReject
)
