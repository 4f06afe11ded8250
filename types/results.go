package types

// ContractResult is the raw response from the init/execute/migrate/sudo calls.
// Exactly one of its fields is set.
//
// A contract-level error (Err) is a regular outcome: state changes made by
// the call must be reverted by the caller, but the chain keeps running.
type ContractResult struct {
	Ok  *Response `json:"ok,omitempty"`
	Err string    `json:"error,omitempty"`
}

// QueryResult is the raw response from the query call.
// Exactly one of its fields is set.
type QueryResult struct {
	Ok  []byte `json:"ok,omitempty"`
	Err string `json:"error,omitempty"`
}
