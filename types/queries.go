package types

import (
	"encoding/json"
)

// QuerierResult is the envelope every query_chain response is wrapped in
// before being returned to the contract. Exactly one field is set.
//
// The double wrapping separates host-level failures (SystemError) from the
// queried module's own success/error result.
type QuerierResult struct {
	Ok  *QuerierResponse `json:"ok,omitempty"`
	Err *SystemError     `json:"error,omitempty"`
}

// QuerierResponse is the inner result of a query that reached its target.
type QuerierResponse struct {
	Ok  []byte `json:"ok,omitempty"`
	Err string `json:"error,omitempty"`
}

// ToQuerierResult converts the output of Querier.Query into the wire envelope.
func ToQuerierResult(response []byte, err error) QuerierResult {
	if err == nil {
		return QuerierResult{
			Ok: &QuerierResponse{Ok: response},
		}
	}
	if syserr := ToSystemError(err); syserr != nil {
		return QuerierResult{Err: syserr}
	}
	return QuerierResult{
		Ok: &QuerierResponse{Err: err.Error()},
	}
}

// QueryRequest is a tagged union, exactly one of the fields should be set
type QueryRequest struct {
	Bank   *BankQuery      `json:"bank,omitempty"`
	Custom json.RawMessage `json:"custom,omitempty"`
	Wasm   *WasmQuery      `json:"wasm,omitempty"`
}

type BankQuery struct {
	Balance     *BalanceQuery     `json:"balance,omitempty"`
	AllBalances *AllBalancesQuery `json:"all_balances,omitempty"`
}

type BalanceQuery struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
}

// BalanceResponse is the expected response to BalanceQuery
type BalanceResponse struct {
	Amount Coin `json:"amount"`
}

type AllBalancesQuery struct {
	Address string `json:"address"`
}

// AllBalancesResponse is the expected response to AllBalancesQuery
type AllBalancesResponse struct {
	Amount Array[Coin] `json:"amount"`
}

type WasmQuery struct {
	Smart        *SmartQuery        `json:"smart,omitempty"`
	Raw          *RawQuery          `json:"raw,omitempty"`
	ContractInfo *ContractInfoQuery `json:"contract_info,omitempty"`
}

// SmartQuery responds with the raw bytes the queried contract returned from
// its query entry point
type SmartQuery struct {
	// Bech32 encoded sdk.AccAddress of the contract
	ContractAddr string `json:"contract_addr"`
	Msg          []byte `json:"msg"`
}

// RawQuery responds with the raw value stored under the key in the queried
// contract's storage, or an empty response if the key is absent
type RawQuery struct {
	// Bech32 encoded sdk.AccAddress of the contract
	ContractAddr string `json:"contract_addr"`
	Key          []byte `json:"key"`
}

type ContractInfoQuery struct {
	// Bech32 encoded sdk.AccAddress of the contract
	ContractAddr string `json:"contract_addr"`
}

type ContractInfoResponse struct {
	CodeID  uint64 `json:"code_id"`
	Creator string `json:"creator"`
	Pinned  bool   `json:"pinned"`
	// Set to the admin who can migrate the contract, if any
	Admin string `json:"admin,omitempty"`
	// Set if the contract is IBC enabled
	IBCPort string `json:"ibc_port,omitempty"`
}
