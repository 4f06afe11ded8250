package types

// Env defines the state of the blockchain environment this contract is
// running in. This must contain only trusted data - nothing from the Tx itself
// that has not been verified (like Signer).
//
// Env are json encoded to a byte slice before passing to the wasm contract.
type Env struct {
	Block       BlockInfo        `json:"block"`
	Contract    ContractInfo     `json:"contract"`
	Transaction *TransactionInfo `json:"transaction,omitempty"`
}

type BlockInfo struct {
	// block height this transaction is executed
	Height uint64 `json:"height"`
	// time in nanoseconds since unix epoch. Uses string to ensure JSON roundtrip safety.
	Time    Uint64 `json:"time"`
	ChainID string `json:"chain_id"`
}

type ContractInfo struct {
	// Address is the bech32 encoded address of the contract
	Address string `json:"address"`
}

type TransactionInfo struct {
	// Position of this transaction in the block.
	// The first transaction has index 0.
	//
	// Along with BlockInfo.Height, this allows you to get a unique
	// transaction identifier for the currently executing block.
	Index uint32 `json:"index"`
}

// MessageInfo is sent to init and execute calls and carries the verified
// sender and the funds moved to the contract before the call.
type MessageInfo struct {
	// Sender is the bech32 encoded address executing the contract
	Sender HumanAddress `json:"sender"`
	// Funds are amounts that are transferred to the contract on execution
	Funds Array[Coin] `json:"funds"`
}
