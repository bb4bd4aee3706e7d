// Package relay defines the boundary to the wallet-side transport
// collaborator. The relay performs session linking, message delivery,
// remote signing and broadcast; the provider core only decides what to
// ask and how to interpret the answer.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrorCodeUnsupportedChain is reported by wallets that recognize a
// switch-chain request but do not serve the target chain.
const ErrorCodeUnsupportedChain = 4902

// Error is a failure reported by the wallet side. Older relays signal
// "unsupported" by omitting the code entirely, so Code is a pointer:
// nil means the wallet sent an error shape with no code at all.
type Error struct {
	Code    *int   `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("relay error %d: %s", *e.Code, e.Message)
	}
	return fmt.Sprintf("relay error: %s", e.Message)
}

// ErrorWithCode builds a coded relay error.
func ErrorWithCode(code int, message string) *Error {
	return &Error{Code: &code, Message: message}
}

// NativeCurrency describes the native asset of a proposed chain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint   `json:"decimals"`
}

// SignMessageArgs carries a message signing request. TypedDataJSON is a
// pretty-printed rendering of the original EIP-712 payload, shown by
// the wallet UI for provenance; Message holds the digest (or the raw
// message for eth_sign/personal_sign).
type SignMessageArgs struct {
	Address       common.Address
	Message       []byte
	AddPrefix     bool
	TypedDataJSON string
}

// TxParams is the canonical transaction descriptor submitted to the
// wallet for signing. Gas fields are nil when the caller left them
// unspecified so the wallet can tell "unset" from "explicitly zero";
// Value is never nil and defaults to zero.
type TxParams struct {
	From                 common.Address
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
	Nonce                *uint64
	GasPriceWei          *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasLimit             *big.Int
	ChainID              uint64
}

// AddChainArgs proposes a new chain to the wallet.
type AddChainArgs struct {
	ChainID           uint64
	RPCURLs           []string
	BlockExplorerURLs []string
	ChainName         string
	IconURLs          []string
	NativeCurrency    *NativeCurrency
}

// SwitchChainArgs asks the wallet to activate another chain. Address
// is the currently selected account, when one exists.
type SwitchChainArgs struct {
	ChainID uint64
	Address *common.Address
}

// ChainResult is the wallet's verdict on a chain mutation. RPCURL is
// populated only when the wallet supplies an endpoint for the chain.
type ChainResult struct {
	IsApproved bool
	RPCURL     string
}

// WatchAssetArgs asks the wallet to track a token.
type WatchAssetArgs struct {
	Type     string
	Address  string
	Symbol   string
	Decimals int
	Image    string
}

// Relay is the asynchronous transport collaborator. Every method is a
// suspension point: it either resolves, fails, or never settles.
// Cancellation policy belongs to the implementation, the core adds no
// timeout layer of its own.
type Relay interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	SignMessage(ctx context.Context, args SignMessageArgs) (hexutil.Bytes, error)
	SignTransaction(ctx context.Context, params TxParams) (hexutil.Bytes, error)
	SubmitTransaction(ctx context.Context, signedTx hexutil.Bytes, chainID uint64) (common.Hash, error)
	SignAndSubmitTransaction(ctx context.Context, params TxParams) (common.Hash, error)
	AddChain(ctx context.Context, args AddChainArgs) (ChainResult, error)
	SwitchChain(ctx context.Context, args SwitchChainArgs) (ChainResult, error)
	WatchAsset(ctx context.Context, args WatchAssetArgs) (bool, error)

	// Call is the generic JSON-RPC passthrough for methods the core
	// does not handle locally. The result or error comes back verbatim.
	Call(ctx context.Context, jsonRPCURL string, method string, params []interface{}) (json.RawMessage, error)
}

// Factory constructs the relay handle. Construction must be synchronous
// so a memoizing caller can guarantee a single instance without locks
// in a cooperatively scheduled environment.
type Factory func() Relay
