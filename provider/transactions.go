package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/dappbridge/provider-go/relay"
)

// txArgs mirrors the raw transaction-like object accepted from the
// dapp. Integer fields stay raw until conversion so "unspecified" is
// distinguishable from "explicitly zero".
type txArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Value                json.RawMessage `json:"value"`
	Nonce                json.RawMessage `json:"nonce"`
	GasPrice             json.RawMessage `json:"gasPrice"`
	MaxFeePerGas         json.RawMessage `json:"maxFeePerGas"`
	MaxPriorityFeePerGas json.RawMessage `json:"maxPriorityFeePerGas"`
	Gas                  json.RawMessage `json:"gas"`
	ChainID              json.RawMessage `json:"chainId"`
	// We keep both "input" and "data" for backward compatibility.
	// "input" is a preferred field.
	Input hexutil.Bytes `json:"input"`
	Data  hexutil.Bytes `json:"data"`
}

func (args *txArgs) valid() bool {
	// if at least one of the fields is empty, it is a valid struct
	if len(args.Input) == 0 || len(args.Data) == 0 {
		return true
	}
	// we only allow both fields to present if they have the same data
	return bytes.Equal(args.Input, args.Data)
}

func (args *txArgs) input() []byte {
	if len(args.Input) != 0 {
		return args.Input
	}
	return args.Data
}

// buildTxParams validates and normalizes a raw transaction object into
// the canonical descriptor, defaulting the sender to the selected
// address and the chain id to the active session chain.
func (p *Provider) buildTxParams(param interface{}) (relay.TxParams, error) {
	var out relay.TxParams

	raw, err := json.Marshal(param)
	if err != nil {
		return out, errInvalidParams("transaction is not a valid object")
	}
	var args txArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return out, errInvalidParams("transaction is not a valid object")
	}
	if !args.valid() {
		return out, errInvalidParams("transaction 'input' and 'data' fields disagree")
	}

	from, ok := p.resolveFrom(args.From)
	if !ok {
		return out, errInvalidParams("Ethereum address is unavailable")
	}
	if !p.session.IsAuthorized(from) {
		return out, errInvalidParams("unknown Ethereum address")
	}

	value, err := unsignedQuantityOrNil(args.Value)
	if err != nil {
		return out, errInvalidParams("invalid transaction value")
	}
	if value == nil {
		value = new(big.Int)
	}

	gasPrice, err := unsignedQuantityOrNil(args.GasPrice)
	if err != nil {
		return out, errInvalidParams("invalid gasPrice")
	}
	maxFee, err := unsignedQuantityOrNil(args.MaxFeePerGas)
	if err != nil {
		return out, errInvalidParams("invalid maxFeePerGas")
	}
	maxPriorityFee, err := unsignedQuantityOrNil(args.MaxPriorityFeePerGas)
	if err != nil {
		return out, errInvalidParams("invalid maxPriorityFeePerGas")
	}
	gasLimit, err := unsignedQuantityOrNil(args.Gas)
	if err != nil {
		return out, errInvalidParams("invalid gas")
	}

	var nonce *uint64
	if rawNonce, err := unsignedQuantityOrNil(args.Nonce); err != nil {
		return out, errInvalidParams("invalid nonce")
	} else if rawNonce != nil {
		if !rawNonce.IsUint64() {
			return out, errInvalidParams("invalid nonce")
		}
		n := rawNonce.Uint64()
		nonce = &n
	}

	chainID := p.session.ChainID()
	if rawChainID, err := unsignedQuantityOrNil(args.ChainID); err != nil {
		return out, errInvalidParams("invalid chainId")
	} else if rawChainID != nil {
		if !rawChainID.IsUint64() {
			return out, errInvalidParams("invalid chainId")
		}
		chainID = rawChainID.Uint64()
	}

	out = relay.TxParams{
		From:                 from,
		To:                   args.To,
		Value:                value,
		Data:                 args.input(),
		Nonce:                nonce,
		GasPriceWei:          gasPrice,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriorityFee,
		GasLimit:             gasLimit,
		ChainID:              chainID,
	}
	return out, nil
}

func (p *Provider) resolveFrom(from *common.Address) (common.Address, bool) {
	if from != nil {
		return *from, true
	}
	return p.session.SelectedAddress()
}

// ethSignTransaction implements eth_signTransaction: the wallet signs
// but does not broadcast.
func (p *Provider) ethSignTransaction(ctx context.Context, params []interface{}) (interface{}, error) {
	if err := p.requireAuthorization(); err != nil {
		return nil, err
	}
	param, err := paramAt(params, 0)
	if err != nil {
		return nil, err
	}
	txParams, err := p.buildTxParams(param)
	if err != nil {
		return nil, err
	}
	signed, err := p.ensureRelay().SignTransaction(ctx, txParams)
	if err != nil {
		return nil, translateRejection(err, deniedTransactionSignature)
	}
	return signed, nil
}

// ethSendRawTransaction implements eth_sendRawTransaction: submits an
// already signed transaction on the active chain.
func (p *Provider) ethSendRawTransaction(ctx context.Context, params []interface{}) (interface{}, error) {
	signed, err := bytesParam(params, 0)
	if err != nil {
		return nil, err
	}
	hash, err := p.ensureRelay().SubmitTransaction(ctx, signed, p.session.ChainID())
	if err != nil {
		return nil, translateRejection(err, deniedTransactionSignature)
	}
	return hash.Hex(), nil
}

// ethSendTransaction implements eth_sendTransaction: the wallet signs
// and broadcasts in one step.
func (p *Provider) ethSendTransaction(ctx context.Context, params []interface{}) (interface{}, error) {
	param, err := paramAt(params, 0)
	if err != nil {
		return nil, err
	}
	txParams, err := p.buildTxParams(param)
	if err != nil {
		return nil, err
	}
	hash, err := p.ensureRelay().SignAndSubmitTransaction(ctx, txParams)
	if err != nil {
		return nil, translateRejection(err, deniedTransactionSignature)
	}
	return hash.Hex(), nil
}

// quantityOrNil parses an arbitrary-precision integer from a raw JSON
// value: a JSON number, a decimal string or a 0x-prefixed hex string.
// Absent values stay nil.
func quantityOrNil(raw json.RawMessage) (*big.Int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if rst, ok := new(big.Int).SetString(num.String(), 10); ok {
			return rst, nil
		}
		return nil, errInvalidParams("invalid integer " + num.String())
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, err
	}
	if len(str) > 1 && (str[:2] == "0x" || str[:2] == "0X") {
		if rst, ok := new(big.Int).SetString(str[2:], 16); ok {
			return rst, nil
		}
		return nil, errInvalidParams("invalid hex integer " + str)
	}
	if rst, ok := new(big.Int).SetString(str, 10); ok {
		return rst, nil
	}
	return nil, errInvalidParams("invalid integer " + str)
}

// unsignedQuantityOrNil is quantityOrNil restricted to non-negative
// quantities; wei values, gas fields and nonces cannot be negative.
func unsignedQuantityOrNil(raw json.RawMessage) (*big.Int, error) {
	rst, err := quantityOrNil(raw)
	if err != nil {
		return nil, err
	}
	if rst != nil && rst.Sign() < 0 {
		return nil, errInvalidParams("negative quantity " + rst.String())
	}
	return rst, nil
}
