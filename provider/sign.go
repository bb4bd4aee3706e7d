package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dappbridge/provider-go/relay"
	"github.com/dappbridge/provider-go/typeddata"
)

const signatureLength = 65

// ethSign implements eth_sign: params are [address, message].
func (p *Provider) ethSign(ctx context.Context, params []interface{}) (interface{}, error) {
	if err := p.requireAuthorization(); err != nil {
		return nil, err
	}
	address, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	message, err := bytesParam(params, 1)
	if err != nil {
		return nil, err
	}
	return p.signMessage(ctx, address, message, false)
}

// personalSign implements personal_sign: params are [message, address],
// the MetaMask argument order.
func (p *Provider) personalSign(ctx context.Context, params []interface{}) (interface{}, error) {
	if err := p.requireAuthorization(); err != nil {
		return nil, err
	}
	message, err := bytesParam(params, 0)
	if err != nil {
		return nil, err
	}
	address, err := addressParam(params, 1)
	if err != nil {
		return nil, err
	}
	return p.signMessage(ctx, address, message, true)
}

func (p *Provider) signMessage(ctx context.Context, address common.Address, message []byte, addPrefix bool) (interface{}, error) {
	if !p.session.IsAuthorized(address) {
		return nil, errInvalidParams("unknown Ethereum address")
	}
	signature, err := p.ensureRelay().SignMessage(ctx, relay.SignMessageArgs{
		Address:   address,
		Message:   message,
		AddPrefix: addPrefix,
	})
	if err != nil {
		return nil, translateRejection(err, deniedMessageSignature)
	}
	return signature, nil
}

// ethEcRecover implements eth_ecRecover: params are [message, signature].
func (p *Provider) ethEcRecover(_ context.Context, params []interface{}) (interface{}, error) {
	return recoverFromParams(params, false)
}

// personalEcRecover implements personal_ecRecover with the EIP-191
// personal message prefix applied before recovery.
func (p *Provider) personalEcRecover(_ context.Context, params []interface{}) (interface{}, error) {
	return recoverFromParams(params, true)
}

func recoverFromParams(params []interface{}, addPrefix bool) (interface{}, error) {
	message, err := bytesParam(params, 0)
	if err != nil {
		return nil, err
	}
	signature, err := bytesParam(params, 1)
	if err != nil {
		return nil, err
	}
	address, err := recoverAddress(message, signature, addPrefix)
	if err != nil {
		return nil, err
	}
	return address.Hex(), nil
}

// recoverAddress recovers the signer of message. The signature V byte
// accepts both the 27/28 and the 0/1 conventions.
func recoverAddress(message, signature []byte, addPrefix bool) (addr common.Address, err error) {
	if len(signature) != signatureLength {
		return addr, errInvalidParams("signature must be 65 bytes")
	}
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[signatureLength-1] >= 27 {
		sig[signatureLength-1] -= 27
	}

	digest := crypto.Keccak256(message)
	if addPrefix {
		prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
		digest = crypto.Keccak256([]byte(prefixed))
	}

	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return addr, errInvalidParams("invalid signature")
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// ethSignTypedDataV1 implements the legacy typed data variant:
// params are [typedData, address].
func (p *Provider) ethSignTypedDataV1(ctx context.Context, params []interface{}) (interface{}, error) {
	if err := p.requireAuthorization(); err != nil {
		return nil, err
	}
	raw, err := rawJSONParam(params, 0)
	if err != nil {
		return nil, err
	}
	address, err := addressParam(params, 1)
	if err != nil {
		return nil, err
	}
	fields, err := typeddata.ParseLegacy(raw)
	if err != nil {
		return nil, errInvalidParams(err.Error())
	}
	digest, err := typeddata.HashLegacy(fields)
	if err != nil {
		return nil, errInvalidParams(err.Error())
	}
	return p.signTypedData(ctx, address, digest.Bytes(), raw)
}

// ethSignTypedDataV2 always fails: the v2 method name was never
// finalized and must not reach any hashing code.
func (p *Provider) ethSignTypedDataV2(_ context.Context, _ []interface{}) (interface{}, error) {
	return nil, errUnsupportedMethod("eth_signTypedData_v2")
}

// ethSignTypedDataV3 implements eth_signTypedData_v3:
// params are [address, typedData].
func (p *Provider) ethSignTypedDataV3(ctx context.Context, params []interface{}) (interface{}, error) {
	return p.signTypedDataStructured(ctx, params, typeddata.HashV3)
}

// ethSignTypedDataV4 implements eth_signTypedData_v4 and the bare
// eth_signTypedData alias.
func (p *Provider) ethSignTypedDataV4(ctx context.Context, params []interface{}) (interface{}, error) {
	return p.signTypedDataStructured(ctx, params, typeddata.HashV4)
}

func (p *Provider) signTypedDataStructured(ctx context.Context, params []interface{}, hash func(typeddata.TypedData) (common.Hash, error)) (interface{}, error) {
	if err := p.requireAuthorization(); err != nil {
		return nil, err
	}
	address, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	raw, err := rawJSONParam(params, 1)
	if err != nil {
		return nil, err
	}
	typed, err := typeddata.Parse(raw)
	if err != nil {
		return nil, errInvalidParams(err.Error())
	}
	digest, err := hash(typed)
	if err != nil {
		return nil, errInvalidParams(err.Error())
	}
	return p.signTypedData(ctx, address, digest.Bytes(), raw)
}

// signTypedData submits the digest together with a pretty-printed
// rendering of the original payload for provenance display on the
// wallet side.
func (p *Provider) signTypedData(ctx context.Context, address common.Address, digest []byte, raw []byte) (interface{}, error) {
	if !p.session.IsAuthorized(address) {
		return nil, errInvalidParams("unknown Ethereum address")
	}
	signature, err := p.ensureRelay().SignMessage(ctx, relay.SignMessageArgs{
		Address:       address,
		Message:       digest,
		AddPrefix:     false,
		TypedDataJSON: prettyJSON(raw),
	})
	if err != nil {
		return nil, translateRejection(err, deniedMessageSignature)
	}
	return signature, nil
}

func prettyJSON(raw []byte) string {
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(pretty)
}

// paramAt fetches the i-th positional param.
func paramAt(params []interface{}, i int) (interface{}, error) {
	if i >= len(params) {
		return nil, errInvalidParams(fmt.Sprintf("missing parameter at position %d", i))
	}
	return params[i], nil
}

// addressParam decodes a positional address param.
func addressParam(params []interface{}, i int) (common.Address, error) {
	v, err := paramAt(params, i)
	if err != nil {
		return common.Address{}, err
	}
	s, ok := v.(string)
	if !ok || !common.IsHexAddress(s) {
		return common.Address{}, errInvalidParams(fmt.Sprintf("invalid address at position %d", i))
	}
	return common.HexToAddress(s), nil
}

// bytesParam decodes a positional byte-sequence param: a 0x-prefixed
// hex string decodes to bytes, any other string is taken as UTF-8.
func bytesParam(params []interface{}, i int) ([]byte, error) {
	v, err := paramAt(params, i)
	if err != nil {
		return nil, err
	}
	switch b := v.(type) {
	case string:
		if len(b) >= 2 && (b[:2] == "0x" || b[:2] == "0X") {
			decoded, err := hexutil.Decode(b)
			if err == nil {
				return decoded, nil
			}
		}
		return []byte(b), nil
	case []byte:
		return b, nil
	case hexutil.Bytes:
		return b, nil
	}
	return nil, errInvalidParams(fmt.Sprintf("invalid byte parameter at position %d", i))
}

// rawJSONParam normalizes a positional param into raw JSON: strings
// pass through as-is, everything else is re-marshalled.
func rawJSONParam(params []interface{}, i int) ([]byte, error) {
	v, err := paramAt(params, i)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errInvalidParams("parameter is not valid JSON")
	}
	return raw, nil
}
