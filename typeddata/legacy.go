package typeddata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// LegacyField is one entry of the original (pre EIP-712 final) typed
// data payload: an ordered list of typed, named values.
type LegacyField struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// errors
var (
	ErrEmptyLegacyPayload = errors.New("typed data: legacy payload is empty")
)

// ParseLegacy decodes the raw JSON payload of the v1 variant.
func ParseLegacy(raw []byte) ([]LegacyField, error) {
	var fields []LegacyField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrEmptyLegacyPayload
	}
	return fields, nil
}

// HashLegacy computes the legacy v1 digest:
// keccak256(keccak256(packed "type name" schema) . keccak256(packed values)).
// Values are tightly packed, not ABI padded.
func HashLegacy(fields []LegacyField) (rst common.Hash, err error) {
	if len(fields) == 0 {
		return rst, ErrEmptyLegacyPayload
	}
	schema := new(bytes.Buffer)
	values := new(bytes.Buffer)
	for i := range fields {
		f := fields[i]
		schema.WriteString(f.Type)
		schema.WriteString(" ")
		schema.WriteString(f.Name)
		packed, err := packLegacyValue(f.Type, f.Value)
		if err != nil {
			return rst, err
		}
		values.Write(packed)
	}
	schemaHash := crypto.Keccak256(schema.Bytes())
	valuesHash := crypto.Keccak256(values.Bytes())
	return crypto.Keccak256Hash(schemaHash, valuesHash), nil
}

// packLegacyValue tightly packs a single value following solidity
// abi.encodePacked rules for the supported scalar types.
func packLegacyValue(solType string, raw json.RawMessage) ([]byte, error) {
	if solType == "string" {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, err
		}
		return []byte(str), nil
	}
	if solType == "bytes" {
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	}

	typ, err := abi.NewType(solType, "", nil)
	if err != nil {
		return nil, err
	}
	switch typ.T {
	case abi.AddressTy:
		var addr common.Address
		if err := json.Unmarshal(raw, &addr); err != nil {
			return nil, err
		}
		return addr.Bytes(), nil
	case abi.BoolTy:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case abi.FixedBytesTy:
		var b hexutil.Bytes
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		packed := make([]byte, typ.Size)
		copy(packed, b)
		return packed, nil
	case abi.IntTy, abi.UintTy:
		val, err := decodeBigInt(raw)
		if err != nil {
			return nil, err
		}
		full := math.U256Bytes(val)
		return full[32-typ.Size/8:], nil
	default:
		return nil, fmt.Errorf("typed data: unsupported legacy type %s", solType)
	}
}
