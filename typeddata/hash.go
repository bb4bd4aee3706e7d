package typeddata

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	int256Type, _  = abi.NewType("int256", "", nil)

	// x19 to avoid collision with rlp encode. x01 version byte defined in EIP-191
	messagePadding = []byte{0x19, 0x01}
)

var errArraysUnsupported = errors.New("arrays, slices and functions require the v4 encoding")

// HashV3 computes the EIP-712 digest of the document using the v3
// encoding. Array and slice members are rejected.
func HashV3(typed TypedData) (common.Hash, error) {
	return hashToSign(typed, false)
}

// HashV4 computes the EIP-712 digest of the document using the v4
// encoding, which additionally supports array, slice and recursive
// struct members.
func HashV4(typed TypedData) (common.Hash, error) {
	return hashToSign(typed, true)
}

func hashToSign(typed TypedData, v4 bool) (rst common.Hash, err error) {
	if err = typed.Validate(); err != nil {
		return rst, err
	}
	domainSeparator, err := encodeData(eip712Domain, typed.Domain, typed.Types, v4)
	if err != nil {
		return rst, err
	}
	primary, err := encodeData(typed.PrimaryType, typed.Message, typed.Types, v4)
	if err != nil {
		return rst, err
	}
	return crypto.Keccak256Hash(messagePadding, domainSeparator[:], primary[:]), nil
}

// DomainSeparator returns hashStruct(EIP712Domain, domain).
func DomainSeparator(typed TypedData) (common.Hash, error) {
	return encodeData(eip712Domain, typed.Domain, typed.Types, true)
}

// deps returns the target type followed by its transitive dependencies
// sorted alphabetically.
func deps(target string, types Types) []string {
	unique := map[string]struct{}{}
	unique[target] = struct{}{}
	visited := []string{target}
	deps := []string{}
	for len(visited) > 0 {
		current := visited[0]
		fields := types[current]
		for i := range fields {
			f := fields[i]
			base := f.Type
			for isArrayType(base) {
				base = baseType(base)
			}
			if _, defined := types[base]; defined {
				if _, exist := unique[base]; !exist {
					visited = append(visited, base)
					unique[base] = struct{}{}
				}
			}
		}
		visited = visited[1:]
		deps = append(deps, current)
	}
	sort.Slice(deps[1:], func(i, j int) bool {
		return deps[1:][i] < deps[1:][j]
	})
	return deps
}

func typeString(target string, types Types) string {
	b := new(bytes.Buffer)
	for _, dep := range deps(target, types) {
		b.WriteString(dep)
		b.WriteString("(")
		fields := types[dep]
		first := true
		for i := range fields {
			if !first {
				b.WriteString(",")
			} else {
				first = false
			}
			f := fields[i]
			b.WriteString(f.Type)
			b.WriteString(" ")
			b.WriteString(f.Name)
		}
		b.WriteString(")")
	}
	return b.String()
}

func typeHash(target string, types Types) common.Hash {
	return crypto.Keccak256Hash([]byte(typeString(target, types)))
}

func encodeData(target string, data map[string]json.RawMessage, types Types, v4 bool) (rst common.Hash, err error) {
	fields := types[target]
	typeh := typeHash(target, types)
	args := abi.Arguments{{Type: bytes32Type}}
	vals := []interface{}{typeh}
	for i := range fields {
		f := fields[i]
		val, typ, err := toABITypeAndValue(f, data[f.Name], types, v4)
		if err != nil {
			return rst, err
		}
		vals = append(vals, val)
		args = append(args, abi.Argument{Name: f.Name, Type: typ})
	}
	packed, err := args.Pack(vals...)
	if err != nil {
		return rst, err
	}
	return crypto.Keccak256Hash(packed), nil
}

func toABITypeAndValue(f Field, raw json.RawMessage, types Types, v4 bool) (val interface{}, typ abi.Type, err error) {
	if isArrayType(f.Type) {
		if !v4 {
			return val, typ, errArraysUnsupported
		}
		hash, err := hashArray(f, raw, types)
		if err != nil {
			return val, typ, err
		}
		return hash, bytes32Type, nil
	}

	if f.Type == "string" {
		var str string
		if err = json.Unmarshal(raw, &str); err != nil {
			return
		}
		typ = bytes32Type
		val = crypto.Keccak256Hash([]byte(str))
	} else if f.Type == "bytes" {
		typ = bytes32Type
		var bytes hexutil.Bytes
		if err = json.Unmarshal(raw, &bytes); err != nil {
			return
		}
		val = crypto.Keccak256Hash(bytes)
	} else if _, exist := types[f.Type]; exist {
		var obj map[string]json.RawMessage
		if err = json.Unmarshal(raw, &obj); err != nil {
			return
		}
		val, err = encodeData(f.Type, obj, types, v4)
		if err != nil {
			return
		}
		typ = bytes32Type
	} else {
		return atomicTypeAndValue(f.Type, raw)
	}
	return
}

func atomicTypeAndValue(solType string, raw json.RawMessage) (val interface{}, typ abi.Type, err error) {
	typ, err = abi.NewType(solType, "", nil)
	if err != nil {
		return
	}
	switch typ.T {
	case abi.SliceTy, abi.ArrayTy, abi.FunctionTy:
		return val, typ, errArraysUnsupported
	case abi.FixedBytesTy:
		var bytes hexutil.Bytes
		if err = json.Unmarshal(raw, &bytes); err != nil {
			return
		}
		typ = bytes32Type
		rst := [32]byte{}
		// reduce the length to the advertised type
		if len(bytes) > typ.Size {
			bytes = bytes[:typ.Size]
		}
		copy(rst[:], bytes)
		val = rst
	case abi.AddressTy:
		var addr common.Address
		if err = json.Unmarshal(raw, &addr); err != nil {
			return
		}
		val = addr
	case abi.IntTy, abi.UintTy:
		// pack every integer as int256: EIP-712 pads all intN/uintN
		// members to 32 bytes, and abi rejects *big.Int for narrow
		// declared types
		typ = int256Type
		val, err = decodeBigInt(raw)
	case abi.BoolTy:
		var rst bool
		if err = json.Unmarshal(raw, &rst); err != nil {
			return
		}
		val = rst
	default:
		err = errors.New("unsupported type " + solType)
	}
	return
}

// hashArray encodes a v4 array member: every element is encoded to 32
// bytes and the concatenation is hashed.
func hashArray(f Field, raw json.RawMessage, types Types) (rst common.Hash, err error) {
	var elems []json.RawMessage
	if err = json.Unmarshal(raw, &elems); err != nil {
		return
	}
	elemField := Field{Name: f.Name, Type: baseType(f.Type)}
	buf := new(bytes.Buffer)
	for i := range elems {
		val, typ, err := toABITypeAndValue(elemField, elems[i], types, true)
		if err != nil {
			return rst, err
		}
		packed, err := abi.Arguments{{Type: typ}}.Pack(val)
		if err != nil {
			return rst, err
		}
		buf.Write(packed)
	}
	return crypto.Keccak256Hash(buf.Bytes()), nil
}

// decodeBigInt accepts both JSON numbers and quantity strings
// (decimal or 0x-prefixed hex).
func decodeBigInt(raw json.RawMessage) (*big.Int, error) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		rst, ok := new(big.Int).SetString(num.String(), 10)
		if !ok {
			return nil, errors.New("invalid integer " + num.String())
		}
		return rst, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil, err
	}
	if len(str) > 1 && (str[:2] == "0x" || str[:2] == "0X") {
		rst, ok := new(big.Int).SetString(str[2:], 16)
		if !ok {
			return nil, errors.New("invalid hex integer " + str)
		}
		return rst, nil
	}
	rst, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return nil, errors.New("invalid integer " + str)
	}
	return rst, nil
}

func isArrayType(solType string) bool {
	return len(solType) > 2 && solType[len(solType)-1] == ']'
}

// baseType strips one trailing array suffix: "uint256[3]" -> "uint256",
// "uint256[2][2]" -> "uint256[2]", so nested arrays peel one dimension
// per recursion.
func baseType(solType string) string {
	if idx := strings.LastIndexByte(solType, '['); idx != -1 {
		return solType[:idx]
	}
	return solType
}
