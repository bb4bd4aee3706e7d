package typeddata

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailExampleJSON = `{
	"types": {
		"EIP712Domain": [
			{"name": "name", "type": "string"},
			{"name": "version", "type": "string"},
			{"name": "chainId", "type": "uint256"},
			{"name": "verifyingContract", "type": "address"}
		],
		"Person": [
			{"name": "name", "type": "string"},
			{"name": "wallet", "type": "address"}
		],
		"Mail": [
			{"name": "from", "type": "Person"},
			{"name": "to", "type": "Person"},
			{"name": "contents", "type": "string"}
		]
	},
	"primaryType": "Mail",
	"domain": {
		"name": "Ether Mail",
		"version": "1",
		"chainId": 1,
		"verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
	},
	"message": {
		"from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
		"to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
		"contents": "Hello, Bob!"
	}
}`

func TestTypeString(t *testing.T) {
	types := Types{}
	types["Person"] = []Field{{Name: "name", Type: "string"}, {Name: "wallet", Type: "address"}}
	types["Mail"] = []Field{{Name: "from", Type: "Person"}, {Name: "to", Type: "Person"}}
	rst := typeString("Person", types)
	require.Equal(t, "Person(string name,address wallet)", rst)
	rst = typeString("Mail", types)
	require.Equal(t, "Mail(Person from,Person to)Person(string name,address wallet)", rst)
}

func TestEncodeData(t *testing.T) {
	types := Types{}
	types["Person"] = []Field{{Name: "name", Type: "string"}, {Name: "wallet", Type: "address"}}
	person := map[string]json.RawMessage{
		"name":   json.RawMessage(`"Cow"`),
		"wallet": json.RawMessage(`"0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"`),
	}
	rst, err := encodeData("Person", person, types, false)
	require.NoError(t, err)

	bytes32, _ := abi.NewType("bytes32", "", nil)
	addr, _ := abi.NewType("address", "", nil)
	args := abi.Arguments{{Type: bytes32}, {Type: bytes32}, {Type: addr}}
	expected, err := args.Pack(
		typeHash("Person", types),
		crypto.Keccak256Hash([]byte("Cow")),
		common.HexToAddress("0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"))
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(expected), rst)
}

func TestHashMailExample(t *testing.T) {
	typed, err := Parse([]byte(mailExampleJSON))
	require.NoError(t, err)

	separator, err := DomainSeparator(typed)
	require.NoError(t, err)
	assert.Equal(t,
		"0xf2cee375fa42b42143804025fc449deafd50cc031ca257e0b194a650a912090f",
		separator.Hex())

	digest, err := HashV4(typed)
	require.NoError(t, err)
	assert.Equal(t,
		"0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2",
		digest.Hex())

	// the example has no array members, v3 and v4 agree
	v3digest, err := HashV3(typed)
	require.NoError(t, err)
	assert.Equal(t, digest, v3digest)
}

func TestV3RejectsArrays(t *testing.T) {
	typed := TypedData{
		Types: Types{
			eip712Domain: []Field{{Name: "name", Type: "string"}},
			"Roster":     []Field{{Name: "members", Type: "address[]"}},
		},
		PrimaryType: "Roster",
		Domain:      map[string]json.RawMessage{"name": json.RawMessage(`"test"`)},
		Message: map[string]json.RawMessage{
			"members": json.RawMessage(`["0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"]`),
		},
	}

	_, err := HashV3(typed)
	require.Error(t, err)

	_, err = HashV4(typed)
	require.NoError(t, err)
}

func TestHashV4ArrayEncoding(t *testing.T) {
	typed := TypedData{
		Types: Types{
			eip712Domain: []Field{{Name: "name", Type: "string"}},
			"Roster":     []Field{{Name: "members", Type: "address[]"}},
		},
		PrimaryType: "Roster",
		Domain:      map[string]json.RawMessage{"name": json.RawMessage(`"test"`)},
		Message: map[string]json.RawMessage{
			"members": json.RawMessage(`["0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826", "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"]`),
		},
	}

	one, err := HashV4(typed)
	require.NoError(t, err)

	typed.Message["members"] = json.RawMessage(`["0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB", "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"]`)
	other, err := HashV4(typed)
	require.NoError(t, err)

	// element order is significant
	assert.NotEqual(t, one, other)
}

func TestNarrowIntegerMembers(t *testing.T) {
	typed := TypedData{
		Types: Types{
			eip712Domain: []Field{{Name: "name", Type: "string"}},
			"Token":      []Field{{Name: "decimals", Type: "uint8"}, {Name: "supply", Type: "int128"}},
		},
		PrimaryType: "Token",
		Domain:      map[string]json.RawMessage{"name": json.RawMessage(`"test"`)},
		Message: map[string]json.RawMessage{
			"decimals": json.RawMessage(`18`),
			"supply":   json.RawMessage(`"1000000"`),
		},
	}

	_, err := HashV3(typed)
	require.NoError(t, err)
	_, err = HashV4(typed)
	require.NoError(t, err)

	// every intN/uintN member pads to 32 bytes
	rst, err := encodeData("Token", typed.Message, typed.Types, false)
	require.NoError(t, err)
	args := abi.Arguments{{Type: bytes32Type}, {Type: int256Type}, {Type: int256Type}}
	expected, err := args.Pack(typeHash("Token", typed.Types), big.NewInt(18), big.NewInt(1000000))
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(expected), rst)
}

func TestHashV4NarrowIntegerArray(t *testing.T) {
	typed := TypedData{
		Types: Types{
			eip712Domain: []Field{{Name: "name", Type: "string"}},
			"Flags":      []Field{{Name: "bits", Type: "uint8[]"}},
		},
		PrimaryType: "Flags",
		Domain:      map[string]json.RawMessage{"name": json.RawMessage(`"test"`)},
		Message:     map[string]json.RawMessage{"bits": json.RawMessage(`[1, 2, 3]`)},
	}

	_, err := HashV4(typed)
	require.NoError(t, err)
}

func TestHashV4NestedArrays(t *testing.T) {
	typed := TypedData{
		Types: Types{
			eip712Domain: []Field{{Name: "name", Type: "string"}},
			"Grid":       []Field{{Name: "cells", Type: "uint256[2][2]"}},
		},
		PrimaryType: "Grid",
		Domain:      map[string]json.RawMessage{"name": json.RawMessage(`"test"`)},
		Message:     map[string]json.RawMessage{"cells": json.RawMessage(`[[1, 2], [3, 4]]`)},
	}

	rst, err := encodeData("Grid", typed.Message, typed.Types, true)
	require.NoError(t, err)

	// each inner array hashes on its own, the outer hash covers the
	// concatenated inner hashes
	row := func(a, b int64) common.Hash {
		packed, err := abi.Arguments{{Type: int256Type}, {Type: int256Type}}.Pack(big.NewInt(a), big.NewInt(b))
		require.NoError(t, err)
		return crypto.Keccak256Hash(packed)
	}
	outer := crypto.Keccak256Hash(row(1, 2).Bytes(), row(3, 4).Bytes())
	packed, err := abi.Arguments{{Type: bytes32Type}, {Type: bytes32Type}}.Pack(typeHash("Grid", typed.Types), outer)
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(packed), rst)

	_, err = HashV4(typed)
	require.NoError(t, err)
}

func TestNestedStructArrayDependencies(t *testing.T) {
	types := Types{
		"Roster": []Field{{Name: "groups", Type: "Person[][]"}},
		"Person": []Field{{Name: "name", Type: "string"}, {Name: "wallet", Type: "address"}},
	}
	require.Equal(t,
		"Roster(Person[][] groups)Person(string name,address wallet)",
		typeString("Roster", types))
}

func TestValidate(t *testing.T) {
	type testCase struct {
		description string
		typed       TypedData
	}
	for _, tc := range []testCase{
		{
			"NoTypes",
			TypedData{PrimaryType: "Mail"},
		},
		{
			"NoDomainType",
			TypedData{Types: Types{"Mail": {}}, PrimaryType: "Mail"},
		},
		{
			"UndeclaredPrimaryType",
			TypedData{Types: Types{eip712Domain: {}}, PrimaryType: "Mail"},
		},
	} {
		t.Run(tc.description, func(t *testing.T) {
			require.Error(t, tc.typed.Validate())
		})
	}
}
