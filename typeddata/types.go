package typeddata

import (
	"encoding/json"
	"errors"
)

const eip712Domain = "EIP712Domain"

// Field is a single member of a user defined struct type.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Types maps a struct type name to its ordered fields.
type Types map[string][]Field

// TypedData is an EIP-712 document: a closed set of struct types, a
// domain instance and a message instance of the primary type.
type TypedData struct {
	Types       Types                      `json:"types"`
	PrimaryType string                     `json:"primaryType"`
	Domain      map[string]json.RawMessage `json:"domain"`
	Message     map[string]json.RawMessage `json:"message"`
}

// errors
var (
	ErrMissingTypes       = errors.New("typed data: types are missing")
	ErrMissingDomain      = errors.New("typed data: EIP712Domain type is missing")
	ErrMissingPrimaryType = errors.New("typed data: primary type is missing")
)

// Validate checks that the document defines a domain and that the
// primary type is declared.
func (t TypedData) Validate() error {
	if len(t.Types) == 0 {
		return ErrMissingTypes
	}
	if _, exist := t.Types[eip712Domain]; !exist {
		return ErrMissingDomain
	}
	if t.PrimaryType == "" {
		return ErrMissingPrimaryType
	}
	if _, exist := t.Types[t.PrimaryType]; !exist {
		return ErrMissingPrimaryType
	}
	return nil
}

// Parse decodes a raw JSON payload into a TypedData document.
func Parse(raw []byte) (TypedData, error) {
	var typed TypedData
	if err := json.Unmarshal(raw, &typed); err != nil {
		return typed, err
	}
	return typed, typed.Validate()
}
