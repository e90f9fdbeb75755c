// Package primitives defines the fixed-width byte types shared across the
// node: 32-byte hashes and 20-byte Ethereum addresses, plus the widening
// rule into Move's 32-byte AccountAddress space. Aliased as the canonical
// types.Hash/types.Address so the rest of the tree (RLP, trie, state) uses
// one representation.
package primitives

import "github.com/umi-network/op-move/core/types"

// Hash is the 32-byte Keccak256 hash type used throughout the node.
type Hash = types.Hash

// Address is the 20-byte account address type used throughout the node.
type Address = types.Address

// MoveAddressLength is the width of a Move AccountAddress.
const MoveAddressLength = 32

// MoveAddress is a 32-byte Move AccountAddress.
type MoveAddress [MoveAddressLength]byte

// ToMoveAddress widens a 20-byte Ethereum address into Move's 32-byte
// AccountAddress space by zero-extending on the left, the same convention
// go-ethereum uses when comparing addresses to 32-byte storage slots.
func ToMoveAddress(a Address) MoveAddress {
	var m MoveAddress
	copy(m[MoveAddressLength-len(a):], a[:])
	return m
}

// FromMoveAddress narrows a Move AccountAddress back to a 20-byte Ethereum
// address, taking the low 20 bytes. Used only for addresses that originated
// as ToMoveAddress(addr); Move-native addresses with nonzero high bytes have
// no Ethereum representation and must not be narrowed.
func FromMoveAddress(m MoveAddress) Address {
	var a Address
	copy(a[:], m[MoveAddressLength-len(a):])
	return a
}
