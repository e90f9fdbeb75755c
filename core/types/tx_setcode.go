package types

import "bytes"

// EIP-7702 SetCode constants.
const (
	// AuthMagic is the signing magic byte for EIP-7702 authorization hashes.
	// The authorization hash is keccak256(0x05 || rlp([chain_id, address, nonce])).
	AuthMagic byte = 0x05
)

// DelegationPrefix is the EIP-7702 delegation designator prefix. Account code
// starting with this prefix indicates the account has delegated execution to
// another address.
var DelegationPrefix = []byte{0xef, 0x01, 0x00}

// ParseDelegation extracts the target address from delegation code. It
// returns the delegated address and true if b is exactly 23 bytes with the
// 0xef0100 prefix, or the zero address and false otherwise.
func ParseDelegation(b []byte) (Address, bool) {
	if len(b) != len(DelegationPrefix)+AddressLength {
		return Address{}, false
	}
	if !bytes.HasPrefix(b, DelegationPrefix) {
		return Address{}, false
	}
	return BytesToAddress(b[len(DelegationPrefix):]), true
}

// AddressToDelegation creates delegation designator code: 0xef0100 || address.
func AddressToDelegation(addr Address) []byte {
	code := make([]byte, len(DelegationPrefix)+AddressLength)
	copy(code, DelegationPrefix)
	copy(code[len(DelegationPrefix):], addr[:])
	return code
}

// HasDelegationPrefix returns whether the code starts with the delegation prefix.
func HasDelegationPrefix(code []byte) bool {
	return bytes.HasPrefix(code, DelegationPrefix)
}
