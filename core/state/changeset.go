// changeset.go implements the account-trie diff applied after a block (or a
// single transaction, for the execution package's per-tx ChangeSet) has run:
// a set of account/storage/code writes and deletions, applied against a
// trie.NodeDatabase rooted at a prior state root to produce a new root.
// Mirrors BuildStateTrie/BuildStorageTrie's key and value encoding so a
// ChangeSet-produced root and a from-scratch rebuilt trie agree.
package state

import (
	"math/big"

	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/crypto"
	"github.com/umi-network/op-move/rlp"
	"github.com/umi-network/op-move/trie"
)

// AccountFields is a nonce/balance write for one account. Root and CodeHash
// are deliberately absent: Apply always derives them from StorageWrites/
// CodeWrites or preserves whatever the trie already holds, so an
// AccountFields write can never clobber an account's code or storage as a
// side effect of an unrelated balance change.
type AccountFields struct {
	Nonce   uint64
	Balance *big.Int
}

// ChangeSet collects every state mutation produced while executing one or
// more transactions, staged separately from the trie so the trie is only
// walked once per affected account when it is applied.
type ChangeSet struct {
	AccountWrites map[types.Address]AccountFields
	StorageWrites map[types.Address]map[types.Hash]types.Hash
	CodeWrites    map[types.Address][]byte
	Deletions     []types.Address
}

// NewChangeSet returns an empty ChangeSet ready for writes.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		AccountWrites: make(map[types.Address]AccountFields),
		StorageWrites: make(map[types.Address]map[types.Hash]types.Hash),
		CodeWrites:    make(map[types.Address][]byte),
	}
}

// SetAccountFields records a nonce/balance write.
func (cs *ChangeSet) SetAccountFields(addr types.Address, fields AccountFields) {
	cs.AccountWrites[addr] = fields
}

// SetStorage records a single storage-slot write.
func (cs *ChangeSet) SetStorage(addr types.Address, key, value types.Hash) {
	slots, ok := cs.StorageWrites[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		cs.StorageWrites[addr] = slots
	}
	slots[key] = value
}

// SetCode records a code write; the account's CodeHash is derived from it
// when the ChangeSet is applied.
func (cs *ChangeSet) SetCode(addr types.Address, code []byte) {
	cs.CodeWrites[addr] = code
}

// Delete marks an account for removal (self-destruct).
func (cs *ChangeSet) Delete(addr types.Address) {
	cs.Deletions = append(cs.Deletions, addr)
}

// Empty reports whether the ChangeSet has nothing to apply.
func (cs *ChangeSet) Empty() bool {
	return len(cs.AccountWrites) == 0 && len(cs.StorageWrites) == 0 &&
		len(cs.CodeWrites) == 0 && len(cs.Deletions) == 0
}

func encodeAccount(acct types.Account) ([]byte, error) {
	balance := acct.Balance
	if balance == nil {
		balance = new(big.Int)
	}
	root := acct.Root
	if root == (types.Hash{}) {
		root = types.EmptyRootHash
	}
	codeHash := acct.CodeHash
	if len(codeHash) == 0 {
		codeHash = types.EmptyCodeHash.Bytes()
	}
	return rlp.EncodeToBytes(rlpAccount{
		Nonce:    acct.Nonce,
		Balance:  balance,
		Root:     root[:],
		CodeHash: codeHash,
	})
}

func decodeAccount(data []byte) (types.Account, error) {
	var acc rlpAccount
	if err := rlp.DecodeBytes(data, &acc); err != nil {
		return types.Account{}, err
	}
	return types.Account{
		Nonce:    acc.Nonce,
		Balance:  acc.Balance,
		Root:     types.BytesToHash(acc.Root),
		CodeHash: acc.CodeHash,
	}, nil
}

// Apply loads the account trie rooted at root from db, applies cs's storage
// writes (recomputing each touched account's storage root), code writes
// (recomputing CodeHash), and direct account-field writes, deletes the
// accounts in cs.Deletions, commits every touched trie node into db, and
// returns the resulting state root.
//
// Self-destructed accounts are removed from AccountWrites/StorageWrites/
// CodeWrites consideration but are left as empty-account entries in the
// trie rather than physically pruned: ResolvableTrie has no delete
// operation, matching this tree's storage tries (see BuildStorageTrie),
// which are always rebuilt from scratch rather than incrementally pruned.
func Apply(root types.Hash, cs *ChangeSet, db *trie.NodeDatabase) (types.Hash, error) {
	accountTrie, err := trie.NewResolvableTrie(root, db)
	if err != nil {
		return types.Hash{}, err
	}

	deleted := make(map[types.Address]bool, len(cs.Deletions))
	for _, addr := range cs.Deletions {
		deleted[addr] = true
	}

	touchedAddrs := make(map[types.Address]bool)
	for addr := range cs.AccountWrites {
		touchedAddrs[addr] = true
	}
	for addr := range cs.StorageWrites {
		touchedAddrs[addr] = true
	}
	for addr := range cs.CodeWrites {
		touchedAddrs[addr] = true
	}

	loadAccount := func(addr types.Address) (types.Account, error) {
		raw, err := accountTrie.Get(crypto.Keccak256(addr[:]))
		if err != nil || raw == nil {
			return types.NewAccount(), nil
		}
		return decodeAccount(raw)
	}

	for addr := range touchedAddrs {
		if deleted[addr] {
			continue
		}

		acct, err := loadAccount(addr)
		if err != nil {
			return types.Hash{}, err
		}

		if fields, ok := cs.AccountWrites[addr]; ok {
			acct.Nonce = fields.Nonce
			if fields.Balance != nil {
				acct.Balance = fields.Balance
			}
		}

		if slots, ok := cs.StorageWrites[addr]; ok {
			storageRoot := acct.Root
			if storageRoot == (types.Hash{}) {
				storageRoot = types.EmptyRootHash
			}
			storageTrie, err := trie.NewResolvableTrie(storageRoot, db)
			if err != nil {
				return types.Hash{}, err
			}
			for key, value := range slots {
				encoded, err := rlp.EncodeToBytes(trimLeadingZeros(value[:]))
				if err != nil {
					return types.Hash{}, err
				}
				if err := storageTrie.Put(crypto.Keccak256(key[:]), encoded); err != nil {
					return types.Hash{}, err
				}
			}
			newStorageRoot, err := storageTrie.Commit()
			if err != nil {
				return types.Hash{}, err
			}
			acct.Root = newStorageRoot
		}

		if code, ok := cs.CodeWrites[addr]; ok {
			acct.CodeHash = crypto.Keccak256(code)
		}

		encoded, err := encodeAccount(acct)
		if err != nil {
			return types.Hash{}, err
		}
		if err := accountTrie.Put(crypto.Keccak256(addr[:]), encoded); err != nil {
			return types.Hash{}, err
		}
	}

	for addr := range deleted {
		encoded, err := encodeAccount(types.NewAccount())
		if err != nil {
			return types.Hash{}, err
		}
		if err := accountTrie.Put(crypto.Keccak256(addr[:]), encoded); err != nil {
			return types.Hash{}, err
		}
	}

	return accountTrie.Commit()
}
