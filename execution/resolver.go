// Package execution hosts the per-transaction execution session: the outer
// session that owns a state resolver and accumulates a ChangeSet, and the
// inner EVM-native call that runs the recovered core/vm interpreter over a
// buffered view of that resolver.
package execution

import (
	"math/big"

	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/crypto"
)

// StateResolver is the read-only view a Session stages its execution
// against: live account/storage reads through the staged trie, with no
// mutation capability. Both core/state.MemoryStateDB and
// core/state.TrieBackedStateDB satisfy it already, since GetState names
// their storage reader the same way the EVM does.
type StateResolver interface {
	GetBalance(addr types.Address) *big.Int
	GetNonce(addr types.Address) uint64
	GetCode(addr types.Address) []byte
	GetCodeHash(addr types.Address) types.Hash
	GetState(addr types.Address, key types.Hash) types.Hash
	Exist(addr types.Address) bool
}

// ResolverBackedDB adapts a StateResolver into a vm.StateDB: every read
// falls through to the resolver unless the address/slot has already been
// written this call, and every write lands in an in-memory overlay that is
// never pushed back to the resolver. Extract() walks the overlay once the
// call returns and produces ChangeSet entries; the resolver itself is never
// mutated, so a reverted or discarded call leaves no trace.
type ResolverBackedDB struct {
	resolver StateResolver

	balances map[types.Address]*big.Int
	nonces   map[types.Address]uint64
	codes    map[types.Address][]byte
	storage  map[types.Address]map[types.Hash]types.Hash
	created  map[types.Address]bool
	selfdestructed map[types.Address]bool

	transient map[types.Address]map[types.Hash]types.Hash

	logs   []*types.Log
	refund uint64

	warmAddrs map[types.Address]bool
	warmSlots map[types.Address]map[types.Hash]bool

	journal []func()
}

// NewResolverBackedDB creates a ResolverBackedDB reading through resolver.
func NewResolverBackedDB(resolver StateResolver) *ResolverBackedDB {
	return &ResolverBackedDB{
		resolver:       resolver,
		balances:       make(map[types.Address]*big.Int),
		nonces:         make(map[types.Address]uint64),
		codes:          make(map[types.Address][]byte),
		storage:        make(map[types.Address]map[types.Hash]types.Hash),
		created:        make(map[types.Address]bool),
		selfdestructed: make(map[types.Address]bool),
		transient:      make(map[types.Address]map[types.Hash]types.Hash),
		warmAddrs:      make(map[types.Address]bool),
		warmSlots:      make(map[types.Address]map[types.Hash]bool),
	}
}

func (db *ResolverBackedDB) CreateAccount(addr types.Address) {
	prevCreated := db.created[addr]
	db.created[addr] = true
	db.journal = append(db.journal, func() { db.created[addr] = prevCreated })
}

func (db *ResolverBackedDB) GetBalance(addr types.Address) *big.Int {
	if b, ok := db.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return db.resolver.GetBalance(addr)
}

func (db *ResolverBackedDB) setBalance(addr types.Address, v *big.Int) {
	prev, had := db.balances[addr]
	db.balances[addr] = v
	db.journal = append(db.journal, func() {
		if had {
			db.balances[addr] = prev
		} else {
			delete(db.balances, addr)
		}
	})
}

func (db *ResolverBackedDB) AddBalance(addr types.Address, amount *big.Int) {
	db.setBalance(addr, new(big.Int).Add(db.GetBalance(addr), amount))
}

func (db *ResolverBackedDB) SubBalance(addr types.Address, amount *big.Int) {
	db.setBalance(addr, new(big.Int).Sub(db.GetBalance(addr), amount))
}

func (db *ResolverBackedDB) GetNonce(addr types.Address) uint64 {
	if n, ok := db.nonces[addr]; ok {
		return n
	}
	return db.resolver.GetNonce(addr)
}

func (db *ResolverBackedDB) SetNonce(addr types.Address, nonce uint64) {
	prev, had := db.nonces[addr]
	db.nonces[addr] = nonce
	db.journal = append(db.journal, func() {
		if had {
			db.nonces[addr] = prev
		} else {
			delete(db.nonces, addr)
		}
	})
}

func (db *ResolverBackedDB) GetCode(addr types.Address) []byte {
	if c, ok := db.codes[addr]; ok {
		return c
	}
	return db.resolver.GetCode(addr)
}

func (db *ResolverBackedDB) SetCode(addr types.Address, code []byte) {
	prev, had := db.codes[addr]
	db.codes[addr] = code
	db.journal = append(db.journal, func() {
		if had {
			db.codes[addr] = prev
		} else {
			delete(db.codes, addr)
		}
	})
}

func (db *ResolverBackedDB) GetCodeHash(addr types.Address) types.Hash {
	if c, ok := db.codes[addr]; ok {
		if len(c) == 0 {
			return types.EmptyCodeHash
		}
		return crypto.Keccak256Hash(c)
	}
	return db.resolver.GetCodeHash(addr)
}

func (db *ResolverBackedDB) GetCodeSize(addr types.Address) int {
	return len(db.GetCode(addr))
}

func (db *ResolverBackedDB) GetState(addr types.Address, key types.Hash) types.Hash {
	if slots, ok := db.storage[addr]; ok {
		if v, ok := slots[key]; ok {
			return v
		}
	}
	return db.resolver.GetState(addr, key)
}

func (db *ResolverBackedDB) SetState(addr types.Address, key types.Hash, value types.Hash) {
	slots, ok := db.storage[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		db.storage[addr] = slots
	}
	prev, had := slots[key]
	slots[key] = value
	db.journal = append(db.journal, func() {
		if had {
			slots[key] = prev
		} else {
			delete(slots, key)
		}
	})
}

// GetCommittedState returns the resolver's view directly, ignoring this
// call's overlay: it is the state as of the start of the call, which is
// exactly what the resolver (never mutated by this struct) already holds.
func (db *ResolverBackedDB) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	return db.resolver.GetState(addr, key)
}

func (db *ResolverBackedDB) GetTransientState(addr types.Address, key types.Hash) types.Hash {
	if slots, ok := db.transient[addr]; ok {
		return slots[key]
	}
	return types.Hash{}
}

func (db *ResolverBackedDB) SetTransientState(addr types.Address, key types.Hash, value types.Hash) {
	slots, ok := db.transient[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		db.transient[addr] = slots
	}
	prev, had := slots[key]
	slots[key] = value
	db.journal = append(db.journal, func() {
		if had {
			slots[key] = prev
		} else {
			delete(slots, key)
		}
	})
}

func (db *ResolverBackedDB) ClearTransientStorage() {
	prev := db.transient
	db.transient = make(map[types.Address]map[types.Hash]types.Hash)
	db.journal = append(db.journal, func() { db.transient = prev })
}

func (db *ResolverBackedDB) SelfDestruct(addr types.Address) {
	prev := db.selfdestructed[addr]
	db.selfdestructed[addr] = true
	db.setBalance(addr, new(big.Int))
	db.journal = append(db.journal, func() { db.selfdestructed[addr] = prev })
}

func (db *ResolverBackedDB) HasSelfDestructed(addr types.Address) bool {
	return db.selfdestructed[addr]
}

func (db *ResolverBackedDB) Exist(addr types.Address) bool {
	if db.created[addr] {
		return true
	}
	if _, ok := db.balances[addr]; ok {
		return true
	}
	if _, ok := db.nonces[addr]; ok {
		return true
	}
	if _, ok := db.codes[addr]; ok {
		return true
	}
	return db.resolver.Exist(addr)
}

func (db *ResolverBackedDB) Empty(addr types.Address) bool {
	return db.GetNonce(addr) == 0 && db.GetBalance(addr).Sign() == 0 && db.GetCodeHash(addr) == types.EmptyCodeHash
}

func (db *ResolverBackedDB) Snapshot() int {
	return len(db.journal)
}

func (db *ResolverBackedDB) RevertToSnapshot(id int) {
	for i := len(db.journal) - 1; i >= id; i-- {
		db.journal[i]()
	}
	db.journal = db.journal[:id]
}

func (db *ResolverBackedDB) AddLog(log *types.Log) {
	db.logs = append(db.logs, log)
	db.journal = append(db.journal, func() { db.logs = db.logs[:len(db.logs)-1] })
}

// Logs returns every log recorded during the call.
func (db *ResolverBackedDB) Logs() []*types.Log { return db.logs }

func (db *ResolverBackedDB) AddRefund(gas uint64) {
	db.refund += gas
	db.journal = append(db.journal, func() { db.refund -= gas })
}

func (db *ResolverBackedDB) SubRefund(gas uint64) {
	db.refund -= gas
	db.journal = append(db.journal, func() { db.refund += gas })
}

func (db *ResolverBackedDB) GetRefund() uint64 { return db.refund }

func (db *ResolverBackedDB) AddAddressToAccessList(addr types.Address) {
	if db.warmAddrs[addr] {
		return
	}
	db.warmAddrs[addr] = true
	db.journal = append(db.journal, func() { delete(db.warmAddrs, addr) })
}

func (db *ResolverBackedDB) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	db.AddAddressToAccessList(addr)
	slots, ok := db.warmSlots[addr]
	if !ok {
		slots = make(map[types.Hash]bool)
		db.warmSlots[addr] = slots
	}
	if slots[slot] {
		return
	}
	slots[slot] = true
	db.journal = append(db.journal, func() { delete(slots, slot) })
}

func (db *ResolverBackedDB) AddressInAccessList(addr types.Address) bool {
	return db.warmAddrs[addr]
}

func (db *ResolverBackedDB) SlotInAccessList(addr types.Address, slot types.Hash) (bool, bool) {
	addrOk := db.warmAddrs[addr]
	slotOk := db.warmSlots[addr] != nil && db.warmSlots[addr][slot]
	return addrOk, slotOk
}
