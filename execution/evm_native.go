package execution

import (
	"math/big"

	"github.com/umi-network/op-move/core/state"
	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/core/vm"
)

// EVMNative is the native call a Move session reaches for when a
// transaction targets EVM-compatible bytecode: it stands up the recovered
// core/vm interpreter over a ResolverBackedDB for the duration of one call
// or contract creation, then hands back a buffered journal the Session can
// extract into ChangeSet entries.
type EVMNative struct {
	db  *ResolverBackedDB
	evm *vm.EVM
}

// NewEVMNative constructs the EVM native call for a single transaction.
// blockCtx and txCtx carry the ambient header/transaction context the
// interpreter needs (coinbase, base fee, origin, gas price); forkRules
// selects the jump table, precompile set, and gas schedule exactly as
// core.applyMessage does for ordinary (non-Move) execution.
func NewEVMNative(resolver StateResolver, blockCtx vm.BlockContext, txCtx vm.TxContext, forkRules vm.ForkRules) *EVMNative {
	db := NewResolverBackedDB(resolver)
	evm := vm.NewEVMWithState(blockCtx, txCtx, vm.Config{}, db)
	evm.SetJumpTable(vm.SelectJumpTable(forkRules))
	precompiles := vm.SelectPrecompiles(forkRules)
	evm.SetPrecompiles(precompiles)
	evm.SetForkRules(forkRules)
	for addr := range precompiles {
		db.AddAddressToAccessList(addr)
	}
	return &EVMNative{db: db, evm: evm}
}

// Call runs a message call (evm_call) against the buffered state.
func (n *EVMNative) Call(from, to types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	n.db.AddAddressToAccessList(from)
	n.db.AddAddressToAccessList(to)
	return n.evm.Call(from, to, input, gas, value)
}

// Create runs a contract creation against the buffered state.
func (n *EVMNative) Create(from types.Address, code []byte, gas uint64, value *big.Int) ([]byte, types.Address, uint64, error) {
	n.db.AddAddressToAccessList(from)
	return n.evm.Create(from, code, gas, value)
}

// Extract walks the native call's buffered overlay and produces the
// ChangeSet entries it represents: every touched balance/nonce/code/storage
// write, one entry per address or slot, plus a deletion for every
// self-destructed account. Must be called after the call/create above has
// returned (or been reverted via RevertToSnapshot) and reflects the state
// of the overlay at the time it is called.
func (n *EVMNative) Extract(cs *state.ChangeSet) {
	for addr := range n.db.selfdestructed {
		cs.Delete(addr)
	}
	touchedAccounts := make(map[types.Address]bool)
	for addr := range n.db.balances {
		touchedAccounts[addr] = true
	}
	for addr := range n.db.nonces {
		touchedAccounts[addr] = true
	}
	for addr, code := range n.db.codes {
		cs.SetCode(addr, code)
		touchedAccounts[addr] = true
	}
	for addr := range touchedAccounts {
		if n.db.selfdestructed[addr] {
			continue
		}
		account := state.AccountFields{
			Nonce:   n.db.GetNonce(addr),
			Balance: n.db.GetBalance(addr),
		}
		cs.SetAccountFields(addr, account)
	}
	for addr, slots := range n.db.storage {
		if n.db.selfdestructed[addr] {
			continue
		}
		for key, value := range slots {
			cs.SetStorage(addr, key, value)
		}
	}
}

// Logs returns the logs emitted during the call.
func (n *EVMNative) Logs() []*types.Log { return n.db.Logs() }

// GasUsed computes gas consumed from the gas handed in and left over,
// mirroring core.applyMessage's own accounting.
func GasUsed(gasLimit, gasLeft uint64) uint64 {
	if gasLeft > gasLimit {
		return 0
	}
	return gasLimit - gasLeft
}
