package execution

import (
	"math/big"

	"github.com/umi-network/op-move/core/state"
	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/core/vm"
)

// Session is the outer Move session for one transaction: it owns the
// read-only StateResolver the transaction executes against and accumulates a
// ChangeSet across however many native calls the transaction makes (today,
// at most one EVMNative call plus an optional direct mint for deposited
// transactions). Nothing is written back to the resolver until the caller
// applies the returned ChangeSet against the account trie.
type Session struct {
	resolver StateResolver
	changes  *state.ChangeSet
}

// NewSession starts a Move session reading through resolver.
func NewSession(resolver StateResolver) *Session {
	return &Session{
		resolver: resolver,
		changes:  state.NewChangeSet(),
	}
}

// ChangeSet returns the changes accumulated so far.
func (s *Session) ChangeSet() *state.ChangeSet {
	return s.changes
}

// Mint records a direct Move-layer balance credit with no corresponding EVM
// call: the deposited-transaction mint path (see
// core.applyDepositedTransaction), expressed as a ChangeSet entry instead of
// a direct statedb.AddBalance so it composes with whatever an EVMNative call
// in the same session already staged for the same address.
func (s *Session) Mint(recipient types.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	balance := new(big.Int).Add(s.resolver.GetBalance(recipient), amount)
	if existing, ok := s.changes.AccountWrites[recipient]; ok {
		balance = new(big.Int).Add(existing.Balance, amount)
		s.changes.SetAccountFields(recipient, state.AccountFields{
			Nonce:   existing.Nonce,
			Balance: balance,
		})
		return
	}
	s.changes.SetAccountFields(recipient, state.AccountFields{
		Nonce:   s.resolver.GetNonce(recipient),
		Balance: balance,
	})
}

// RunEVM executes one EVM-native call or creation against a fresh
// ResolverBackedDB layered over the session's resolver, merges the native
// call's buffered writes into the session's ChangeSet, and returns the
// native call's logs alongside whatever the call itself returned. action is
// called exactly once with the constructed native call.
func (s *Session) RunEVM(blockCtx vm.BlockContext, txCtx vm.TxContext, forkRules vm.ForkRules, action func(*EVMNative) ([]byte, uint64, error)) ([]byte, uint64, []*types.Log, error) {
	native := NewEVMNative(s.resolver, blockCtx, txCtx, forkRules)
	ret, leftoverGas, err := action(native)
	native.Extract(s.changes)
	return ret, leftoverGas, native.Logs(), err
}

// Merge folds another session's ChangeSet into this one, overwriting any
// overlapping entries with the other session's values. Used when a
// transaction's Move-layer effects (e.g. a deposit mint) and its EVM-native
// effects are staged in separate Sessions and must be combined before
// Apply.
func (s *Session) Merge(other *state.ChangeSet) {
	for addr, fields := range other.AccountWrites {
		s.changes.SetAccountFields(addr, fields)
	}
	for addr, slots := range other.StorageWrites {
		for key, value := range slots {
			s.changes.SetStorage(addr, key, value)
		}
	}
	for addr, code := range other.CodeWrites {
		s.changes.SetCode(addr, code)
	}
	s.changes.Deletions = append(s.changes.Deletions, other.Deletions...)
}
