package core

import (
	"fmt"

	"github.com/umi-network/op-move/core/state"
	"github.com/umi-network/op-move/core/types"
)

// StateProcessor re-executes an already-assembled block's transactions
// against a state, the mirror image of what BlockBuilder does while
// assembling one. Blockchain uses it to replay blocks when deriving state
// at an arbitrary height.
type StateProcessor struct {
	config *ChainConfig
}

// NewStateProcessor creates a state processor for the given chain config.
func NewStateProcessor(config *ChainConfig) *StateProcessor {
	return &StateProcessor{config: config}
}

// Process applies every transaction in block to statedb in order, mutating
// statedb in place, and returns the resulting receipts. It does not touch
// the header: callers that need header.Root/GasUsed/Bloom recomputed after
// processing should do so the same way BlockBuilder does.
func (p *StateProcessor) Process(block *types.Block, statedb state.StateDB) ([]*types.Receipt, error) {
	header := block.Header()
	gasPool := new(GasPool).AddGas(header.GasLimit)

	var (
		receipts []*types.Receipt
		gasUsed  uint64
	)

	for i, tx := range block.Transactions() {
		statedb.SetTxContext(tx.Hash(), i)

		receipt, used, err := ApplyTransaction(p.config, statedb, header, tx, gasPool)
		if err != nil {
			return nil, fmt.Errorf("process block %d tx %d: %w", block.NumberU64(), i, err)
		}
		gasUsed += used
		receipts = append(receipts, receipt)
	}

	if gasUsed != header.GasUsed {
		return nil, fmt.Errorf("%w: computed %d, header %d", ErrInvalidGasUsed, gasUsed, header.GasUsed)
	}

	types.DeriveReceiptFields(receipts, block.Hash(), block.NumberU64(), header.BaseFee, block.Transactions())

	if root := statedb.GetRoot(); root != header.Root {
		return nil, fmt.Errorf("%w: computed %s, header %s", ErrRootMismatch, root.Hex(), header.Root.Hex())
	}

	return receipts, nil
}
