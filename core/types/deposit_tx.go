package types

import "math/big"

// DepositTxType is the OP-stack transaction type byte (0x7E) for an
// L1-to-L2 deposited transaction: a privileged, unsigned transaction that
// carries L1-originated value and calldata into this chain. The rollup
// driver places deposited transactions at the front of a block's
// transaction list; they bypass signature verification and the sender's
// nonce/balance gas-fee checks that gate ordinary transactions.
const DepositTxType = 0x7E

// DepositTx is the inner data of a deposited transaction. SourceHash
// uniquely identifies the L1 event (a deposit log, or an L1 attributes
// update) that produced this transaction, and is never re-derived on L2.
type DepositTx struct {
	SourceHash          Hash
	From                Address
	To                  *Address // nil only for a contract-creation deposit
	Mint                *big.Int // units minted to To before any call executes
	Value               *big.Int // call value, separate from Mint
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

func (tx *DepositTx) txType() byte          { return DepositTxType }
func (tx *DepositTx) chainID() *big.Int     { return new(big.Int) }
func (tx *DepositTx) accessList() AccessList { return nil }
func (tx *DepositTx) data() []byte          { return tx.Data }
func (tx *DepositTx) gas() uint64           { return tx.Gas }
func (tx *DepositTx) gasPrice() *big.Int    { return new(big.Int) }
func (tx *DepositTx) gasTipCap() *big.Int   { return new(big.Int) }
func (tx *DepositTx) gasFeeCap() *big.Int   { return new(big.Int) }
func (tx *DepositTx) value() *big.Int       { return tx.Value }
func (tx *DepositTx) nonce() uint64         { return 0 }
func (tx *DepositTx) to() *Address          { return tx.To }

func (tx *DepositTx) copy() TxData {
	cpy := &DepositTx{
		SourceHash:          tx.SourceHash,
		From:                tx.From,
		To:                  copyAddressPtr(tx.To),
		Gas:                 tx.Gas,
		IsSystemTransaction: tx.IsSystemTransaction,
		Data:                copyBytes(tx.Data),
	}
	if tx.Mint != nil {
		cpy.Mint = new(big.Int).Set(tx.Mint)
	}
	if tx.Value != nil {
		cpy.Value = new(big.Int).Set(tx.Value)
	}
	return cpy
}

// MintAmount returns the total base-token units this deposit mints to its
// recipient: Mint plus Value. Either field may be nil.
func (tx *DepositTx) MintAmount() *big.Int {
	total := new(big.Int)
	if tx.Mint != nil {
		total.Add(total, tx.Mint)
	}
	if tx.Value != nil {
		total.Add(total, tx.Value)
	}
	return total
}

// DepositTxData returns tx's inner DepositTx and true if tx is a deposited
// transaction, or (nil, false) otherwise.
func (tx *Transaction) DepositTxData() (*DepositTx, bool) {
	dep, ok := tx.inner.(*DepositTx)
	return dep, ok
}

// NewDepositTx builds a deposited transaction envelope, copying inner.
func NewDepositTx(inner *DepositTx) *Transaction {
	return NewTransaction(inner)
}
