// Package storage implements the node's persisted column layout: block,
// transaction, receipt, trie-node, and payload-id columns sharing one
// physical key-value store, each isolated behind its own kv.Table prefix.
// Grounded on the teacher's core/rawdb package, which does the same
// prefix-per-column trick against a single ethdb.KeyValueStore; this
// package carries that pattern into the nine columns this node actually
// needs instead of go-ethereum's full header/body/bloom-bits schema.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/umi-network/op-move/core/types"
	"github.com/umi-network/op-move/kv"
)

// ErrNotFound is returned when a lookup misses in a column.
var ErrNotFound = errors.New("storage: not found")

// Column prefixes, one per logical table named in the persisted-layout spec.
const (
	colBlock              = "block/"
	colBlockHeight        = "block_height/"
	colState              = "state/"
	colStateRootByHeight  = "state_root_by_height/"
	colEVMStorageTrie     = "evm_storage_trie/"
	colEVMStorageTrieRoot = "evm_storage_trie_root/"
	colTransaction        = "transaction/"
	colReceipt            = "receipt/"
	colPayload            = "payload/"
)

// Store is the node's persisted layout: nine disjoint columns over one
// kv.Store. Only the actor goroutine writes to it; readers may be called
// concurrently with writes, matching the single-writer-many-readers model.
type Store struct {
	db kv.Store

	block              *kv.Table
	blockHeight        *kv.Table
	state              *kv.Table
	stateRootByHeight  *kv.Table
	evmStorageTrie     *kv.Table
	evmStorageTrieRoot *kv.Table
	transaction        *kv.Table
	receipt            *kv.Table
	payload            *kv.Table
}

// New wraps a kv.Store with the nine-column layout. Pass kv.NewMemory() for
// tests and the default in-memory backend, or kv.OpenPebble(dir) for
// persistence.
func New(db kv.Store) *Store {
	return &Store{
		db:                 db,
		block:              kv.NewTable(db, colBlock),
		blockHeight:        kv.NewTable(db, colBlockHeight),
		state:              kv.NewTable(db, colState),
		stateRootByHeight:  kv.NewTable(db, colStateRootByHeight),
		evmStorageTrie:     kv.NewTable(db, colEVMStorageTrie),
		evmStorageTrieRoot: kv.NewTable(db, colEVMStorageTrieRoot),
		transaction:        kv.NewTable(db, colTransaction),
		receipt:            kv.NewTable(db, colReceipt),
		payload:            kv.NewTable(db, colPayload),
	}
}

// Close closes the underlying kv.Store.
func (s *Store) Close() error { return s.db.Close() }

func encodeHeight(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return b[:]
}

// PutBlock writes an ExtendedBlock keyed by hash, and indexes it by height
// in block_height.
func (s *Store) PutBlock(block *types.Block) error {
	raw, err := block.EncodeRLP()
	if err != nil {
		return fmt.Errorf("storage: encode block: %w", err)
	}
	hash := block.Hash()
	if err := s.block.Put(hash[:], raw); err != nil {
		return err
	}
	return s.blockHeight.Put(encodeHeight(block.NumberU64()), hash[:])
}

// GetBlockByHash returns the block stored under hash.
func (s *Store) GetBlockByHash(hash types.Hash) (*types.Block, error) {
	raw, err := s.block.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, hash.Hex())
	}
	return types.DecodeBlockRLP(raw)
}

// GetBlockByHeight resolves the canonical block hash for a height, then
// loads the block.
func (s *Store) GetBlockByHeight(height uint64) (*types.Block, error) {
	hashBytes, err := s.blockHeight.Get(encodeHeight(height))
	if err != nil {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return s.GetBlockByHash(types.BytesToHash(hashBytes))
}

// PutStateRoot records the state root produced by the block at height.
func (s *Store) PutStateRoot(height uint64, root types.Hash) error {
	return s.stateRootByHeight.Put(encodeHeight(height), root[:])
}

// GetStateRoot returns the state root recorded for height.
func (s *Store) GetStateRoot(height uint64) (types.Hash, error) {
	raw, err := s.stateRootByHeight.Get(encodeHeight(height))
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return types.BytesToHash(raw), nil
}

// PutStateNode writes a trie node keyed by its content hash into the state
// column.
func (s *Store) PutStateNode(hash types.Hash, rlpNode []byte) error {
	return s.state.Put(hash[:], rlpNode)
}

// GetStateNode reads a trie node by content hash from the state column.
func (s *Store) GetStateNode(hash types.Hash) ([]byte, error) {
	raw, err := s.state.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, hash.Hex())
	}
	return raw, nil
}

// evmStorageTrieKey = account || node_hash, per the persisted-layout spec.
func evmStorageTrieKey(account types.Address, nodeHash types.Hash) []byte {
	key := make([]byte, types.AddressLength+types.HashLength)
	copy(key, account[:])
	copy(key[types.AddressLength:], nodeHash[:])
	return key
}

// PutEVMStorageTrieNode writes a per-account EVM storage trie node.
func (s *Store) PutEVMStorageTrieNode(account types.Address, nodeHash types.Hash, rlpNode []byte) error {
	return s.evmStorageTrie.Put(evmStorageTrieKey(account, nodeHash), rlpNode)
}

// GetEVMStorageTrieNode reads a per-account EVM storage trie node.
func (s *Store) GetEVMStorageTrieNode(account types.Address, nodeHash types.Hash) ([]byte, error) {
	raw, err := s.evmStorageTrie.Get(evmStorageTrieKey(account, nodeHash))
	if err != nil {
		return nil, fmt.Errorf("%w: account %s node %s", ErrNotFound, account.Hex(), nodeHash.Hex())
	}
	return raw, nil
}

// PutEVMStorageTrieRoot records the current storage root for an account.
func (s *Store) PutEVMStorageTrieRoot(account types.Address, root types.Hash) error {
	return s.evmStorageTrieRoot.Put(account[:], root[:])
}

// GetEVMStorageTrieRoot returns the current storage root for an account, or
// the empty root hash if the account has never had storage written.
func (s *Store) GetEVMStorageTrieRoot(account types.Address) (types.Hash, error) {
	raw, err := s.evmStorageTrieRoot.Get(account[:])
	if err != nil {
		return types.EmptyRootHash, nil
	}
	return types.BytesToHash(raw), nil
}

// PutTransaction stores an ExtendedTransaction keyed by its hash.
func (s *Store) PutTransaction(tx *types.Transaction) error {
	raw, err := tx.EncodeRLP()
	if err != nil {
		return fmt.Errorf("storage: encode transaction: %w", err)
	}
	hash := tx.Hash()
	return s.transaction.Put(hash[:], raw)
}

// GetTransaction returns the transaction stored under hash.
func (s *Store) GetTransaction(hash types.Hash) (*types.Transaction, error) {
	raw, err := s.transaction.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, hash.Hex())
	}
	return types.DecodeTxRLP(raw)
}

// PutReceipt stores an ExtendedReceipt keyed by its transaction hash.
func (s *Store) PutReceipt(receipt *types.Receipt) error {
	raw, err := receipt.EncodeRLP()
	if err != nil {
		return fmt.Errorf("storage: encode receipt: %w", err)
	}
	return s.receipt.Put(receipt.TxHash[:], raw)
}

// GetReceipt returns the receipt stored under a transaction hash.
func (s *Store) GetReceipt(txHash types.Hash) (*types.Receipt, error) {
	raw, err := s.receipt.Get(txHash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, txHash.Hex())
	}
	return types.DecodeReceiptRLP(raw)
}

// encodePayloadID matches the spec's big-endian 8-byte payload_id key.
func encodePayloadID(id [8]byte) []byte {
	return id[:]
}

// PutPayload records which block a payload id built.
func (s *Store) PutPayload(id [8]byte, blockHash types.Hash) error {
	return s.payload.Put(encodePayloadID(id), blockHash[:])
}

// GetPayload returns the block hash a payload id built.
func (s *Store) GetPayload(id [8]byte) (types.Hash, error) {
	raw, err := s.payload.Get(encodePayloadID(id))
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: payload %x", ErrNotFound, id)
	}
	return types.BytesToHash(raw), nil
}
