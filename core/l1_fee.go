package core

import "math/big"

// L1FeeParams configures the L1 data-availability charge pre-deducted from
// every non-deposited transaction's sender. The cost model mirrors the gas
// oracle's own calldata estimator (rpc.GasOracle.EstimateL1DataFee) so the
// fee quoted to a client at submission time matches what is actually
// charged at inclusion.
type L1FeeParams struct {
	L1BaseFee  *big.Int
	GasPerByte *big.Int
}

// DefaultL1FeeParams returns L1FeeParams using the standard 16-gas-per-byte
// calldata cost model at the given L1 base fee.
func DefaultL1FeeParams(l1BaseFee *big.Int) *L1FeeParams {
	return &L1FeeParams{L1BaseFee: l1BaseFee, GasPerByte: big.NewInt(16)}
}

// L1Fee computes the L1 data-availability fee for a transaction's calldata
// under params. Returns zero if params or its base fee is unset.
func L1Fee(data []byte, params *L1FeeParams) *big.Int {
	if params == nil || params.L1BaseFee == nil || params.L1BaseFee.Sign() == 0 {
		return new(big.Int)
	}
	gasPerByte := params.GasPerByte
	if gasPerByte == nil {
		gasPerByte = big.NewInt(16)
	}
	fee := new(big.Int).SetUint64(uint64(len(data)))
	fee.Mul(fee, gasPerByte)
	fee.Mul(fee, params.L1BaseFee)
	return fee
}
