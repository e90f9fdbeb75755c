package core

import "math/big"

// ChainConfig holds chain-level configuration for fork scheduling.
// Pre-merge forks are activated by block number; post-merge forks are
// activated by timestamp.
type ChainConfig struct {
	ChainID *big.Int

	HomesteadBlock      *big.Int
	EIP150Block         *big.Int
	EIP155Block         *big.Int
	EIP158Block         *big.Int
	ByzantiumBlock      *big.Int
	ConstantinopleBlock *big.Int
	PetersburgBlock     *big.Int
	IstanbulBlock       *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int

	TerminalTotalDifficulty *big.Int

	ShanghaiTime  *uint64
	CancunTime    *uint64
	PragueTime    *uint64
	AmsterdamTime *uint64

	// L1FeeParams configures the pre-deducted L1 data-availability charge.
	// Nil disables it (every non-deposited transaction's L1 fee is zero).
	L1FeeParams *L1FeeParams
}

func isBlockForked(forkBlock, block *big.Int) bool {
	if forkBlock == nil || block == nil {
		return false
	}
	return forkBlock.Cmp(block) <= 0
}

func isTimestampForked(forkTime *uint64, blockTime uint64) bool {
	if forkTime == nil {
		return false
	}
	return *forkTime <= blockTime
}

// IsHomestead returns whether the given block number is at or past Homestead.
func (c *ChainConfig) IsHomestead(num *big.Int) bool { return isBlockForked(c.HomesteadBlock, num) }

// IsEIP150 returns whether the given block number is at or past the EIP-150
// (Tangerine Whistle) fork.
func (c *ChainConfig) IsEIP150(num *big.Int) bool { return isBlockForked(c.EIP150Block, num) }

// IsEIP155 returns whether the given block number is at or past the EIP-155
// (Spurious Dragon replay protection) fork.
func (c *ChainConfig) IsEIP155(num *big.Int) bool { return isBlockForked(c.EIP155Block, num) }

// IsEIP158 returns whether the given block number is at or past the EIP-158
// (empty account removal) fork.
func (c *ChainConfig) IsEIP158(num *big.Int) bool { return isBlockForked(c.EIP158Block, num) }

// IsByzantium returns whether the given block number is at or past Byzantium.
func (c *ChainConfig) IsByzantium(num *big.Int) bool { return isBlockForked(c.ByzantiumBlock, num) }

// IsConstantinople returns whether the given block number is at or past
// Constantinople.
func (c *ChainConfig) IsConstantinople(num *big.Int) bool {
	return isBlockForked(c.ConstantinopleBlock, num)
}

// IsPetersburg returns whether the given block number is at or past
// Petersburg. Petersburg removed EIP-1283 (reintroduced by Constantinople);
// chains that never scheduled Petersburg explicitly fall back to the
// Constantinople activation block.
func (c *ChainConfig) IsPetersburg(num *big.Int) bool {
	if c.PetersburgBlock != nil {
		return isBlockForked(c.PetersburgBlock, num)
	}
	return isBlockForked(c.ConstantinopleBlock, num)
}

// IsIstanbul returns whether the given block number is at or past Istanbul.
func (c *ChainConfig) IsIstanbul(num *big.Int) bool { return isBlockForked(c.IstanbulBlock, num) }

// IsBerlin returns whether the given block number is at or past Berlin.
func (c *ChainConfig) IsBerlin(num *big.Int) bool { return isBlockForked(c.BerlinBlock, num) }

// IsLondon returns whether the given block number is at or past London.
func (c *ChainConfig) IsLondon(num *big.Int) bool { return isBlockForked(c.LondonBlock, num) }

// IsEIP1559 is an alias for IsLondon: EIP-1559 (fee market) activated at London.
func (c *ChainConfig) IsEIP1559(num *big.Int) bool { return c.IsLondon(num) }

// IsEIP2929 is an alias for IsBerlin: EIP-2929 (cold/warm access lists)
// activated at Berlin.
func (c *ChainConfig) IsEIP2929(num *big.Int) bool { return c.IsBerlin(num) }

// IsEIP3529 is an alias for IsLondon: EIP-3529 (reduced refunds) activated
// at London.
func (c *ChainConfig) IsEIP3529(num *big.Int) bool { return c.IsLondon(num) }

// IsMerge returns whether the chain has transitioned to proof-of-stake,
// i.e. whether a terminal total difficulty is configured.
func (c *ChainConfig) IsMerge() bool { return c.TerminalTotalDifficulty != nil }

// IsShanghai returns whether the given block time is at or past the Shanghai fork.
func (c *ChainConfig) IsShanghai(time uint64) bool {
	return isTimestampForked(c.ShanghaiTime, time)
}

// IsCancun returns whether the given block time is at or past the Cancun fork.
func (c *ChainConfig) IsCancun(time uint64) bool {
	return isTimestampForked(c.CancunTime, time)
}

// IsEIP4844 is an alias for IsCancun: EIP-4844 (blob transactions) activated
// at Cancun.
func (c *ChainConfig) IsEIP4844(time uint64) bool { return c.IsCancun(time) }

// IsPrague returns whether the given block time is at or past the Prague fork.
func (c *ChainConfig) IsPrague(time uint64) bool {
	return isTimestampForked(c.PragueTime, time)
}

// IsAmsterdam returns whether the given block time is at or past the Amsterdam fork.
func (c *ChainConfig) IsAmsterdam(time uint64) bool {
	return isTimestampForked(c.AmsterdamTime, time)
}

func newUint64(v uint64) *uint64 { return &v }

// Rules is a snapshot of which fork rules are active at a specific block
// number, merge status, and timestamp. Unlike ChainConfig (which describes
// the whole schedule), Rules is cheap to pass around and consult inside the
// hot execution path.
type Rules struct {
	ChainID *big.Int

	IsHomestead      bool
	IsEIP155         bool
	IsByzantium      bool
	IsConstantinople bool
	IsPetersburg     bool
	IsIstanbul       bool
	IsBerlin         bool
	IsEIP2929        bool
	IsLondon         bool
	IsEIP1559        bool
	IsEIP3529        bool

	IsMerge bool

	IsShanghai  bool
	IsCancun    bool
	IsEIP4844   bool
	IsPrague    bool
	IsEIP7702   bool
	IsAmsterdam bool
}

// Rules computes the fork Rules active at the given block number and
// timestamp. isMerge reports whether the caller believes the chain has
// transitioned past the terminal total difficulty; timestamp-gated forks
// only take effect once both London and the merge are active, mirroring
// the real network's fork ordering.
func (c *ChainConfig) Rules(num *big.Int, isMerge bool, time uint64) Rules {
	chainID := c.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}

	londonActive := c.IsLondon(num)
	mergeActive := isMerge && londonActive

	r := Rules{
		ChainID:          chainID,
		IsHomestead:      c.IsHomestead(num),
		IsEIP155:         c.IsEIP155(num),
		IsByzantium:      c.IsByzantium(num),
		IsConstantinople: c.IsConstantinople(num),
		IsPetersburg:     c.IsPetersburg(num),
		IsIstanbul:       c.IsIstanbul(num),
		IsBerlin:         c.IsBerlin(num),
		IsEIP2929:        c.IsEIP2929(num),
		IsLondon:         londonActive,
		IsEIP1559:        londonActive,
		IsEIP3529:        londonActive,
		IsMerge:          mergeActive,
	}

	if mergeActive {
		r.IsShanghai = c.IsShanghai(time)
		r.IsCancun = c.IsCancun(time)
		r.IsEIP4844 = r.IsCancun
		r.IsPrague = c.IsPrague(time)
		r.IsEIP7702 = r.IsPrague
		r.IsAmsterdam = c.IsAmsterdam(time)
	}

	return r
}

// MainnetConfig is the chain config for Ethereum mainnet.
var MainnetConfig = &ChainConfig{
	ChainID:                 big.NewInt(1),
	HomesteadBlock:          big.NewInt(1_150_000),
	EIP150Block:             big.NewInt(2_463_000),
	EIP155Block:             big.NewInt(2_675_000),
	EIP158Block:             big.NewInt(2_675_000),
	ByzantiumBlock:          big.NewInt(4_370_000),
	ConstantinopleBlock:     big.NewInt(7_280_000),
	PetersburgBlock:         big.NewInt(7_280_000),
	IstanbulBlock:           big.NewInt(9_069_000),
	BerlinBlock:             big.NewInt(12_244_000),
	LondonBlock:             big.NewInt(12_965_000),
	TerminalTotalDifficulty: mustParseTTD("58750000000000000000000"),
	ShanghaiTime:            newUint64(1681338455),
	CancunTime:              newUint64(1710338135),
	PragueTime:              nil, // not yet scheduled
	AmsterdamTime:           nil, // not yet scheduled
}

// SepoliaConfig is the chain config for the Sepolia testnet. All pre-merge
// forks are active at genesis.
var SepoliaConfig = &ChainConfig{
	ChainID:                 big.NewInt(11155111),
	HomesteadBlock:          big.NewInt(0),
	EIP150Block:             big.NewInt(0),
	EIP155Block:             big.NewInt(0),
	EIP158Block:             big.NewInt(0),
	ByzantiumBlock:          big.NewInt(0),
	ConstantinopleBlock:     big.NewInt(0),
	PetersburgBlock:         big.NewInt(0),
	IstanbulBlock:           big.NewInt(0),
	BerlinBlock:             big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: mustParseTTD("17000000000000000"),
	ShanghaiTime:            newUint64(1677557088),
	CancunTime:              newUint64(1706655072),
}

// HoleskyConfig is the chain config for the Holesky testnet. All pre-merge
// forks are active at genesis; Holesky launched post-merge with TTD 0.
var HoleskyConfig = &ChainConfig{
	ChainID:                 big.NewInt(17000),
	HomesteadBlock:          big.NewInt(0),
	EIP150Block:             big.NewInt(0),
	EIP155Block:             big.NewInt(0),
	EIP158Block:             big.NewInt(0),
	ByzantiumBlock:          big.NewInt(0),
	ConstantinopleBlock:     big.NewInt(0),
	PetersburgBlock:         big.NewInt(0),
	IstanbulBlock:           big.NewInt(0),
	BerlinBlock:             big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: big.NewInt(0),
	ShanghaiTime:            newUint64(1696000704),
	CancunTime:              newUint64(1707305664),
}

// TestConfig is a chain config with all forks active at genesis (block and
// time 0). Used throughout tests and as the default for standalone/devnet use.
var TestConfig = &ChainConfig{
	ChainID:                 big.NewInt(1337),
	HomesteadBlock:          big.NewInt(0),
	EIP150Block:             big.NewInt(0),
	EIP155Block:             big.NewInt(0),
	EIP158Block:             big.NewInt(0),
	ByzantiumBlock:          big.NewInt(0),
	ConstantinopleBlock:     big.NewInt(0),
	PetersburgBlock:         big.NewInt(0),
	IstanbulBlock:           big.NewInt(0),
	BerlinBlock:             big.NewInt(0),
	LondonBlock:             big.NewInt(0),
	TerminalTotalDifficulty: big.NewInt(0),
	ShanghaiTime:            newUint64(0),
	CancunTime:              newUint64(0),
	PragueTime:              newUint64(0),
	AmsterdamTime:           newUint64(0),
}

func mustParseTTD(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("chain_config: invalid terminal total difficulty literal " + s)
	}
	return v
}
