// Copyright 2024 The vchain Authors
// This file is part of the vchain library.
//
// The vchain library is free software: you can redistribute it and/or modify
// it under the terms of the MIT Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The vchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// MIT Lesser General Public License for more details.
//
// You should have received a copy of the MIT Lesser General Public License
// along with the vchain library. If not, see <https://mit-license.org/>.

package vchain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"vchain/log"
	ivm "vchain/vm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
)

// defaultHistoricLimit is how many past block states stay in memory before
// the oldest spill over to the disk cache.
const defaultHistoricLimit = 128

var (
	ErrBlockNotFound    = errors.New("block not found")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrStateNotFound    = errors.New("state not available for block")
	ErrUnknownSender    = errors.New("no key for sender and account not impersonated")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// CallMsg is an execution request independent of any signed transaction.
type CallMsg struct {
	From       common.Address
	To         *common.Address
	Gas        uint64 // 0 means block gas limit
	GasPrice   *big.Int
	GasFeeCap  *big.Int
	GasTipCap  *big.Int
	Value      *big.Int
	Data       []byte
	Nonce      *uint64
	AccessList types.AccessList
}

// FilterQuery selects logs for eth_getLogs.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

type txLocation struct {
	blockHash common.Hash
	index     int
}

type chainSnapshot struct {
	id        uint64
	headHash  common.Hash
	state     *StateSnapshot
	timestamp uint64
}

// BackendConfig carries everything a Backend needs at construction.
type BackendConfig struct {
	Genesis       *Genesis
	Fork          RemoteSource
	HistoricLimit int
	StateCacheDir string
	Logger        log.Logger
}

// Backend owns the simulated chain: the canonical world state, every mined
// block, and all dev-node cheats. A single mutex serializes mutation; reads
// run on copies so an eth_call can never observe a half-applied block.
type Backend struct {
	mu     sync.Mutex
	logger log.Logger

	chainConfig *params.ChainConfig
	genesis     *Genesis
	signer      types.Signer

	state *WorldState
	head  *types.Block

	blocks         map[common.Hash]*types.Block
	blocksByNumber map[uint64]*types.Block
	receipts       map[common.Hash]types.Receipts
	txs            map[common.Hash]*types.Transaction
	txLocations    map[common.Hash]txLocation
	txSenders      map[common.Hash]common.Address

	// historic block states keyed by state root, bounded in memory with
	// overflow on disk
	historic      map[common.Hash]*StateSnapshot
	historicOrder []common.Hash
	historicLimit int
	diskCache     *DiskStateCache

	devKeys         map[common.Address]*ecdsa.PrivateKey
	impersonated    map[common.Address]struct{}
	autoImpersonate bool

	snapshots      []*chainSnapshot
	nextSnapshotID uint64

	nextTimestamp uint64
	lastTimestamp uint64
	gasLimit      uint64
	baseFee       *big.Int
}

func NewBackend(config *BackendConfig) *Backend {
	logger := config.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	genesis := config.Genesis
	if genesis == nil {
		genesis = DefaultGenesis()
	}
	historicLimit := config.HistoricLimit
	if historicLimit <= 0 {
		historicLimit = defaultHistoricLimit
	}
	chainConfig := DevChainConfig(genesis.ChainID)
	b := &Backend{
		logger:         logger,
		chainConfig:    chainConfig,
		genesis:        genesis,
		signer:         types.LatestSigner(chainConfig),
		state:          NewWorldState(logger),
		blocks:         make(map[common.Hash]*types.Block),
		blocksByNumber: make(map[uint64]*types.Block),
		receipts:       make(map[common.Hash]types.Receipts),
		txs:            make(map[common.Hash]*types.Transaction),
		txLocations:    make(map[common.Hash]txLocation),
		txSenders:      make(map[common.Hash]common.Address),
		historic:       make(map[common.Hash]*StateSnapshot),
		historicLimit:  historicLimit,
		diskCache:      NewDiskStateCache(config.StateCacheDir, logger),
		devKeys:        make(map[common.Address]*ecdsa.PrivateKey),
		impersonated:   make(map[common.Address]struct{}),
		snapshots:      make([]*chainSnapshot, 0),
		gasLimit:       genesis.GasLimit,
		baseFee:        new(big.Int).Set(genesis.BaseFee),
	}
	if config.Fork != nil {
		b.state.SetRemote(config.Fork)
	}
	for _, dev := range genesis.Accounts {
		b.devKeys[dev.Address] = dev.Key
	}
	genesis.WriteState(b.state)
	ts := genesis.Timestamp
	if ts == 0 {
		ts = uint64(time.Now().Unix())
	}
	b.lastTimestamp = ts
	b.writeBlock(b.sealBlock(nil, nil, &blockEnv{
		Number:    new(big.Int),
		Timestamp: ts,
		GasLimit:  b.gasLimit,
		BaseFee:   b.baseFee,
	}, 0))
	return b
}

func (b *Backend) ChainConfig() *params.ChainConfig { return b.chainConfig }

func (b *Backend) ChainID() uint64 { return b.genesis.ChainID }

func (b *Backend) GasPrice() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.baseFee)
}

func (b *Backend) GasLimit() uint64 { return b.gasLimit }

// DevAccounts returns the pre-funded dev accounts in derivation order.
func (b *Backend) DevAccounts() []DevAccount { return b.genesis.Accounts }

func (b *Backend) BlockNumber() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head.NumberU64()
}

// ---- block plumbing ----

// nextEnv builds the header context for the block about to be mined.
// Callers hold b.mu.
func (b *Backend) nextEnv() *blockEnv {
	ts := uint64(time.Now().Unix())
	if ts <= b.lastTimestamp {
		ts = b.lastTimestamp + 1
	}
	if b.nextTimestamp != 0 {
		ts = b.nextTimestamp
	}
	return &blockEnv{
		Number:    new(big.Int).Add(b.head.Number(), big.NewInt(1)),
		Timestamp: ts,
		GasLimit:  b.gasLimit,
		BaseFee:   new(big.Int).Set(b.baseFee),
	}
}

func (b *Backend) sealBlock(txs []*types.Transaction, receipts types.Receipts, env *blockEnv, gasUsed uint64) *types.Block {
	var parentHash common.Hash
	if b.head != nil {
		parentHash = b.head.Hash()
	}
	header := &types.Header{
		ParentHash: parentHash,
		Coinbase:   env.Coinbase,
		Root:       b.state.StateRoot(),
		Number:     new(big.Int).Set(env.Number),
		GasLimit:   env.GasLimit,
		GasUsed:    gasUsed,
		Time:       env.Timestamp,
		BaseFee:    new(big.Int).Set(env.BaseFee),
		Difficulty: new(big.Int),
		MixDigest:  env.Random,
	}
	return types.NewBlock(header, txs, nil, receipts, trie.NewStackTrie(nil))
}

// writeBlock appends a sealed block as the new head and archives the
// resulting state. Callers hold b.mu (or run during construction).
func (b *Backend) writeBlock(block *types.Block) {
	hash := block.Hash()
	b.blocks[hash] = block
	b.blocksByNumber[block.NumberU64()] = block
	b.head = block
	b.lastTimestamp = block.Time()
	b.nextTimestamp = 0
	b.archiveState(block.Root())
}

// archiveState snapshots the current state under root, spilling the oldest
// in-memory entry to disk when over the limit.
func (b *Backend) archiveState(root common.Hash) {
	if _, ok := b.historic[root]; ok {
		return
	}
	snap := CaptureStateSnapshot(b.state, b.head.NumberU64(), b.head.Hash(), b.head.Time())
	b.historic[root] = snap
	b.historicOrder = append(b.historicOrder, root)
	if len(b.historicOrder) > b.historicLimit {
		oldest := b.historicOrder[0]
		b.historicOrder = b.historicOrder[1:]
		if old, ok := b.historic[oldest]; ok {
			delete(b.historic, oldest)
			b.diskCache.Write(oldest, old)
		}
	}
}

// stateSnapshotAt returns the archived state for root, consulting the disk
// cache on a memory miss. Callers hold b.mu.
func (b *Backend) stateSnapshotAt(root common.Hash) *StateSnapshot {
	if snap, ok := b.historic[root]; ok {
		return snap
	}
	return b.diskCache.Read(root)
}

// stateAt rebuilds a mutable world state as of block number. The returned
// state is a private copy.
func (b *Backend) stateAt(number uint64) (*WorldState, error) {
	if number == b.head.NumberU64() {
		return b.state.Copy(), nil
	}
	block, ok := b.blocksByNumber[number]
	if !ok {
		return nil, ErrBlockNotFound
	}
	snap := b.stateSnapshotAt(block.Root())
	if snap == nil {
		return nil, ErrStateNotFound
	}
	ws := NewWorldState(b.logger)
	ws.SetRemote(b.state.remote)
	snap.RestoreInto(ws)
	return ws, nil
}

// StateAt is the locked public variant of stateAt.
func (b *Backend) StateAt(number uint64) (*WorldState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateAt(number)
}

func (b *Backend) getHashFn() func(uint64) common.Hash {
	return func(n uint64) common.Hash {
		if block, ok := b.blocksByNumber[n]; ok {
			return block.Hash()
		}
		return common.Hash{}
	}
}

// ---- queries ----

func (b *Backend) BlockByNumber(number uint64) (*types.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if block, ok := b.blocksByNumber[number]; ok {
		return block, nil
	}
	return nil, ErrBlockNotFound
}

func (b *Backend) BlockByHash(hash common.Hash) (*types.Block, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if block, ok := b.blocks[hash]; ok {
		return block, nil
	}
	return nil, ErrBlockNotFound
}

func (b *Backend) Head() *types.Block {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

func (b *Backend) TransactionByHash(hash common.Hash) (*types.Transaction, common.Hash, uint64, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[hash]
	if !ok {
		return nil, common.Hash{}, 0, 0, ErrTxNotFound
	}
	loc := b.txLocations[hash]
	block := b.blocks[loc.blockHash]
	return tx, loc.blockHash, block.NumberU64(), loc.index, nil
}

// TransactionSender reports the recorded sender, which for impersonated
// transactions differs from signature recovery.
func (b *Backend) TransactionSender(hash common.Hash) (common.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sender, ok := b.txSenders[hash]
	return sender, ok
}

func (b *Backend) ReceiptByTxHash(hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	loc, ok := b.txLocations[hash]
	if !ok {
		return nil, ErrTxNotFound
	}
	for _, r := range b.receipts[loc.blockHash] {
		if r.TxHash == hash {
			return r, nil
		}
	}
	return nil, ErrTxNotFound
}

func (b *Backend) BlockReceipts(hash common.Hash) (types.Receipts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blocks[hash]; !ok {
		return nil, ErrBlockNotFound
	}
	return b.receipts[hash], nil
}

func matchTopics(want [][]common.Hash, got []common.Hash) bool {
	if len(want) > len(got) {
		return false
	}
	for i, alternatives := range want {
		if len(alternatives) == 0 {
			continue
		}
		matched := false
		for _, t := range alternatives {
			if got[i] == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Logs returns every stored log matching the query, in block then log order.
func (b *Backend) Logs(q FilterQuery) []*types.Log {
	b.mu.Lock()
	defer b.mu.Unlock()
	to := q.ToBlock
	if to == 0 || to > b.head.NumberU64() {
		to = b.head.NumberU64()
	}
	addrOk := func(addr common.Address) bool {
		if len(q.Addresses) == 0 {
			return true
		}
		for _, a := range q.Addresses {
			if a == addr {
				return true
			}
		}
		return false
	}
	var out []*types.Log
	for n := q.FromBlock; n <= to; n++ {
		block, ok := b.blocksByNumber[n]
		if !ok {
			continue
		}
		for _, r := range b.receipts[block.Hash()] {
			for _, l := range r.Logs {
				if addrOk(l.Address) && matchTopics(q.Topics, l.Topics) {
					out = append(out, l)
				}
			}
		}
	}
	return out
}

// ---- account access ----

func (b *Backend) BalanceAt(addr common.Address, number uint64) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, err := b.stateAt(number)
	if err != nil {
		return nil, err
	}
	return ws.GetBalance(addr).ToBig(), nil
}

func (b *Backend) NonceAt(addr common.Address, number uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, err := b.stateAt(number)
	if err != nil {
		return 0, err
	}
	return ws.GetNonce(addr), nil
}

func (b *Backend) CodeAt(addr common.Address, number uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, err := b.stateAt(number)
	if err != nil {
		return nil, err
	}
	return ws.GetCode(addr), nil
}

func (b *Backend) StorageAt(addr common.Address, slot common.Hash, number uint64) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, err := b.stateAt(number)
	if err != nil {
		return common.Hash{}, err
	}
	return ws.GetState(addr, slot), nil
}

// ---- execution ----

func (b *Backend) callMessage(msg *CallMsg, env *blockEnv) *core.Message {
	gas := msg.Gas
	if gas == 0 {
		gas = env.GasLimit
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := msg.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	gasFeeCap := msg.GasFeeCap
	if gasFeeCap == nil {
		gasFeeCap = new(big.Int).Set(gasPrice)
	}
	gasTipCap := msg.GasTipCap
	if gasTipCap == nil {
		gasTipCap = new(big.Int).Set(gasPrice)
	}
	var nonce uint64
	if msg.Nonce != nil {
		nonce = *msg.Nonce
	} else {
		nonce = b.state.GetNonce(msg.From)
	}
	return &core.Message{
		To:                msg.To,
		From:              msg.From,
		Nonce:             nonce,
		Value:             value,
		GasLimit:          gas,
		GasPrice:          gasPrice,
		GasFeeCap:         gasFeeCap,
		GasTipCap:         gasTipCap,
		Data:              msg.Data,
		AccessList:        msg.AccessList,
		SkipAccountChecks: true,
	}
}

// Call executes a read-only message on the state of block number, with
// optional account overrides. Chain state is never mutated.
func (b *Backend) Call(msg *CallMsg, number uint64, overrides StateOverride) (*execResult, error) {
	return b.callWith(msg, number, overrides, nil)
}

// TraceCall is Call with a call tracer attached, returning the call tree.
func (b *Backend) TraceCall(msg *CallMsg, number uint64, overrides StateOverride) (*ivm.CallTraceNode, *execResult, error) {
	tracer := ivm.NewCallTracer()
	res, err := b.callWith(msg, number, overrides, tracer)
	if err != nil {
		return nil, nil, err
	}
	return tracer.Result(), res, nil
}

func (b *Backend) callWith(msg *CallMsg, number uint64, overrides StateOverride, extra ivm.Inspector) (*execResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ws, err := b.stateAt(number)
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		ws, err = ApplyStateOverride(ws, overrides)
		if err != nil {
			return nil, err
		}
	}
	block, ok := b.blocksByNumber[number]
	if !ok {
		return nil, ErrBlockNotFound
	}
	env := &blockEnv{
		Number:    block.Number(),
		Coinbase:  block.Coinbase(),
		Timestamp: block.Time(),
		GasLimit:  block.GasLimit(),
		BaseFee:   block.BaseFee(),
	}
	console := ivm.NewConsoleLogCollector()
	stack := ivm.NewInspectorStack(b.logger, console, extra)
	res, err := applyMessage(b.chainConfig, ws, env, b.callMessage(msg, env), stack, b.getHashFn())
	if err != nil {
		return nil, err
	}
	b.printConsoleLogs(console)
	return res, nil
}

// EstimateGas binary-searches the smallest gas limit the message succeeds
// with on the head state.
func (b *Backend) EstimateGas(msg *CallMsg, overrides StateOverride) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hi := msg.Gas
	if hi == 0 {
		hi = b.gasLimit
	}
	lo := params.TxGas - 1

	runWith := func(gas uint64) (*execResult, error) {
		ws, err := b.stateAt(b.head.NumberU64())
		if err != nil {
			return nil, err
		}
		if len(overrides) > 0 {
			ws, err = ApplyStateOverride(ws, overrides)
			if err != nil {
				return nil, err
			}
		}
		env := b.nextEnv()
		attempt := *msg
		attempt.Gas = gas
		return applyMessage(b.chainConfig, ws, env, b.callMessage(&attempt, env), nil, b.getHashFn())
	}

	res, err := runWith(hi)
	if err != nil {
		return 0, err
	}
	if res.Err != nil {
		return 0, executionFailure(res)
	}
	if res.UsedGas > lo {
		lo = res.UsedGas - 1
	}
	for lo+1 < hi {
		mid := (lo + hi) / 2
		res, err := runWith(mid)
		if err != nil || res.Err != nil {
			lo = mid
			continue
		}
		hi = mid
	}
	return hi, nil
}

// executionFailure folds a revert into an error carrying the revert data.
func executionFailure(res *execResult) error {
	if res.Err == nil {
		return nil
	}
	return NewRevertError(res.Err, res.ReturnData)
}

// ---- transaction submission ----

// signingKey resolves how a transaction from sender may be committed.
func (b *Backend) signingKey(sender common.Address) (*ecdsa.PrivateKey, bool, error) {
	if key, ok := b.devKeys[sender]; ok {
		return key, false, nil
	}
	if _, ok := b.impersonated[sender]; ok || b.autoImpersonate {
		return nil, true, nil
	}
	return nil, false, ErrUnknownSender
}

// SendTransaction builds, signs (or fakes, for impersonated senders) and
// immediately mines a transaction. Every transaction gets its own block.
func (b *Backend) SendTransaction(msg *CallMsg) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, impersonated, err := b.signingKey(msg.From)
	if err != nil {
		return common.Hash{}, err
	}
	var nonce uint64
	if msg.Nonce != nil {
		nonce = *msg.Nonce
	} else {
		nonce = b.state.GetNonce(msg.From)
	}
	gas := msg.Gas
	if gas == 0 {
		gas = b.gasLimit
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	gasTipCap := msg.GasTipCap
	if gasTipCap == nil {
		gasTipCap = new(big.Int)
	}
	gasFeeCap := msg.GasFeeCap
	if gasFeeCap == nil {
		if msg.GasPrice != nil {
			gasFeeCap = new(big.Int).Set(msg.GasPrice)
		} else {
			gasFeeCap = new(big.Int).Add(new(big.Int).Mul(b.baseFee, big.NewInt(2)), gasTipCap)
		}
	}
	txdata := &types.DynamicFeeTx{
		ChainID:    b.chainConfig.ChainID,
		Nonce:      nonce,
		GasTipCap:  gasTipCap,
		GasFeeCap:  gasFeeCap,
		Gas:        gas,
		To:         msg.To,
		Value:      value,
		Data:       msg.Data,
		AccessList: msg.AccessList,
	}
	var tx *types.Transaction
	if impersonated {
		tx = types.NewTx(txdata)
	} else {
		tx, err = types.SignNewTx(key, b.signer, txdata)
		if err != nil {
			return common.Hash{}, err
		}
	}
	return b.commitTransaction(tx, msg.From, impersonated)
}

// SendRawTransaction decodes a signed raw transaction and mines it.
func (b *Backend) SendRawTransaction(data []byte) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return common.Hash{}, fmt.Errorf("invalid raw transaction: %w", err)
	}
	sender, err := types.Sender(b.signer, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid transaction signature: %w", err)
	}
	return b.commitTransaction(tx, sender, false)
}

// commitTransaction executes tx against the canonical state and seals it
// into a fresh block. Execution failure (revert) still mines the block, a
// pre-execution failure (bad nonce, insufficient funds) rejects the
// transaction and leaves state untouched. Callers hold b.mu.
func (b *Backend) commitTransaction(tx *types.Transaction, sender common.Address, impersonated bool) (common.Hash, error) {
	env := b.nextEnv()
	msg := &core.Message{
		To:                tx.To(),
		From:              sender,
		Nonce:             tx.Nonce(),
		Value:             tx.Value(),
		GasLimit:          tx.Gas(),
		GasPrice:          new(big.Int).Set(tx.GasFeeCap()),
		GasFeeCap:         tx.GasFeeCap(),
		GasTipCap:         tx.GasTipCap(),
		Data:              tx.Data(),
		AccessList:        tx.AccessList(),
		SkipAccountChecks: impersonated,
	}

	backup := b.state.Copy()
	console := ivm.NewConsoleLogCollector()
	stack := ivm.NewInspectorStack(b.logger, console)
	res, err := applyMessage(b.chainConfig, b.state, env, msg, stack, b.getHashFn())
	if err != nil {
		b.state = backup
		return common.Hash{}, TransactionRejectedError(err.Error())
	}
	b.printConsoleLogs(console)

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: res.UsedGas,
		TxHash:            tx.Hash(),
		GasUsed:           res.UsedGas,
		BlockNumber:       new(big.Int).Set(env.Number),
		TransactionIndex:  0,
		Logs:              res.Logs,
	}
	if res.Err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.Logs = nil
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(sender, tx.Nonce())
	}
	receipt.Bloom = types.CreateBloom(types.Receipts{receipt})

	block := b.sealBlock([]*types.Transaction{tx}, types.Receipts{receipt}, env, res.UsedGas)
	receipt.BlockHash = block.Hash()
	for _, l := range receipt.Logs {
		l.BlockNumber = block.NumberU64()
		l.BlockHash = block.Hash()
		l.TxHash = tx.Hash()
	}
	b.receipts[block.Hash()] = types.Receipts{receipt}
	b.txs[tx.Hash()] = tx
	b.txLocations[tx.Hash()] = txLocation{blockHash: block.Hash(), index: 0}
	b.txSenders[tx.Hash()] = sender
	b.state.ClearLogs()
	b.writeBlock(block)

	b.logger.Infof("mined block #%d (%s) tx %s gas %d", block.NumberU64(), block.Hash(), tx.Hash(), res.UsedGas)
	if res.Err != nil {
		b.logger.Warnf("tx %s reverted: %s", tx.Hash(), res.Err)
	}
	return tx.Hash(), nil
}

func (b *Backend) printConsoleLogs(console *ivm.ConsoleLogCollector) {
	for _, entry := range console.Logs() {
		b.logger.Infof("console.log: %s", entry.Text)
	}
}

// TraceTransaction re-executes a mined transaction on its parent block
// state and returns the recorded call tree.
func (b *Backend) TraceTransaction(hash common.Hash) (*ivm.CallTraceNode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, ok := b.txs[hash]
	if !ok {
		return nil, ErrTxNotFound
	}
	loc := b.txLocations[hash]
	block := b.blocks[loc.blockHash]
	if block.NumberU64() == 0 {
		return nil, ErrBlockNotFound
	}
	ws, err := b.stateAt(block.NumberU64() - 1)
	if err != nil {
		return nil, err
	}
	sender := b.txSenders[hash]
	env := &blockEnv{
		Number:    block.Number(),
		Coinbase:  block.Coinbase(),
		Timestamp: block.Time(),
		GasLimit:  block.GasLimit(),
		BaseFee:   block.BaseFee(),
	}
	msg := &core.Message{
		To:                tx.To(),
		From:              sender,
		Nonce:             tx.Nonce(),
		Value:             tx.Value(),
		GasLimit:          tx.Gas(),
		GasPrice:          new(big.Int).Set(tx.GasFeeCap()),
		GasFeeCap:         tx.GasFeeCap(),
		GasTipCap:         tx.GasTipCap(),
		Data:              tx.Data(),
		AccessList:        tx.AccessList(),
		SkipAccountChecks: true,
	}
	tracer := ivm.NewCallTracer()
	stack := ivm.NewInspectorStack(b.logger, tracer)
	if _, err := applyMessage(b.chainConfig, ws, env, msg, stack, b.getHashFn()); err != nil {
		return nil, err
	}
	return tracer.Result(), nil
}

// ---- dev cheats ----

func (b *Backend) SetBalance(addr common.Address, balance *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.SetBalance(addr, balance)
}

func (b *Backend) SetNonce(addr common.Address, nonce uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.SetNonce(addr, nonce)
}

func (b *Backend) SetCode(addr common.Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.SetCode(addr, code)
}

func (b *Backend) SetStorageAt(addr common.Address, slot, value common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.SetStorage(addr, slot, value)
}

func (b *Backend) ImpersonateAccount(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.impersonated[addr] = struct{}{}
}

func (b *Backend) StopImpersonatingAccount(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.impersonated, addr)
}

func (b *Backend) SetAutoImpersonate(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoImpersonate = enabled
}

// SetNextBlockTimestamp pins the timestamp of the next mined block.
func (b *Backend) SetNextBlockTimestamp(ts uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts <= b.lastTimestamp {
		return fmt.Errorf("timestamp %d is not in the future (head at %d)", ts, b.lastTimestamp)
	}
	b.nextTimestamp = ts
	return nil
}

// Mine mines count empty blocks, advancing timestamps by interval seconds
// when interval is nonzero.
func (b *Backend) Mine(count uint64, interval uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count == 0 {
		count = 1
	}
	for i := uint64(0); i < count; i++ {
		env := b.nextEnv()
		if interval != 0 && i > 0 {
			env.Timestamp = b.lastTimestamp + interval
		}
		b.writeBlock(b.sealBlock(nil, nil, env, 0))
	}
}

// Snapshot captures the whole chain state under a monotonically increasing
// id for a later revert.
func (b *Backend) Snapshot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSnapshotID
	b.nextSnapshotID++
	b.snapshots = append(b.snapshots, &chainSnapshot{
		id:        id,
		headHash:  b.head.Hash(),
		state:     CaptureStateSnapshot(b.state, b.head.NumberU64(), b.head.Hash(), b.head.Time()),
		timestamp: b.lastTimestamp,
	})
	return id
}

// RevertToSnapshot rewinds chain and state to the snapshot. The snapshot
// and every later one are consumed.
func (b *Backend) RevertToSnapshot(id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := -1
	for i, snap := range b.snapshots {
		if snap.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSnapshotNotFound
	}
	snap := b.snapshots[idx]
	head, ok := b.blocks[snap.headHash]
	if !ok {
		return ErrSnapshotNotFound
	}
	for n := head.NumberU64() + 1; n <= b.head.NumberU64(); n++ {
		if block, ok := b.blocksByNumber[n]; ok {
			hash := block.Hash()
			for _, tx := range block.Transactions() {
				delete(b.txs, tx.Hash())
				delete(b.txLocations, tx.Hash())
				delete(b.txSenders, tx.Hash())
			}
			delete(b.receipts, hash)
			delete(b.blocks, hash)
			delete(b.blocksByNumber, n)
		}
	}
	ws := NewWorldState(b.logger)
	ws.SetRemote(b.state.remote)
	snap.state.RestoreInto(ws)
	b.state = ws
	b.head = head
	b.lastTimestamp = snap.timestamp
	b.nextTimestamp = 0
	b.snapshots = b.snapshots[:idx]
	return nil
}

// DumpState serializes the current world state.
func (b *Backend) DumpState() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CaptureStateSnapshot(b.state, b.head.NumberU64(), b.head.Hash(), b.head.Time()).Encode()
}

// LoadState merges a previously dumped state into the current one.
// Accounts present in the dump replace their local counterparts, everything
// else is kept.
func (b *Backend) LoadState(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, err := DecodeStateSnapshot(data)
	if err != nil {
		return err
	}
	snap.MergeInto(b.state)
	return nil
}
