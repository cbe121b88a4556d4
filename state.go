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
	"math/big"
	"vchain/log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

var _ vm.StateDB = (*WorldState)(nil)

// Account is the in-memory representation of an Ethereum account. Storage
// slots holding a zero value are absent from the map, never stored as zero.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Code     []byte
	CodeHash common.Hash
	Storage  map[common.Hash]common.Hash
}

func NewAccount() *Account {
	return &Account{
		Balance:  new(big.Int),
		CodeHash: types.EmptyCodeHash,
		Storage:  make(map[common.Hash]common.Hash),
	}
}

func (a *Account) copy() *Account {
	cpy := &Account{
		Nonce:    a.Nonce,
		Balance:  new(big.Int).Set(a.Balance),
		CodeHash: a.CodeHash,
		Storage:  make(map[common.Hash]common.Hash, len(a.Storage)),
	}
	if a.Code != nil {
		cpy.Code = make([]byte, len(a.Code))
		copy(cpy.Code, a.Code)
	}
	for k, v := range a.Storage {
		cpy.Storage[k] = v
	}
	return cpy
}

func (a *Account) empty() bool {
	return a.Nonce == 0 && a.Balance.Sign() == 0 && len(a.Code) == 0
}

// RemoteSource supplies account data for addresses unknown locally, used in
// fork mode. Errors degrade to "account does not exist remotely".
type RemoteSource interface {
	Account(addr common.Address) (*Account, error)
	StorageAt(addr common.Address, slot common.Hash) (common.Hash, error)
}

type worldRevision struct {
	id             int
	accounts       map[common.Address]*Account
	destructed     map[common.Address]struct{}
	committed      map[common.Address]map[common.Hash]common.Hash
	transient      map[common.Address]map[common.Hash]common.Hash
	accessAddrs    map[common.Address]struct{}
	accessSlots    map[common.Address]map[common.Hash]struct{}
	refund         uint64
	logCount       int
	remoteNegative map[common.Address]struct{}
}

// WorldState holds the full account set of the simulated chain and implements
// the go-ethereum vm.StateDB contract, so the stock EVM interpreter can run
// against it directly. It is not safe for concurrent use; the owning Backend
// serializes all mutation.
type WorldState struct {
	accounts map[common.Address]*Account
	remote   RemoteSource
	// addresses the remote reported as non-existent, so fork misses are
	// not re-fetched on every access
	remoteNegative map[common.Address]struct{}
	remoteLoaded   map[common.Address]struct{}

	destructed map[common.Address]struct{}
	// pre-transaction value of every slot written during the current
	// transaction, recorded on first write
	committed map[common.Address]map[common.Hash]common.Hash
	transient map[common.Address]map[common.Hash]common.Hash

	accessAddrs map[common.Address]struct{}
	accessSlots map[common.Address]map[common.Hash]struct{}

	refund  uint64
	logs    []*types.Log
	logSink func(*types.Log)

	revisions []worldRevision
	nextRevID int
	logger    log.Logger
}

func NewWorldState(logger log.Logger) *WorldState {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &WorldState{
		accounts:       make(map[common.Address]*Account),
		remoteNegative: make(map[common.Address]struct{}),
		remoteLoaded:   make(map[common.Address]struct{}),
		destructed:     make(map[common.Address]struct{}),
		committed:      make(map[common.Address]map[common.Hash]common.Hash),
		transient:      make(map[common.Address]map[common.Hash]common.Hash),
		accessAddrs:    make(map[common.Address]struct{}),
		accessSlots:    make(map[common.Address]map[common.Hash]struct{}),
		logger:         logger,
	}
}

// SetRemote installs the fork-mode fallback source.
func (ws *WorldState) SetRemote(remote RemoteSource) {
	ws.remote = remote
}

// Copy returns a deep copy sharing only the remote source. Overlays for
// eth_call style queries are built on copies, the canonical state is never
// handed out.
func (ws *WorldState) Copy() *WorldState {
	cpy := NewWorldState(ws.logger)
	cpy.remote = ws.remote
	for addr, acct := range ws.accounts {
		cpy.accounts[addr] = acct.copy()
	}
	for addr := range ws.remoteNegative {
		cpy.remoteNegative[addr] = struct{}{}
	}
	for addr := range ws.remoteLoaded {
		cpy.remoteLoaded[addr] = struct{}{}
	}
	return cpy
}

func (ws *WorldState) getAccount(addr common.Address) *Account {
	if acct, ok := ws.accounts[addr]; ok {
		return acct
	}
	if ws.remote == nil {
		return nil
	}
	if _, miss := ws.remoteNegative[addr]; miss {
		return nil
	}
	acct, err := ws.remote.Account(addr)
	if err != nil || acct == nil {
		if err != nil {
			ws.logger.Debugf("fork account fetch failed for %s: %s", addr, err)
		}
		ws.remoteNegative[addr] = struct{}{}
		return nil
	}
	ws.accounts[addr] = acct
	ws.remoteLoaded[addr] = struct{}{}
	return acct
}

func (ws *WorldState) getOrNewAccount(addr common.Address) *Account {
	if acct := ws.getAccount(addr); acct != nil {
		return acct
	}
	acct := NewAccount()
	ws.accounts[addr] = acct
	return acct
}

// GetAccount returns a copy of the account, or nil if it does not exist.
func (ws *WorldState) GetAccount(addr common.Address) *Account {
	if acct := ws.getAccount(addr); acct != nil {
		return acct.copy()
	}
	return nil
}

// Accounts exposes the raw account set for trie-root computation and
// snapshot capture. Callers must not mutate it.
func (ws *WorldState) Accounts() map[common.Address]*Account {
	return ws.accounts
}

// StateRoot computes the Merkle-Patricia commitment over the current
// account set.
func (ws *WorldState) StateRoot() common.Hash {
	return StateRoot(ws.accounts)
}

// SetAccount installs an account wholesale, replacing any previous one.
func (ws *WorldState) SetAccount(addr common.Address, acct *Account) {
	ws.accounts[addr] = acct.copy()
}

// SetStorage writes a slot directly, outside transaction execution. A zero
// value removes the slot.
func (ws *WorldState) SetStorage(addr common.Address, slot, value common.Hash) {
	acct := ws.getOrNewAccount(addr)
	if value == (common.Hash{}) {
		delete(acct.Storage, slot)
		return
	}
	acct.Storage[slot] = value
}

func (ws *WorldState) SetBalance(addr common.Address, balance *big.Int) {
	ws.getOrNewAccount(addr).Balance = new(big.Int).Set(balance)
}

// SetLogSink registers a callback invoked for every log emitted during
// execution, feeding the execution inspector.
func (ws *WorldState) SetLogSink(sink func(*types.Log)) {
	ws.logSink = sink
}

func (ws *WorldState) Logs() []*types.Log {
	return ws.logs
}

// Finalise seals the current transaction: self-destructed accounts are
// removed and all per-transaction bookkeeping is reset. Logs survive until
// the block is assembled.
func (ws *WorldState) Finalise() {
	for addr := range ws.destructed {
		delete(ws.accounts, addr)
		delete(ws.remoteLoaded, addr)
		// a destroyed account must not resurrect via the fork remote
		ws.remoteNegative[addr] = struct{}{}
	}
	ws.destructed = make(map[common.Address]struct{})
	ws.committed = make(map[common.Address]map[common.Hash]common.Hash)
	ws.transient = make(map[common.Address]map[common.Hash]common.Hash)
	ws.accessAddrs = make(map[common.Address]struct{})
	ws.accessSlots = make(map[common.Address]map[common.Hash]struct{})
	ws.refund = 0
	ws.revisions = ws.revisions[:0]
}

// ClearLogs drops accumulated logs after they were folded into a receipt.
func (ws *WorldState) ClearLogs() {
	ws.logs = nil
}

// ---- vm.StateDB ----

func (ws *WorldState) CreateAccount(addr common.Address) {
	prev := ws.getAccount(addr)
	acct := NewAccount()
	if prev != nil {
		acct.Balance = new(big.Int).Set(prev.Balance)
	}
	ws.accounts[addr] = acct
}

func (ws *WorldState) SubBalance(addr common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	acct := ws.getOrNewAccount(addr)
	acct.Balance = new(big.Int).Sub(acct.Balance, amount.ToBig())
}

func (ws *WorldState) AddBalance(addr common.Address, amount *uint256.Int) {
	acct := ws.getOrNewAccount(addr)
	if amount.IsZero() {
		return
	}
	acct.Balance = new(big.Int).Add(acct.Balance, amount.ToBig())
}

func (ws *WorldState) GetBalance(addr common.Address) *uint256.Int {
	if acct := ws.getAccount(addr); acct != nil {
		return uint256.MustFromBig(acct.Balance)
	}
	return new(uint256.Int)
}

func (ws *WorldState) GetNonce(addr common.Address) uint64 {
	if acct := ws.getAccount(addr); acct != nil {
		return acct.Nonce
	}
	return 0
}

func (ws *WorldState) SetNonce(addr common.Address, nonce uint64) {
	ws.getOrNewAccount(addr).Nonce = nonce
}

func (ws *WorldState) GetCodeHash(addr common.Address) common.Hash {
	acct := ws.getAccount(addr)
	if acct == nil {
		return common.Hash{}
	}
	return acct.CodeHash
}

func (ws *WorldState) GetCode(addr common.Address) []byte {
	if acct := ws.getAccount(addr); acct != nil {
		return acct.Code
	}
	return nil
}

func (ws *WorldState) SetCode(addr common.Address, code []byte) {
	acct := ws.getOrNewAccount(addr)
	acct.Code = code
	acct.CodeHash = crypto.Keccak256Hash(code)
	if len(code) == 0 {
		acct.CodeHash = types.EmptyCodeHash
	}
}

func (ws *WorldState) GetCodeSize(addr common.Address) int {
	return len(ws.GetCode(addr))
}

func (ws *WorldState) AddRefund(gas uint64) {
	ws.refund += gas
}

func (ws *WorldState) SubRefund(gas uint64) {
	if gas > ws.refund {
		ws.logger.Warnf("refund counter below zero (gas: %d > refund: %d)", gas, ws.refund)
		ws.refund = 0
		return
	}
	ws.refund -= gas
}

func (ws *WorldState) GetRefund() uint64 {
	return ws.refund
}

func (ws *WorldState) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	if slots, ok := ws.committed[addr]; ok {
		if val, ok := slots[key]; ok {
			return val
		}
	}
	return ws.GetState(addr, key)
}

func (ws *WorldState) GetState(addr common.Address, key common.Hash) common.Hash {
	acct := ws.getAccount(addr)
	if acct == nil {
		return common.Hash{}
	}
	if val, ok := acct.Storage[key]; ok {
		return val
	}
	if ws.remote != nil {
		if _, fromRemote := ws.remoteLoaded[addr]; fromRemote {
			if slots, ok := ws.committed[addr]; ok {
				// slot was written this transaction; absence means zero
				if _, written := slots[key]; written {
					return common.Hash{}
				}
			}
			val, err := ws.remote.StorageAt(addr, key)
			if err != nil {
				ws.logger.Debugf("fork storage fetch failed for %s %s: %s", addr, key, err)
				return common.Hash{}
			}
			if val != (common.Hash{}) {
				acct.Storage[key] = val
			}
			return val
		}
	}
	return common.Hash{}
}

func (ws *WorldState) SetState(addr common.Address, key, value common.Hash) {
	acct := ws.getOrNewAccount(addr)
	if _, ok := ws.committed[addr]; !ok {
		ws.committed[addr] = make(map[common.Hash]common.Hash)
	}
	if _, ok := ws.committed[addr][key]; !ok {
		ws.committed[addr][key] = ws.GetState(addr, key)
	}
	if value == (common.Hash{}) {
		delete(acct.Storage, key)
		return
	}
	acct.Storage[key] = value
}

func (ws *WorldState) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	if slots, ok := ws.transient[addr]; ok {
		return slots[key]
	}
	return common.Hash{}
}

func (ws *WorldState) SetTransientState(addr common.Address, key, value common.Hash) {
	if _, ok := ws.transient[addr]; !ok {
		ws.transient[addr] = make(map[common.Hash]common.Hash)
	}
	ws.transient[addr][key] = value
}

func (ws *WorldState) SelfDestruct(addr common.Address) {
	acct := ws.getAccount(addr)
	if acct == nil {
		return
	}
	ws.destructed[addr] = struct{}{}
	acct.Balance = new(big.Int)
}

func (ws *WorldState) HasSelfDestructed(addr common.Address) bool {
	_, ok := ws.destructed[addr]
	return ok
}

func (ws *WorldState) Selfdestruct6780(addr common.Address) {
	// EIP-6780: only destruct when created in the same transaction. The
	// simulator does not track creation epochs, treat as plain destruct
	// of freshly created accounts only when no committed storage exists.
	if _, ok := ws.committed[addr]; !ok {
		ws.SelfDestruct(addr)
	}
}

func (ws *WorldState) Exist(addr common.Address) bool {
	return ws.getAccount(addr) != nil
}

func (ws *WorldState) Empty(addr common.Address) bool {
	acct := ws.getAccount(addr)
	return acct == nil || acct.empty()
}

func (ws *WorldState) AddressInAccessList(addr common.Address) bool {
	_, ok := ws.accessAddrs[addr]
	return ok
}

func (ws *WorldState) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	_, addrOk := ws.accessAddrs[addr]
	slots, ok := ws.accessSlots[addr]
	if !ok {
		return addrOk, false
	}
	_, slotOk := slots[slot]
	return addrOk, slotOk
}

func (ws *WorldState) AddAddressToAccessList(addr common.Address) {
	ws.accessAddrs[addr] = struct{}{}
}

func (ws *WorldState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	ws.accessAddrs[addr] = struct{}{}
	if _, ok := ws.accessSlots[addr]; !ok {
		ws.accessSlots[addr] = make(map[common.Hash]struct{})
	}
	ws.accessSlots[addr][slot] = struct{}{}
}

func (ws *WorldState) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	ws.accessAddrs = make(map[common.Address]struct{})
	ws.accessSlots = make(map[common.Address]map[common.Hash]struct{})
	ws.transient = make(map[common.Address]map[common.Hash]common.Hash)
	ws.committed = make(map[common.Address]map[common.Hash]common.Hash)
	if rules.IsBerlin {
		ws.AddAddressToAccessList(sender)
		if dest != nil {
			ws.AddAddressToAccessList(*dest)
		}
		for _, addr := range precompiles {
			ws.AddAddressToAccessList(addr)
		}
		for _, el := range txAccesses {
			ws.AddAddressToAccessList(el.Address)
			for _, key := range el.StorageKeys {
				ws.AddSlotToAccessList(el.Address, key)
			}
		}
		if rules.IsShanghai {
			ws.AddAddressToAccessList(coinbase)
		}
	}
}

func (ws *WorldState) Snapshot() int {
	id := ws.nextRevID
	ws.nextRevID++
	rev := worldRevision{
		id:             id,
		accounts:       make(map[common.Address]*Account, len(ws.accounts)),
		destructed:     make(map[common.Address]struct{}, len(ws.destructed)),
		committed:      make(map[common.Address]map[common.Hash]common.Hash, len(ws.committed)),
		transient:      make(map[common.Address]map[common.Hash]common.Hash, len(ws.transient)),
		accessAddrs:    make(map[common.Address]struct{}, len(ws.accessAddrs)),
		accessSlots:    make(map[common.Address]map[common.Hash]struct{}, len(ws.accessSlots)),
		refund:         ws.refund,
		logCount:       len(ws.logs),
		remoteNegative: make(map[common.Address]struct{}, len(ws.remoteNegative)),
	}
	for addr, acct := range ws.accounts {
		rev.accounts[addr] = acct.copy()
	}
	for addr := range ws.destructed {
		rev.destructed[addr] = struct{}{}
	}
	for addr, slots := range ws.committed {
		cpy := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cpy[k] = v
		}
		rev.committed[addr] = cpy
	}
	for addr, slots := range ws.transient {
		cpy := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cpy[k] = v
		}
		rev.transient[addr] = cpy
	}
	for addr := range ws.accessAddrs {
		rev.accessAddrs[addr] = struct{}{}
	}
	for addr, slots := range ws.accessSlots {
		cpy := make(map[common.Hash]struct{}, len(slots))
		for k := range slots {
			cpy[k] = struct{}{}
		}
		rev.accessSlots[addr] = cpy
	}
	for addr := range ws.remoteNegative {
		rev.remoteNegative[addr] = struct{}{}
	}
	ws.revisions = append(ws.revisions, rev)
	return id
}

func (ws *WorldState) RevertToSnapshot(id int) {
	idx := -1
	for i, rev := range ws.revisions {
		if rev.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		ws.logger.Panic("revision id not found", id)
		return
	}
	rev := ws.revisions[idx]
	ws.accounts = rev.accounts
	ws.destructed = rev.destructed
	ws.committed = rev.committed
	ws.transient = rev.transient
	ws.accessAddrs = rev.accessAddrs
	ws.accessSlots = rev.accessSlots
	ws.refund = rev.refund
	ws.logs = ws.logs[:rev.logCount]
	ws.remoteNegative = rev.remoteNegative
	ws.revisions = ws.revisions[:idx]
}

func (ws *WorldState) AddLog(l *types.Log) {
	l.Index = uint(len(ws.logs))
	ws.logs = append(ws.logs, l)
	if ws.logSink != nil {
		ws.logSink(l)
	}
}

func (ws *WorldState) AddPreimage(common.Hash, []byte) {
	// preimage recording is a debugging aid the simulator does not keep
}
