// Package store provides an in-memory ledger.Store for tests and
// development. It mirrors the production store's semantics: composite-key
// upserts, uniqueness violations on duplicate inserts, and a WithTx that
// executes atomically (snapshot and restore on error) so the availability
// controller's check-and-insert runs under one lock.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tally/inventory-engine/ledger"
)

// dayKey identifies one (item, date, scope) boundary record.
type dayKey struct {
	Org    ledger.OrgID
	Branch string
	Item   ledger.ItemID
	Date   string
}

func keyFor(org ledger.OrgID, branch *ledger.BranchID, item ledger.ItemID, date ledger.Date) dayKey {
	k := dayKey{Org: org, Item: item, Date: date.String()}
	if branch != nil {
		k.Branch = string(*branch)
	}
	return k
}

func scopeKey(scope ledger.Scope, item ledger.ItemID, date ledger.Date) dayKey {
	return dayKey{Org: scope.Org, Branch: scope.BranchKey(), Item: item, Date: date.String()}
}

// derivedKey identifies one issuance-derived sale.
type derivedKey struct {
	Org      ledger.OrgID
	Branch   string
	Item     ledger.ItemID
	Date     string
	Issuance ledger.IssuanceID
}

// Memory is an in-memory ledger.Store.
type Memory struct {
	mu sync.RWMutex

	movements map[ledger.MovementID]ledger.Movement
	order     []ledger.MovementID
	derived   map[derivedKey]ledger.MovementID

	openings map[dayKey]ledger.OpeningStock
	closings map[dayKey]ledger.ClosingStock

	issuances map[ledger.IssuanceID]ledger.Issuance
	returns   map[ledger.IssuanceID][]ledger.Return

	items map[ledger.ItemID]ledger.Item
}

func NewMemory() *Memory {
	return &Memory{
		movements: make(map[ledger.MovementID]ledger.Movement),
		derived:   make(map[derivedKey]ledger.MovementID),
		openings:  make(map[dayKey]ledger.OpeningStock),
		closings:  make(map[dayKey]ledger.ClosingStock),
		issuances: make(map[ledger.IssuanceID]ledger.Issuance),
		returns:   make(map[ledger.IssuanceID][]ledger.Return),
		items:     make(map[ledger.ItemID]ledger.Item),
	}
}

var _ ledger.TxStore = (*Memory)(nil)

// =============================================================================
// MOVEMENTS
// =============================================================================

func (m *Memory) InsertMovement(_ context.Context, mv ledger.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertMovementLocked(mv)
}

func (m *Memory) insertMovementLocked(mv ledger.Movement) error {
	if _, exists := m.movements[mv.ID]; exists {
		return ledger.ErrUniquenessViolation
	}
	m.movements[mv.ID] = mv
	m.order = append(m.order, mv.ID)
	return nil
}

func (m *Memory) UpsertDerivedSale(_ context.Context, mv ledger.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertDerivedSaleLocked(mv)
}

func (m *Memory) upsertDerivedSaleLocked(mv ledger.Movement) error {
	if mv.IssuanceID == nil {
		return ledger.ErrUniquenessViolation
	}
	k := derivedKey{
		Org:      mv.Org,
		Item:     mv.ItemID,
		Date:     mv.Date.String(),
		Issuance: *mv.IssuanceID,
	}
	if mv.Branch != nil {
		k.Branch = string(*mv.Branch)
	}
	if existingID, ok := m.derived[k]; ok {
		mv.ID = existingID
		m.movements[existingID] = mv
		return nil
	}
	m.derived[k] = mv.ID
	return m.insertMovementLocked(mv)
}

func (m *Memory) GetMovement(_ context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMovementLocked(id)
}

func (m *Memory) getMovementLocked(id ledger.MovementID) (*ledger.Movement, error) {
	mv, ok := m.movements[id]
	if !ok {
		return nil, nil
	}
	cp := mv
	return &cp, nil
}

func (m *Memory) DeleteMovement(_ context.Context, id ledger.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteMovementLocked(id)
}

func (m *Memory) deleteMovementLocked(id ledger.MovementID) error {
	if _, ok := m.movements[id]; !ok {
		return ledger.ErrMovementNotFound
	}
	delete(m.movements, id)
	for i, mid := range m.order {
		if mid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for k, mid := range m.derived {
		if mid == id {
			delete(m.derived, k)
		}
	}
	return nil
}

func (m *Memory) MovementsOn(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date, kind ledger.MovementKind) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.movementsOnLocked(scope, itemID, date, kind), nil
}

func (m *Memory) movementsOnLocked(scope ledger.Scope, itemID ledger.ItemID, date ledger.Date, kind ledger.MovementKind) []ledger.Movement {
	var out []ledger.Movement
	for _, id := range m.order {
		mv := m.movements[id]
		if mv.Kind != kind || mv.ItemID != itemID || !mv.Date.Equal(date) {
			continue
		}
		if mv.Org != scope.Org || branchKey(mv.Branch) != scope.BranchKey() {
			continue
		}
		out = append(out, mv)
	}
	return out
}

func (m *Memory) SalesForBatch(_ context.Context, scope ledger.Scope, date ledger.Date, batch ledger.BatchRef) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.salesForBatchLocked(scope, date, batch), nil
}

func (m *Memory) salesForBatchLocked(scope ledger.Scope, date ledger.Date, batch ledger.BatchRef) []ledger.Movement {
	var out []ledger.Movement
	for _, id := range m.order {
		mv := m.movements[id]
		if mv.Kind != ledger.KindSale || !mv.Date.Equal(date) {
			continue
		}
		if mv.Org != scope.Org || branchKey(mv.Branch) != scope.BranchKey() {
			continue
		}
		switch {
		case batch.RestockingID != nil:
			if mv.RestockingID != nil && *mv.RestockingID == *batch.RestockingID {
				out = append(out, mv)
			}
		case batch.OpeningStockID != nil:
			if mv.OpeningStockID != nil && *mv.OpeningStockID == *batch.OpeningStockID {
				out = append(out, mv)
			}
		}
	}
	return out
}

func (m *Memory) IncomingTransfers(_ context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transfersLocked(org, branch, itemID, date, false), nil
}

func (m *Memory) OutgoingTransfers(_ context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transfersLocked(org, branch, itemID, date, true), nil
}

func (m *Memory) transfersLocked(org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date, outgoing bool) []ledger.Movement {
	var out []ledger.Movement
	for _, id := range m.order {
		mv := m.movements[id]
		if mv.Kind != ledger.KindTransfer || mv.Org != org || mv.ItemID != itemID || !mv.Date.Equal(date) {
			continue
		}
		if outgoing {
			if mv.FromBranch != nil && *mv.FromBranch == branch {
				out = append(out, mv)
			}
		} else {
			if mv.ToBranch != nil && *mv.ToBranch == branch {
				out = append(out, mv)
			}
		}
	}
	return out
}

// =============================================================================
// DAY BOUNDARIES
// =============================================================================

func (m *Memory) GetOpeningStock(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.OpeningStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOpeningLocked(scope, itemID, date), nil
}

func (m *Memory) getOpeningLocked(scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) *ledger.OpeningStock {
	if o, ok := m.openings[scopeKey(scope, itemID, date)]; ok {
		cp := o
		return &cp
	}
	return nil
}

func (m *Memory) GetOpeningStockByID(_ context.Context, id string) (*ledger.OpeningStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOpeningByIDLocked(id), nil
}

func (m *Memory) getOpeningByIDLocked(id string) *ledger.OpeningStock {
	for _, o := range m.openings {
		if o.ID == id {
			cp := o
			return &cp
		}
	}
	return nil
}

func (m *Memory) UpsertOpeningStock(_ context.Context, o ledger.OpeningStock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertOpeningLocked(o)
	return nil
}

func (m *Memory) upsertOpeningLocked(o ledger.OpeningStock) {
	k := keyFor(o.Org, o.Branch, o.ItemID, o.Date)
	if existing, ok := m.openings[k]; ok && o.ID == "" {
		o.ID = existing.ID
	}
	m.openings[k] = o
}

func (m *Memory) GetClosingStock(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.ClosingStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getClosingLocked(scope, itemID, date), nil
}

func (m *Memory) getClosingLocked(scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) *ledger.ClosingStock {
	if c, ok := m.closings[scopeKey(scope, itemID, date)]; ok {
		cp := c
		return &cp
	}
	return nil
}

func (m *Memory) UpsertClosingStock(_ context.Context, c ledger.ClosingStock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertClosingLocked(c)
	return nil
}

func (m *Memory) upsertClosingLocked(c ledger.ClosingStock) {
	k := keyFor(c.Org, c.Branch, c.ItemID, c.Date)
	if existing, ok := m.closings[k]; ok && c.ID == "" {
		c.ID = existing.ID
	}
	m.closings[k] = c
}

// =============================================================================
// ISSUANCES / RETURNS
// =============================================================================

func (m *Memory) InsertIssuance(_ context.Context, i ledger.Issuance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertIssuanceLocked(i)
}

func (m *Memory) insertIssuanceLocked(i ledger.Issuance) error {
	if _, exists := m.issuances[i.ID]; exists {
		return ledger.ErrUniquenessViolation
	}
	m.issuances[i.ID] = i
	return nil
}

func (m *Memory) GetIssuance(_ context.Context, id ledger.IssuanceID) (*ledger.Issuance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getIssuanceLocked(id), nil
}

func (m *Memory) getIssuanceLocked(id ledger.IssuanceID) *ledger.Issuance {
	if i, ok := m.issuances[id]; ok {
		cp := i
		return &cp
	}
	return nil
}

func (m *Memory) IssuancesOn(_ context.Context, scope ledger.Scope, date ledger.Date) ([]ledger.Issuance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.issuancesOnLocked(scope, date), nil
}

func (m *Memory) issuancesOnLocked(scope ledger.Scope, date ledger.Date) []ledger.Issuance {
	var out []ledger.Issuance
	for _, i := range m.issuances {
		if i.Org == scope.Org && branchKey(i.Branch) == scope.BranchKey() && i.Date.Equal(date) {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (m *Memory) InsertReturn(_ context.Context, r ledger.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertReturnLocked(r)
	return nil
}

func (m *Memory) insertReturnLocked(r ledger.Return) {
	m.returns[r.IssuanceID] = append(m.returns[r.IssuanceID], r)
}

func (m *Memory) ReturnsFor(_ context.Context, issuanceID ledger.IssuanceID) ([]ledger.Return, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.returnsForLocked(issuanceID), nil
}

func (m *Memory) returnsForLocked(issuanceID ledger.IssuanceID) []ledger.Return {
	rs := m.returns[issuanceID]
	out := make([]ledger.Return, len(rs))
	copy(out, rs)
	return out
}

// =============================================================================
// ITEMS
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item ledger.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *Memory) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getItemLocked(id), nil
}

func (m *Memory) getItemLocked(id ledger.ItemID) *ledger.Item {
	if item, ok := m.items[id]; ok {
		cp := item
		return &cp
	}
	return nil
}

func (m *Memory) ListItems(_ context.Context, org ledger.OrgID) ([]ledger.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listItemsLocked(org), nil
}

func (m *Memory) listItemsLocked(org ledger.OrgID) []ledger.Item {
	var out []ledger.Item
	for _, item := range m.items {
		if item.Org == org {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// =============================================================================
// TRANSACTIONS - Snapshot plus restore under one lock
// =============================================================================

// WithTx executes fn atomically: the store lock is held for the duration
// and all state is restored if fn fails. This gives tests and the
// availability controller real check-and-insert atomicity.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	movements map[ledger.MovementID]ledger.Movement
	order     []ledger.MovementID
	derived   map[derivedKey]ledger.MovementID
	openings  map[dayKey]ledger.OpeningStock
	closings  map[dayKey]ledger.ClosingStock
	issuances map[ledger.IssuanceID]ledger.Issuance
	returns   map[ledger.IssuanceID][]ledger.Return
	items     map[ledger.ItemID]ledger.Item
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		movements: make(map[ledger.MovementID]ledger.Movement, len(m.movements)),
		order:     append([]ledger.MovementID{}, m.order...),
		derived:   make(map[derivedKey]ledger.MovementID, len(m.derived)),
		openings:  make(map[dayKey]ledger.OpeningStock, len(m.openings)),
		closings:  make(map[dayKey]ledger.ClosingStock, len(m.closings)),
		issuances: make(map[ledger.IssuanceID]ledger.Issuance, len(m.issuances)),
		returns:   make(map[ledger.IssuanceID][]ledger.Return, len(m.returns)),
		items:     make(map[ledger.ItemID]ledger.Item, len(m.items)),
	}
	for k, v := range m.movements {
		s.movements[k] = v
	}
	for k, v := range m.derived {
		s.derived[k] = v
	}
	for k, v := range m.openings {
		s.openings[k] = v
	}
	for k, v := range m.closings {
		s.closings[k] = v
	}
	for k, v := range m.issuances {
		s.issuances[k] = v
	}
	for k, v := range m.returns {
		s.returns[k] = append([]ledger.Return{}, v...)
	}
	for k, v := range m.items {
		s.items[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.movements = s.movements
	m.order = s.order
	m.derived = s.derived
	m.openings = s.openings
	m.closings = s.closings
	m.issuances = s.issuances
	m.returns = s.returns
	m.items = s.items
}

// txView exposes the parent's unlocked internals; it only exists inside
// WithTx, where the parent's lock is already held.
type txView struct {
	parent *Memory
}

var _ ledger.Store = (*txView)(nil)

func (tv *txView) InsertMovement(_ context.Context, mv ledger.Movement) error {
	return tv.parent.insertMovementLocked(mv)
}

func (tv *txView) UpsertDerivedSale(_ context.Context, mv ledger.Movement) error {
	return tv.parent.upsertDerivedSaleLocked(mv)
}

func (tv *txView) GetMovement(_ context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	return tv.parent.getMovementLocked(id)
}

func (tv *txView) DeleteMovement(_ context.Context, id ledger.MovementID) error {
	return tv.parent.deleteMovementLocked(id)
}

func (tv *txView) MovementsOn(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date, kind ledger.MovementKind) ([]ledger.Movement, error) {
	return tv.parent.movementsOnLocked(scope, itemID, date, kind), nil
}

func (tv *txView) SalesForBatch(_ context.Context, scope ledger.Scope, date ledger.Date, batch ledger.BatchRef) ([]ledger.Movement, error) {
	return tv.parent.salesForBatchLocked(scope, date, batch), nil
}

func (tv *txView) IncomingTransfers(_ context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	return tv.parent.transfersLocked(org, branch, itemID, date, false), nil
}

func (tv *txView) OutgoingTransfers(_ context.Context, org ledger.OrgID, branch ledger.BranchID, itemID ledger.ItemID, date ledger.Date) ([]ledger.Movement, error) {
	return tv.parent.transfersLocked(org, branch, itemID, date, true), nil
}

func (tv *txView) GetOpeningStock(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.OpeningStock, error) {
	return tv.parent.getOpeningLocked(scope, itemID, date), nil
}

func (tv *txView) GetOpeningStockByID(_ context.Context, id string) (*ledger.OpeningStock, error) {
	return tv.parent.getOpeningByIDLocked(id), nil
}

func (tv *txView) UpsertOpeningStock(_ context.Context, o ledger.OpeningStock) error {
	tv.parent.upsertOpeningLocked(o)
	return nil
}

func (tv *txView) GetClosingStock(_ context.Context, scope ledger.Scope, itemID ledger.ItemID, date ledger.Date) (*ledger.ClosingStock, error) {
	return tv.parent.getClosingLocked(scope, itemID, date), nil
}

func (tv *txView) UpsertClosingStock(_ context.Context, c ledger.ClosingStock) error {
	tv.parent.upsertClosingLocked(c)
	return nil
}

func (tv *txView) InsertIssuance(_ context.Context, i ledger.Issuance) error {
	return tv.parent.insertIssuanceLocked(i)
}

func (tv *txView) GetIssuance(_ context.Context, id ledger.IssuanceID) (*ledger.Issuance, error) {
	return tv.parent.getIssuanceLocked(id), nil
}

func (tv *txView) IssuancesOn(_ context.Context, scope ledger.Scope, date ledger.Date) ([]ledger.Issuance, error) {
	return tv.parent.issuancesOnLocked(scope, date), nil
}

func (tv *txView) InsertReturn(_ context.Context, r ledger.Return) error {
	tv.parent.insertReturnLocked(r)
	return nil
}

func (tv *txView) ReturnsFor(_ context.Context, issuanceID ledger.IssuanceID) ([]ledger.Return, error) {
	return tv.parent.returnsForLocked(issuanceID), nil
}

func (tv *txView) SaveItem(_ context.Context, item ledger.Item) error {
	tv.parent.items[item.ID] = item
	return nil
}

func (tv *txView) GetItem(_ context.Context, id ledger.ItemID) (*ledger.Item, error) {
	return tv.parent.getItemLocked(id), nil
}

func (tv *txView) ListItems(_ context.Context, org ledger.OrgID) ([]ledger.Item, error) {
	return tv.parent.listItemsLocked(org), nil
}

func branchKey(b *ledger.BranchID) string {
	if b == nil {
		return ""
	}
	return string(*b)
}
