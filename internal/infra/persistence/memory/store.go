// Package memory provides the in-memory implementation of the ledger
// persistence store used for tests and ephemeral environments. Durable
// backends embed it and snapshot its committed state.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"teatrace/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Participant aliases domain.Participant for in-memory persistence operations.
	Participant = domain.Participant
	// Product aliases domain.Product.
	Product = domain.Product
	// HistoryEntry aliases domain.HistoryEntry.
	HistoryEntry = domain.HistoryEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	participants map[string]Participant
	products     map[uint64]Product
	history      map[uint64][]HistoryEntry
	ownerIndex   map[string][]uint64
	batchIndex   map[string]uint64
	productSeq   uint64
}

// Snapshot captures a point-in-time clone of the committed store state. The
// batch index is derived from products and rebuilt on import.
type Snapshot struct {
	Participants map[string]Participant    `json:"participants"`
	Products     map[uint64]Product        `json:"products"`
	History      map[uint64][]HistoryEntry `json:"history"`
	OwnerIndex   map[string][]uint64       `json:"owner_index"`
	ProductSeq   uint64                    `json:"product_seq"`
}

func newMemoryState() memoryState {
	return memoryState{
		participants: make(map[string]Participant),
		products:     make(map[uint64]Product),
		history:      make(map[uint64][]HistoryEntry),
		ownerIndex:   make(map[string][]uint64),
		batchIndex:   make(map[string]uint64),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.participants {
		cloned.participants[k] = v
	}
	for k, v := range s.products {
		cloned.products[k] = v
	}
	for k, v := range s.history {
		cloned.history[k] = append([]HistoryEntry(nil), v...)
	}
	for k, v := range s.ownerIndex {
		cloned.ownerIndex[k] = append([]uint64(nil), v...)
	}
	for k, v := range s.batchIndex {
		cloned.batchIndex[k] = v
	}
	cloned.productSeq = s.productSeq
	return cloned
}

// Store provides an in-memory transactional store for the ledger domain.
// Mutations run against a clone of committed state and swap in atomically, so
// reads never observe a partially applied transition.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

type transaction struct {
	state   *memoryState
	changes []Change
	now     time.Time
}

type view struct {
	state *memoryState
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the resulting snapshot; any blocking
// violation aborts the commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	tx := &transaction{state: &next, now: s.nowFn()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &next}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = next
	return result, nil
}

// View executes fn against a read-only snapshot of committed state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(view{state: &snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state to the caller for validation reads.
func (tx *transaction) Snapshot() TransactionView {
	return view{state: tx.state}
}

// PutParticipant upserts a participant record. Registration overwrite is the
// registry's removal and reactivation mechanism, so an existing record is
// replaced wholesale and only CreatedAt survives.
func (tx *transaction) PutParticipant(p Participant) (Participant, error) {
	if p.Identity == "" {
		return Participant{}, domain.ValidationError{Field: "identity", Message: "must not be empty"}
	}
	prior, existed := tx.state.participants[p.Identity]
	if existed {
		p.CreatedAt = prior.CreatedAt
	} else {
		p.CreatedAt = tx.now
	}
	p.UpdatedAt = tx.now
	tx.state.participants[p.Identity] = p
	action := domain.ActionCreate
	var before any
	if existed {
		action = domain.ActionUpdate
		before = prior
	}
	tx.recordChange(Change{Entity: domain.EntityParticipant, Action: action, Before: before, After: p})
	return p, nil
}

// CreateProduct stores a new product, allocating the next sequential id and
// maintaining the batch and owner indexes.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.BatchID == "" {
		return Product{}, domain.ValidationError{Field: "batch_id", Message: "must not be empty"}
	}
	if _, exists := tx.state.batchIndex[p.BatchID]; exists {
		return Product{}, domain.DuplicateBatchError{BatchID: p.BatchID}
	}
	tx.state.productSeq++
	p.ID = tx.state.productSeq
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.products[p.ID] = p
	tx.state.batchIndex[p.BatchID] = p.ID
	tx.appendOwner(p.CurrentOwner, p.ID)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdateProduct mutates a product using the provided mutator function. The id,
// batch code, quantity, and creation timestamp are immutable and restored
// after the mutator runs. Owner changes update the custody index.
func (tx *transaction) UpdateProduct(id uint64, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.NotFoundError{Entity: domain.EntityProduct, Key: formatID(id)}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = before.ID
	current.BatchID = before.BatchID
	current.Quantity = before.Quantity
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.products[id] = current
	if current.CurrentOwner != before.CurrentOwner {
		tx.appendOwner(current.CurrentOwner, id)
	}
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// AppendHistory appends one custody entry for a product, assigning the next
// sequence number and the transaction timestamp.
func (tx *transaction) AppendHistory(entry HistoryEntry) (HistoryEntry, error) {
	if _, ok := tx.state.products[entry.ProductID]; !ok {
		return HistoryEntry{}, domain.NotFoundError{Entity: domain.EntityProduct, Key: formatID(entry.ProductID)}
	}
	trail := tx.state.history[entry.ProductID]
	entry.Seq = len(trail)
	entry.Timestamp = tx.now
	tx.state.history[entry.ProductID] = append(trail, entry)
	tx.recordChange(Change{Entity: domain.EntityHistory, Action: domain.ActionCreate, After: entry})
	return entry, nil
}

// appendOwner records custody of a product for an identity. Zero ids never
// enter the index, and a product appears at most once per identity.
func (tx *transaction) appendOwner(identity string, id uint64) {
	if identity == "" || id == 0 {
		return
	}
	for _, held := range tx.state.ownerIndex[identity] {
		if held == id {
			return
		}
	}
	tx.state.ownerIndex[identity] = append(tx.state.ownerIndex[identity], id)
}

// View methods --------------------------------------------------------------

func (v view) ListParticipants() []Participant {
	out := make([]Participant, 0, len(v.state.participants))
	for _, p := range v.state.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (v view) FindParticipant(identity string) (Participant, bool) {
	p, ok := v.state.participants[identity]
	return p, ok
}

func (v view) ListProducts() []Product {
	out := make([]Product, 0, len(v.state.products))
	for _, p := range v.state.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v view) FindProduct(id uint64) (Product, bool) {
	p, ok := v.state.products[id]
	return p, ok
}

func (v view) FindProductByBatch(batchID string) (Product, bool) {
	id, ok := v.state.batchIndex[batchID]
	if !ok {
		return Product{}, false
	}
	return v.FindProduct(id)
}

func (v view) HistoryFor(productID uint64) []HistoryEntry {
	return append([]HistoryEntry(nil), v.state.history[productID]...)
}

// Read helpers ---------------------------------------------------------------

// GetParticipant retrieves a participant by identity from committed state.
func (s *Store) GetParticipant(identity string) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.participants[identity]
	return p, ok
}

// ListParticipants returns all participants ordered by identity.
func (s *Store) ListParticipants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListParticipants()
}

// GetProduct retrieves a product by id from committed state.
func (s *Store) GetProduct(id uint64) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// GetProductByBatch retrieves a product through the batch-code index.
func (s *Store) GetProductByBatch(batchID string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.FindProductByBatch(batchID)
}

// ListProducts returns all products ordered by id.
func (s *Store) ListProducts() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{state: &s.state}.ListProducts()
}

// ProductsByOwner returns the ids of every product the identity has held, in
// custody order.
func (s *Store) ProductsByOwner(identity string) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.state.ownerIndex[identity]...)
}

// History returns the ordered custody trail for a product, oldest first.
func (s *Store) History(productID uint64) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.state.history[productID]...)
}

// Counts aggregates product totals from committed state.
func (s *Store) Counts() domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := domain.Counts{Total: len(s.state.products)}
	for _, p := range s.state.products {
		if p.CurrentStage.Terminal() {
			counts.Sold++
		} else {
			counts.Active++
		}
	}
	return counts
}

// ExportState returns a snapshot of committed state for durable backends.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state.clone()
	return Snapshot{
		Participants: state.participants,
		Products:     state.products,
		History:      state.history,
		OwnerIndex:   state.ownerIndex,
		ProductSeq:   state.productSeq,
	}
}

// ImportState replaces committed state with the snapshot, rebuilding the
// derived batch index.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Participants {
		state.participants[k] = v
	}
	for k, v := range snapshot.Products {
		state.products[k] = v
		state.batchIndex[v.BatchID] = v.ID
		if v.ID > state.productSeq {
			state.productSeq = v.ID
		}
	}
	for k, v := range snapshot.History {
		state.history[k] = append([]HistoryEntry(nil), v...)
	}
	for k, v := range snapshot.OwnerIndex {
		state.ownerIndex[k] = append([]uint64(nil), v...)
	}
	if snapshot.ProductSeq > state.productSeq {
		state.productSeq = snapshot.ProductSeq
	}
	s.state = state
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}
