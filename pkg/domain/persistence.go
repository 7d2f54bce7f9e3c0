package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. The implementation owns sequential id
// allocation, batch-code uniqueness, and the owner custody index; callers own
// authorization and the stage state machine.
type Transaction interface {
	Snapshot() TransactionView
	PutParticipant(p Participant) (Participant, error)
	CreateProduct(p Product) (Product, error)
	UpdateProduct(id uint64, mutator func(*Product) error) (Product, error)
	AppendHistory(entry HistoryEntry) (HistoryEntry, error)
}

// TransactionView provides read-only access to transactional snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. Reads serve
// the latest committed state and never observe a partially applied
// transaction.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetParticipant(identity string) (Participant, bool)
	ListParticipants() []Participant
	GetProduct(id uint64) (Product, bool)
	GetProductByBatch(batchID string) (Product, bool)
	ListProducts() []Product
	ProductsByOwner(identity string) []uint64
	History(productID uint64) []HistoryEntry
	Counts() Counts
}
