package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"teatrace/pkg/domain"
)

func fixedClock(t *testing.T, s *Store) time.Time {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return now })
	return now
}

func createProduct(t *testing.T, s *Store, batch, owner string) Product {
	t.Helper()
	var created Product
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateProduct(Product{BatchID: batch, Name: "Tea", Quantity: 10, CurrentOwner: owner})
		return err
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return created
}

func TestCreateProductAssignsSequentialIDs(t *testing.T) {
	s := NewStore(nil)
	first := createProduct(t, s, "B-1", "alice")
	second := createProduct(t, s, "B-2", "alice")
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", first.ID, second.ID)
	}
}

func TestCreateProductRejectsDuplicateBatch(t *testing.T) {
	s := NewStore(nil)
	createProduct(t, s, "B-1", "alice")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProduct(Product{BatchID: "B-1", Quantity: 5, CurrentOwner: "bob"})
		return err
	})
	if !domain.IsDuplicateBatch(err) {
		t.Fatalf("expected duplicate batch error, got %v", err)
	}
	if got := len(s.ListProducts()); got != 1 {
		t.Fatalf("expected 1 product after rejected duplicate, got %d", got)
	}
}

func TestCreateProductRejectsEmptyBatch(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProduct(Product{Quantity: 5})
		return err
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	s := NewStore(nil)
	createProduct(t, s, "B-1", "alice")
	boom := errors.New("boom")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateProduct(Product{BatchID: "B-2", Quantity: 1, CurrentOwner: "alice"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(s.ListProducts()); got != 1 {
		t.Fatalf("aborted create leaked: %d products", got)
	}
	// the allocated sequence number must not be consumed either
	next := createProduct(t, s, "B-3", "alice")
	if next.ID != 2 {
		t.Fatalf("next id = %d, want 2", next.ID)
	}
}

type denyAllRule struct{}

func (denyAllRule) Name() string { return "deny_all" }

func (denyAllRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "deny_all", Severity: domain.SeverityBlock}}}, nil
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(denyAllRule{})
	s := NewStore(engine)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateProduct(Product{BatchID: "B-1", Quantity: 1, CurrentOwner: "alice"})
		return err
	})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if got := len(s.ListProducts()); got != 0 {
		t.Fatalf("blocked commit leaked: %d products", got)
	}
}

func TestUpdateProductRestoresImmutableFields(t *testing.T) {
	s := NewStore(nil)
	created := createProduct(t, s, "B-1", "alice")
	var updated Product
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProduct(created.ID, func(p *Product) error {
			p.ID = 99
			p.BatchID = "HACKED"
			p.Quantity = -1
			p.CurrentStage = domain.StageProcessing
			p.CurrentOwner = "bob"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || updated.BatchID != "B-1" || updated.Quantity != created.Quantity {
		t.Fatalf("immutable fields changed: %+v", updated)
	}
	if updated.CurrentStage != domain.StageProcessing || updated.CurrentOwner != "bob" {
		t.Fatalf("mutable fields not applied: %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Fatal("CreatedAt must survive updates")
	}
}

func TestUpdateMissingProduct(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateProduct(42, func(*Product) error { return nil })
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOwnerIndexTracksCustodyOrder(t *testing.T) {
	s := NewStore(nil)
	first := createProduct(t, s, "B-1", "alice")
	second := createProduct(t, s, "B-2", "alice")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateProduct(first.ID, func(p *Product) error {
			p.CurrentOwner = "bob"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("handoff: %v", err)
	}

	alice := s.ProductsByOwner("alice")
	if len(alice) != 2 || alice[0] != first.ID || alice[1] != second.ID {
		t.Fatalf("alice custody = %v, want [%d %d]", alice, first.ID, second.ID)
	}
	bob := s.ProductsByOwner("bob")
	if len(bob) != 1 || bob[0] != first.ID {
		t.Fatalf("bob custody = %v, want [%d]", bob, first.ID)
	}
	if got := s.ProductsByOwner("nobody"); len(got) != 0 {
		t.Fatalf("unknown owner custody = %v, want empty", got)
	}
}

func TestOwnerIndexDeduplicatesRepeatedCustody(t *testing.T) {
	s := NewStore(nil)
	p := createProduct(t, s, "B-1", "alice")
	for _, owner := range []string{"bob", "alice"} {
		_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.UpdateProduct(p.ID, func(prod *Product) error {
				prod.CurrentOwner = owner
				return nil
			})
			return err
		})
		if err != nil {
			t.Fatalf("handoff to %s: %v", owner, err)
		}
	}
	alice := s.ProductsByOwner("alice")
	if len(alice) != 1 {
		t.Fatalf("alice custody = %v, want single entry", alice)
	}
}

func TestAppendHistoryAssignsSeqAndTimestamp(t *testing.T) {
	s := NewStore(nil)
	now := fixedClock(t, s)
	p := createProduct(t, s, "B-1", "alice")
	for i := 0; i < 3; i++ {
		_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
			_, err := tx.AppendHistory(HistoryEntry{ProductID: p.ID, Stage: domain.Stage(i), Handler: "alice"})
			return err
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	trail := s.History(p.ID)
	if len(trail) != 3 {
		t.Fatalf("trail length = %d, want 3", len(trail))
	}
	for i, e := range trail {
		if e.Seq != i {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
		if !e.Timestamp.Equal(now) {
			t.Fatalf("entry %d timestamp = %v, want %v", i, e.Timestamp, now)
		}
	}
}

func TestAppendHistoryRequiresProduct(t *testing.T) {
	s := NewStore(nil)
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendHistory(HistoryEntry{ProductID: 7})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutParticipantPreservesCreatedAt(t *testing.T) {
	s := NewStore(nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return base })
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.PutParticipant(Participant{Identity: "alice", Role: domain.RoleFarmer, Active: true})
		return err
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	later := base.Add(time.Hour)
	s.SetNowFunc(func() time.Time { return later })
	_, err = s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.PutParticipant(Participant{Identity: "alice", Role: domain.RoleNone})
		return err
	})
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	p, ok := s.GetParticipant("alice")
	if !ok {
		t.Fatal("participant missing")
	}
	if !p.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", p.CreatedAt, base)
	}
	if !p.UpdatedAt.Equal(later) {
		t.Fatalf("UpdatedAt = %v, want %v", p.UpdatedAt, later)
	}
	if p.Role != domain.RoleNone {
		t.Fatalf("role = %v, want none", p.Role)
	}
}

func TestCountsSplitActiveAndSold(t *testing.T) {
	s := NewStore(nil)
	createProduct(t, s, "B-1", "alice")
	sold := createProduct(t, s, "B-2", "alice")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateProduct(sold.ID, func(p *Product) error {
			p.CurrentStage = domain.StageSold
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	counts := s.Counts()
	if counts.Total != 2 || counts.Active != 1 || counts.Sold != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore(nil)
	createProduct(t, s, "B-1", "alice")
	p2 := createProduct(t, s, "B-2", "bob")
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.PutParticipant(Participant{Identity: "alice", Role: domain.RoleFarmer, Active: true}); err != nil {
			return err
		}
		_, err := tx.AppendHistory(HistoryEntry{ProductID: p2.ID, Stage: domain.StageCultivation, Handler: "bob"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(s.ExportState())

	if got := len(restored.ListProducts()); got != 2 {
		t.Fatalf("restored products = %d, want 2", got)
	}
	if _, ok := restored.GetProductByBatch("B-2"); !ok {
		t.Fatal("batch index not rebuilt on import")
	}
	if got := len(restored.History(p2.ID)); got != 1 {
		t.Fatalf("restored history = %d entries, want 1", got)
	}
	if got := restored.ProductsByOwner("bob"); len(got) != 1 || got[0] != p2.ID {
		t.Fatalf("restored custody = %v", got)
	}
	// the sequence continues past the imported maximum
	next := createProduct(t, restored, "B-3", "alice")
	if next.ID != 3 {
		t.Fatalf("next id after import = %d, want 3", next.ID)
	}
}

func TestViewSeesCommittedSnapshot(t *testing.T) {
	s := NewStore(nil)
	created := createProduct(t, s, "B-1", "alice")
	err := s.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindProduct(created.ID); !ok {
			t.Fatal("committed product missing from view")
		}
		if _, ok := v.FindProductByBatch("B-1"); !ok {
			t.Fatal("batch lookup failed in view")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestConcurrentCommitsStayOrdered(t *testing.T) {
	s := NewStore(nil)
	const writers = 8

	start := make(chan struct{})
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
				_, err := tx.CreateProduct(Product{BatchID: fmt.Sprintf("BATCH-%03d", i), Name: "Tea", Quantity: 10, CurrentOwner: "farmer"})
				return err
			})
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	products := s.ListProducts()
	if len(products) != writers {
		t.Fatalf("products = %d, want %d", len(products), writers)
	}
	seen := make(map[uint64]bool, writers)
	for _, p := range products {
		if p.ID == 0 || p.ID > writers {
			t.Fatalf("id %d outside 1..%d", p.ID, writers)
		}
		if seen[p.ID] {
			t.Fatalf("id %d allocated twice", p.ID)
		}
		seen[p.ID] = true
	}
}
