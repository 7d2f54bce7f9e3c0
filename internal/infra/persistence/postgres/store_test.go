package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"teatrace/pkg/domain"

	_ "modernc.org/sqlite"
)

// withEmbeddedDB routes the pgx open call to an embedded sqlite database. The
// store only issues portable SQL (CREATE TABLE, upsert, SELECT), so the
// snapshot round trip is exercised without a running Postgres server.
func withEmbeddedDB(t *testing.T, path string, fn func()) {
	t.Helper()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
	defer restore()
	fn()
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	ctx := context.Background()

	withEmbeddedDB(t, path, func() {
		s, err := NewStore("unused-dsn", domain.NewRulesEngine())
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		var productID uint64
		_, err = s.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created, err := tx.CreateProduct(domain.Product{BatchID: "NIL-2024-003", Quantity: 750, CurrentOwner: "farmer"})
			if err != nil {
				return err
			}
			productID = created.ID
			_, err = tx.AppendHistory(domain.HistoryEntry{ProductID: created.ID, Stage: domain.StageCultivation, Handler: "farmer"})
			return err
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		reopened, err := NewStore("unused-dsn", domain.NewRulesEngine())
		if err != nil {
			t.Fatalf("reopen store: %v", err)
		}
		if _, ok := reopened.GetProduct(productID); !ok {
			t.Fatal("product lost across reopen")
		}
		if got := len(reopened.History(productID)); got != 1 {
			t.Fatalf("history = %d entries, want 1", got)
		}
	})
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	})
	defer restore()
	if _, err := NewStore("", domain.NewRulesEngine()); err == nil {
		t.Fatal("expected open error")
	}
}
