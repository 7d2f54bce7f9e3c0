package core

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"teatrace/internal/blob"
	"teatrace/internal/infra/persistence/memory"
	"teatrace/pkg/domain"
)

func TestExportProvenance(t *testing.T) {
	blobStore := blob.NewMemory()
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store, WithProvenanceExporter(NewProvenanceExporter(blobStore)))
	ctx := context.Background()
	if _, _, err := svc.BootstrapAuthority(ctx, authority, "Tea Board", "Kolkata"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, _, err := svc.RegisterParticipant(ctx, authority, RegisterParticipantInput{Identity: farmer, Role: RoleFarmer}); err != nil {
		t.Fatalf("register: %v", err)
	}
	product, _, err := svc.CreateProduct(ctx, farmer, CreateProductInput{BatchID: "DAR-2024-001", Quantity: 500})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	info, err := svc.ExportProvenance(ctx, product.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	wantKey := "provenance/DAR-2024-001/0.json"
	if info.Key != wantKey {
		t.Fatalf("key = %s, want %s", info.Key, wantKey)
	}

	_, rc, err := blobStore.Get(ctx, wantKey)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	var doc ProvenanceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Product.BatchID != "DAR-2024-001" {
		t.Fatalf("document batch = %s", doc.Product.BatchID)
	}
	if len(doc.History) != 1 {
		t.Fatalf("document history = %d entries, want 1", len(doc.History))
	}
	if doc.Final {
		t.Fatal("cultivation-stage document must not be final")
	}

	// documents are immutable per stage
	if _, err := svc.ExportProvenance(ctx, product.ID); err == nil {
		t.Fatal("expected re-export at same stage to fail")
	}
}

func TestExportProvenanceErrors(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store)
	if _, err := svc.ExportProvenance(context.Background(), 1); err == nil {
		t.Fatal("expected error without exporter configured")
	}

	svc = NewService(store, WithProvenanceExporter(NewProvenanceExporter(blob.NewMemory())))
	if _, err := svc.ExportProvenance(context.Background(), 99); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
