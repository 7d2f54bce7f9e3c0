package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"teatrace/internal/blob"
	"teatrace/pkg/domain"
)

// ProvenanceDocument is the sealed, self-contained provenance record published
// for a product: the record as of export plus its full custody trail. Final is
// set once the product has reached the terminal stage.
type ProvenanceDocument struct {
	Product    Product        `json:"product"`
	History    []HistoryEntry `json:"history"`
	Final      bool           `json:"final"`
	ExportedAt time.Time      `json:"exported_at"`
}

// ProvenanceExporter publishes provenance documents to a blob store. Documents
// are immutable: each export of a product at a given stage gets its own key,
// and re-exporting the same stage fails at the store.
type ProvenanceExporter struct {
	store blob.Store
}

// NewProvenanceExporter constructs an exporter over the supplied blob store.
func NewProvenanceExporter(store blob.Store) *ProvenanceExporter {
	return &ProvenanceExporter{store: store}
}

// Key returns the blob key for a product's export at its current stage.
func (e *ProvenanceExporter) Key(product Product) string {
	return fmt.Sprintf("provenance/%s/%d.json", product.BatchID, product.CurrentStage)
}

// Export publishes one document and returns the stored blob info.
func (e *ProvenanceExporter) Export(ctx context.Context, doc ProvenanceDocument) (blob.Info, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return blob.Info{}, err
	}
	return e.store.Put(ctx, e.Key(doc.Product), bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"batch": doc.Product.BatchID,
			"stage": doc.Product.CurrentStage.String(),
		},
	})
}

// ShareURL returns a pre-signed link to a previously exported document, when
// the backend supports it.
func (e *ProvenanceExporter) ShareURL(ctx context.Context, product Product, expiry time.Duration) (string, error) {
	return e.store.PresignURL(ctx, e.Key(product), blob.SignedURLOptions{Method: "GET", Expiry: expiry})
}

// ExportProvenance publishes the provenance document for a product at its
// current stage. It fails with NotFound for an unknown product and with an
// exporter-not-configured error when no blob backend is wired.
func (s *Service) ExportProvenance(ctx context.Context, productID uint64) (blob.Info, error) {
	if s.exporter == nil {
		return blob.Info{}, fmt.Errorf("provenance exporter not configured")
	}
	var info blob.Info
	_, err := s.instrument(ctx, "export_provenance", func(ctx context.Context) (Result, error) {
		// Record and trail come from one committed snapshot so the sealed
		// document can never mix a pre-transition stage with a
		// post-transition trail. The blob write happens outside the
		// snapshot.
		var doc ProvenanceDocument
		err := s.store.View(ctx, func(v TransactionView) error {
			product, ok := v.FindProduct(productID)
			if !ok {
				return domain.NotFoundError{Entity: EntityProduct, Key: strconv.FormatUint(productID, 10)}
			}
			doc = ProvenanceDocument{
				Product:    product,
				History:    v.HistoryFor(productID),
				Final:      product.CurrentStage.Terminal(),
				ExportedAt: s.clock.Now(),
			}
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		info, err = s.exporter.Export(ctx, doc)
		return Result{}, err
	})
	return info, err
}
