package core

import (
	"context"
	"fmt"
	"strconv"

	"teatrace/pkg/domain"
)

// BatchUniquenessRule blocks any commit that would leave two products sharing
// a batch code. The store's index check catches this first; the rule keeps the
// invariant independent of any one storage implementation.
func BatchUniquenessRule() domain.Rule {
	return batchUniquenessRule{}
}

type batchUniquenessRule struct{}

func (batchUniquenessRule) Name() string { return "batch_uniqueness" }

func (batchUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := false
	for _, change := range changes {
		if change.Entity == EntityProduct {
			touched = true
			break
		}
	}
	res := domain.Result{}
	if !touched {
		return res, nil
	}
	byBatch := make(map[string]uint64)
	for _, product := range view.ListProducts() {
		if prior, dup := byBatch[product.BatchID]; dup {
			id := strconv.FormatUint(product.ID, 10)
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "batch_uniqueness",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %q is shared by products %d and %d", product.BatchID, prior, product.ID),
				Entity:   EntityProduct,
				EntityID: id,
			})
			continue
		}
		byBatch[product.BatchID] = product.ID
	}
	return res, nil
}
