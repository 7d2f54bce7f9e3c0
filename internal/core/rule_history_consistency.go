package core

import (
	"context"
	"fmt"
	"strconv"

	"teatrace/pkg/domain"
)

// HistoryConsistencyRule verifies the audit trail of every product touched in
// the transaction: the trail holds exactly CurrentStage+1 entries, entries are
// sequenced and reach the stages in lifecycle order, and the last handler is
// the current owner.
func HistoryConsistencyRule() domain.Rule {
	return historyConsistencyRule{}
}

type historyConsistencyRule struct{}

func (historyConsistencyRule) Name() string { return "history_consistency" }

func (historyConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[uint64]struct{})
	for _, change := range changes {
		var productID uint64
		switch change.Entity {
		case EntityProduct:
			if after, ok := change.After.(Product); ok {
				productID = after.ID
			}
		case EntityHistory:
			if after, ok := change.After.(HistoryEntry); ok {
				productID = after.ProductID
			}
		default:
			continue
		}
		if productID == 0 {
			continue
		}
		if _, dup := seen[productID]; dup {
			continue
		}
		seen[productID] = struct{}{}

		product, ok := view.FindProduct(productID)
		if !ok {
			continue
		}
		id := strconv.FormatUint(productID, 10)
		trail := view.HistoryFor(productID)
		if len(trail) != int(product.CurrentStage)+1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "history_consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("product %s at stage %s has %d history entries, want %d", id, product.CurrentStage, len(trail), int(product.CurrentStage)+1),
				Entity:   EntityProduct,
				EntityID: id,
			})
			continue
		}
		for i, entry := range trail {
			if entry.Seq != i || entry.Stage != Stage(i) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "history_consistency",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("product %s history entry %d is out of order", id, i),
					Entity:   EntityProduct,
					EntityID: id,
				})
			}
		}
		if last := trail[len(trail)-1]; last.Handler != product.CurrentOwner {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "history_consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("product %s owner %q does not match last handler %q", id, product.CurrentOwner, last.Handler),
				Entity:   EntityProduct,
				EntityID: id,
			})
		}
	}
	return res, nil
}
