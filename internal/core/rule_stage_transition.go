package core

import (
	"context"
	"fmt"
	"strconv"

	"teatrace/pkg/domain"
)

// StageTransitionRule blocks illegal stage movement on product records: stage
// values outside the closed set, creation away from Cultivation, updates that
// are not exactly one step forward, and any movement out of Sold.
func StageTransitionRule() domain.Rule {
	return stageTransitionRule{}
}

type stageTransitionRule struct{}

func (stageTransitionRule) Name() string { return "stage_transition" }

func (stageTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityProduct {
			continue
		}
		after, ok := change.After.(Product)
		if !ok {
			continue
		}
		id := strconv.FormatUint(after.ID, 10)
		if !after.CurrentStage.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "stage_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("product %s is set to invalid stage %d", id, after.CurrentStage),
				Entity:   EntityProduct,
				EntityID: id,
			})
			continue
		}
		switch change.Action {
		case ActionCreate:
			if after.CurrentStage != StageCultivation {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "stage_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("product %s created at stage %s, must start at %s", id, after.CurrentStage, StageCultivation),
					Entity:   EntityProduct,
					EntityID: id,
				})
			}
		case ActionUpdate:
			before, ok := change.Before.(Product)
			if !ok {
				continue
			}
			if before.CurrentStage == after.CurrentStage {
				continue
			}
			next, hasNext := before.CurrentStage.Next()
			if !hasNext || after.CurrentStage != next {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "stage_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("product %s moved from %s to %s, stages advance one step at a time", id, before.CurrentStage, after.CurrentStage),
					Entity:   EntityProduct,
					EntityID: id,
				})
			}
		}
	}
	return res, nil
}
