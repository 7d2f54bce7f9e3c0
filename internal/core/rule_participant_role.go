package core

import (
	"context"
	"fmt"

	"teatrace/pkg/domain"
)

// ParticipantRoleRule blocks registry writes that store a role outside the
// closed enumeration or an empty identity.
func ParticipantRoleRule() domain.Rule {
	return participantRoleRule{}
}

type participantRoleRule struct{}

func (participantRoleRule) Name() string { return "participant_role" }

func (participantRoleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityParticipant {
			continue
		}
		after, ok := change.After.(Participant)
		if !ok {
			continue
		}
		if after.Identity == "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "participant_role",
				Severity: SeverityBlock,
				Message:  "participant stored with empty identity",
				Entity:   EntityParticipant,
			})
			continue
		}
		if !after.Role.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "participant_role",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("participant %s stored with invalid role %d", after.Identity, after.Role),
				Entity:   EntityParticipant,
				EntityID: after.Identity,
			})
		}
	}
	return res, nil
}
