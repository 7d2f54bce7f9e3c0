package core

import "teatrace/pkg/domain"

// NewDefaultRulesEngine constructs a rules engine with the ledger's invariant
// checks registered. Every transaction commits only after these pass against
// the transactional snapshot.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StageTransitionRule())
	engine.Register(HistoryConsistencyRule())
	engine.Register(BatchUniquenessRule())
	engine.Register(ParticipantRoleRule())
	return engine
}
