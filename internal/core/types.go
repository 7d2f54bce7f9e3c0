package core

import "teatrace/pkg/domain"

type (
	EntityType         = domain.EntityType
	Role               = domain.Role
	Stage              = domain.Stage
	Severity           = domain.Severity
	Participant        = domain.Participant
	Product            = domain.Product
	HistoryEntry       = domain.HistoryEntry
	Counts             = domain.Counts
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityParticipant = domain.EntityParticipant
	EntityProduct     = domain.EntityProduct
	EntityHistory     = domain.EntityHistory
)

const (
	RoleNone        = domain.RoleNone
	RoleFarmer      = domain.RoleFarmer
	RoleProcessor   = domain.RoleProcessor
	RoleWarehouse   = domain.RoleWarehouse
	RoleDistributor = domain.RoleDistributor
	RoleRetailer    = domain.RoleRetailer
	RoleAuthority   = domain.RoleAuthority
)

const (
	StageCultivation  = domain.StageCultivation
	StageProcessing   = domain.StageProcessing
	StageWarehousing  = domain.StageWarehousing
	StageDistribution = domain.StageDistribution
	StageRetail       = domain.StageRetail
	StageSold         = domain.StageSold
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
)
