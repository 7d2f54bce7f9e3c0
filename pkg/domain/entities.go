// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the tea chain-of-custody ledger.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityParticipant identifies a registered supply-chain participant.
	EntityParticipant EntityType = "participant"
	// EntityProduct identifies a tracked tea batch record.
	EntityProduct EntityType = "product"
	// EntityHistory identifies an appended custody history entry.
	EntityHistory EntityType = "history_entry"
)

// Role is the closed set of participant roles. Values are stable and must
// never be renumbered: persisted state and external callers depend on them.
type Role uint8

// Participant roles in numbering order.
const (
	RoleNone        Role = 0
	RoleFarmer      Role = 1
	RoleProcessor   Role = 2
	RoleWarehouse   Role = 3
	RoleDistributor Role = 4
	RoleRetailer    Role = 5
	RoleAuthority   Role = 6
)

var roleNames = map[Role]string{
	RoleNone:        "none",
	RoleFarmer:      "farmer",
	RoleProcessor:   "processor",
	RoleWarehouse:   "warehouse",
	RoleDistributor: "distributor",
	RoleRetailer:    "retailer",
	RoleAuthority:   "authority",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole resolves a role name to its numeric value.
func ParseRole(name string) (Role, bool) {
	for role, n := range roleNames {
		if n == name {
			return role, true
		}
	}
	return RoleNone, false
}

// Stage is the closed set of custody stages a product moves through. The
// sequence is fixed and linear; values are stable and never reordered.
type Stage uint8

// Custody stages in lifecycle order.
const (
	StageCultivation  Stage = 0
	StageProcessing   Stage = 1
	StageWarehousing  Stage = 2
	StageDistribution Stage = 3
	StageRetail       Stage = 4
	StageSold         Stage = 5
)

var stageNames = map[Stage]string{
	StageCultivation:  "cultivation",
	StageProcessing:   "processing",
	StageWarehousing:  "warehousing",
	StageDistribution: "distribution",
	StageRetail:       "retail",
	StageSold:         "sold",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Stage) Terminal() bool {
	return s == StageSold
}

// Next returns the sole stage reachable from s. ok is false at the terminal
// stage.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s.Terminal() {
		return s, false
	}
	return s + 1, true
}

// ParseStage resolves a stage name to its numeric value.
func ParseStage(name string) (Stage, bool) {
	for stage, n := range stageNames {
		if n == name {
			return stage, true
		}
	}
	return StageCultivation, false
}

// transitionRoles maps a product's current stage to the role required to
// perform the move to the following stage.
var transitionRoles = map[Stage]Role{
	StageCultivation:  RoleProcessor,
	StageProcessing:   RoleWarehouse,
	StageWarehousing:  RoleDistributor,
	StageDistribution: RoleRetailer,
	StageRetail:       RoleRetailer,
}

// RoleForTransition returns the role required to advance a product out of the
// given stage. ok is false when the stage is terminal or unknown.
func RoleForTransition(from Stage) (Role, bool) {
	role, ok := transitionRoles[from]
	return role, ok
}

// Participant maps an identity to a role and profile. The registry is the
// sole writer; deactivation revokes authorization without deleting history.
type Participant struct {
	Identity  string    `json:"identity"`
	Role      Role      `json:"role"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a physical tea batch under custody tracking. IDs are assigned
// sequentially starting at 1; 0 is reserved and never a valid product id.
type Product struct {
	ID           uint64    `json:"id"`
	BatchID      string    `json:"batch_id"`
	Name         string    `json:"name"`
	Origin       string    `json:"origin"`
	Grade        string    `json:"grade"`
	Quantity     int64     `json:"quantity"`
	CurrentStage Stage     `json:"current_stage"`
	CurrentOwner string    `json:"current_owner"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HistoryEntry records a product reaching a stage under a handler. Entries are
// immutable once appended; Seq is the zero-based position in the product's
// trail, so a well-formed product has Seq 0..CurrentStage.
type HistoryEntry struct {
	ProductID uint64    `json:"product_id"`
	Seq       int       `json:"seq"`
	Stage     Stage     `json:"stage"`
	Handler   string    `json:"handler"`
	Notes     string    `json:"notes"`
	Timestamp time.Time `json:"timestamp"`
}

// Counts aggregates ledger totals for reporting.
type Counts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Sold   int `json:"sold"`
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the transaction change set. The ledger never
// deletes records, so create and update are the only actions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
