// Package domain defines the admission allocation entities, the rule
// evaluation contracts, and the ledger persistence interfaces shared by all
// infrastructure implementations.
package domain

import (
	"fmt"
	"time"
)

// EntityType identifies a domain record kind in changes and violations.
type EntityType string

// Entity kinds tracked by the ledger.
const (
	EntityProgramOffer EntityType = "program_offer"
	EntityAllocation   EntityType = "allocation"
)

// Tier is the priority segment assigned to a candidate. Tiers are ordered:
// rank 1 (QUOTA) outranks rank 7 (GENERAL) when breaking score ties.
type Tier string

// Priority tiers, highest priority first.
const (
	TierQuota             Tier = "QUOTA"
	TierVulnerability     Tier = "VULNERABILITY"
	TierAcademicMerit     Tier = "ACADEMIC_MERIT"
	TierRecognitions      Tier = "RECOGNITIONS"
	TierEthnicGroups      Tier = "ETHNIC_NATIONAL_GROUPS"
	TierGraduatingSeniors Tier = "GRADUATING_SENIORS"
	TierGeneral           Tier = "GENERAL"
)

var tierOrder = []Tier{
	TierQuota,
	TierVulnerability,
	TierAcademicMerit,
	TierRecognitions,
	TierEthnicGroups,
	TierGraduatingSeniors,
	TierGeneral,
}

// Rank returns the 1-based priority rank of the tier (1 = highest). Unknown
// tiers rank 0.
func (t Tier) Rank() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether the tier is one of the canonical values.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// Tiers returns the canonical tier ordering, highest priority first.
func Tiers() []Tier {
	out := make([]Tier, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// ParseTier resolves a tier name to its canonical value.
func ParseTier(name string) (Tier, error) {
	t := Tier(name)
	if !t.Valid() {
		return "", ValidationError{Field: "tier", Message: fmt.Sprintf("unknown tier %q", name)}
	}
	return t, nil
}

// Marker names an eligibility condition evidenced for a candidate.
type Marker string

// Eligibility markers feeding segment classification.
const (
	MarkerSocioeconomicCondition Marker = "socioeconomic_condition"
	MarkerRurality               Marker = "rurality"
	MarkerDisability             Marker = "disability"
	MarkerEthnicGroup            Marker = "ethnic_group"
	MarkerViolenceVictim         Marker = "violence_victim"
	MarkerReturneeMigrant        Marker = "returnee_migrant"
	MarkerVulnerability          Marker = "vulnerability"
	MarkerAcademicMerit          Marker = "academic_merit"
	MarkerSeniorEthnicGroup      Marker = "graduating_senior_ethnic_group"
	MarkerGraduatingSenior       Marker = "graduating_senior"
)

// MarkerSet maps eligibility markers to boolean evidence flags. A nil set
// behaves as all-false.
type MarkerSet map[Marker]bool

// Has reports whether the marker is set.
func (m MarkerSet) Has(marker Marker) bool { return m[marker] }

// Clone returns an independent copy of the marker set.
func (m MarkerSet) Clone() MarkerSet {
	if m == nil {
		return nil
	}
	out := make(MarkerSet, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AllocationState is the lifecycle state of an allocation record.
type AllocationState string

// Allocation record states. Rejected, cancelled and completed are terminal
// except that a rejected record may still be closed as cancelled.
const (
	StatePending   AllocationState = "pending"
	StateAssigned  AllocationState = "assigned"
	StateRejected  AllocationState = "rejected"
	StateCancelled AllocationState = "cancelled"
	StateCompleted AllocationState = "completed"
)

// AllocationStates enumerates every valid record state.
func AllocationStates() []AllocationState {
	return []AllocationState{StatePending, StateAssigned, StateRejected, StateCancelled, StateCompleted}
}

// Base contains common fields for keyed domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgramOffer is one admission seat pool: a program identified by the
// caller-supplied ID with a fixed total capacity and a remaining counter.
//
// Invariant: 0 <= RemainingSeats <= TotalSeats and
// TotalSeats-RemainingSeats equals the count of assigned records for the
// offer at every point observable between ledger scopes.
type ProgramOffer struct {
	Base
	Name           string `json:"name"`
	TotalSeats     int    `json:"total_seats"`
	RemainingSeats int    `json:"remaining_seats"`
}

// AllocationRecord captures one candidate's assignment attempt against one
// offer and its state history. Records are never deleted, only transitioned.
type AllocationRecord struct {
	ID          int64           `json:"id"`
	CandidateID string          `json:"candidate_id"`
	OfferID     string          `json:"offer_id"`
	Tier        Tier            `json:"tier"`
	Score       float64         `json:"score"`
	MeritOrder  int64           `json:"merit_order"`
	State       AllocationState `json:"state"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	AssignedAt  *time.Time      `json:"assigned_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Active reports whether the record currently holds a seat.
func (r AllocationRecord) Active() bool { return r.State == StateAssigned }

// LedgerStats aggregates ledger-wide counters for the stats operation.
type LedgerStats struct {
	Offers         int                     `json:"offers"`
	TotalSeats     int                     `json:"total_seats"`
	RemainingSeats int                     `json:"remaining_seats"`
	ByState        map[AllocationState]int `json:"by_state"`
}

// Change describes a mutation applied to an entity during a ledger scope.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured for rule evaluation and audit.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock aborts the scope without committing.
	SeverityBlock Severity = "block"
	// SeverityWarn reports but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
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
