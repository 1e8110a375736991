package domain

// DelegationState describes where write-authority for an account currently
// lives: on the base layer or delegated into an ephemeral rollup.
type DelegationState string

const (
	// StateNotDelegated means the account is under ordinary base-layer control.
	StateNotDelegated DelegationState = "NOT_DELEGATED"

	// StateDelegated means the account is delegated to an ER validator.
	StateDelegated DelegationState = "DELEGATED"

	// StatePendingCommit is a transient state entered when a commit request
	// has been issued but not yet confirmed.
	StatePendingCommit DelegationState = "PENDING_COMMIT"

	// StatePendingUndelegation is a transient state entered when an
	// undelegate request has been issued but not yet confirmed.
	StatePendingUndelegation DelegationState = "PENDING_UNDELEGATION"
)

// DelegationStatus is the tracked delegation state for one account.
// Owned by the delegation manager; not persisted beyond process lifetime.
type DelegationStatus struct {
	Account            string          `json:"account"`
	State              DelegationState `json:"state"`
	Validator          *string         `json:"validator,omitempty"`
	ValidatorRegion    *string         `json:"validatorRegion,omitempty"`
	DelegatedAt        *int64          `json:"delegatedAt,omitempty"` // Unix ms
	CommitFrequencyMs  *uint64         `json:"commitFrequencyMs,omitempty"`
	LastCommitSlot     *uint64         `json:"lastCommitSlot,omitempty"`
	EstimatedLatencyMs *uint32         `json:"estimatedLatencyMs,omitempty"`
}

// ValidatorInfo describes one ER validator candidate. It is recomputed on
// each discovery sweep and never cached across routing decisions.
type ValidatorInfo struct {
	Pubkey    string  `json:"pubkey"`
	Region    string  `json:"region"`
	LatencyMs uint32  `json:"latencyMs"`
	LoadPct   uint8   `json:"loadPct"`
	Available bool    `json:"available"`
	TEE       bool    `json:"tee"`
	Name      *string `json:"name,omitempty"`
}

// DelegationEvent is one audit-log row for a lifecycle transition.
// Corresponds to the delegation_events table.
type DelegationEvent struct {
	EventID    string  // PRIMARY KEY, deterministic hash
	Account    string  // delegated account
	EventType  string  // DELEGATE | COMMIT | UNDELEGATE
	Validator  *string // target validator (nullable)
	Signature  string  // transaction signature
	Slot       *uint64 // confirmation slot (nullable)
	OccurredAt int64   // Unix timestamp in milliseconds
}

// Delegation event types.
const (
	EventDelegate   = "DELEGATE"
	EventCommit     = "COMMIT"
	EventUndelegate = "UNDELEGATE"
)

// LatencySample is one validator latency measurement.
// Corresponds to the latency_samples table.
type LatencySample struct {
	Validator  string
	Region     string
	LatencyMs  uint32
	Available  bool
	MeasuredAt int64 // Unix timestamp in milliseconds
}
