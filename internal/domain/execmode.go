package domain

// ExecutionMode selects the execution path for a transaction: base layer,
// ephemeral rollup, TEE-private rollup, and/or ZK-compressed accounts.
type ExecutionMode string

const (
	ModeStandard          ExecutionMode = "STANDARD"
	ModeFast              ExecutionMode = "FAST"
	ModePrivate           ExecutionMode = "PRIVATE"
	ModeCompressed        ExecutionMode = "COMPRESSED"
	ModeFastCompressed    ExecutionMode = "FAST_COMPRESSED"
	ModePrivateCompressed ExecutionMode = "PRIVATE_COMPRESSED"
)

// ModeInfo carries the fixed metadata for an execution mode. Latency is an
// estimate; cost is a multiplier relative to ModeStandard (1.0).
type ModeInfo struct {
	Mode            ExecutionMode
	EstLatencyMs    uint32
	CostMultiplier  float64
	UsesER          bool
	UsesCompression bool
	IsPrivate       bool
}

// IsHybrid reports whether the mode combines ER execution with compression.
func (m ModeInfo) IsHybrid() bool {
	return m.UsesER && m.UsesCompression
}

var modeTable = map[ExecutionMode]ModeInfo{
	ModeStandard:          {Mode: ModeStandard, EstLatencyMs: 400, CostMultiplier: 1.0},
	ModeFast:              {Mode: ModeFast, EstLatencyMs: 50, CostMultiplier: 1.0, UsesER: true},
	ModePrivate:           {Mode: ModePrivate, EstLatencyMs: 150, CostMultiplier: 1.2, UsesER: true, IsPrivate: true},
	ModeCompressed:        {Mode: ModeCompressed, EstLatencyMs: 400, CostMultiplier: 0.01, UsesCompression: true},
	ModeFastCompressed:    {Mode: ModeFastCompressed, EstLatencyMs: 50, CostMultiplier: 0.004, UsesER: true, UsesCompression: true},
	ModePrivateCompressed: {Mode: ModePrivateCompressed, EstLatencyMs: 150, CostMultiplier: 0.006, UsesER: true, UsesCompression: true, IsPrivate: true},
}

// Info returns the fixed metadata for a mode. Unknown modes report
// ModeStandard metadata.
func (m ExecutionMode) Info() ModeInfo {
	if info, ok := modeTable[m]; ok {
		return info
	}
	return modeTable[ModeStandard]
}

// AllModes returns every execution mode in declaration order.
func AllModes() []ExecutionMode {
	return []ExecutionMode{
		ModeStandard,
		ModeFast,
		ModePrivate,
		ModeCompressed,
		ModeFastCompressed,
		ModePrivateCompressed,
	}
}
