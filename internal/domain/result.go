package domain

// TransactionResult is the outcome of a submitted transaction.
type TransactionResult struct {
	Signature string `json:"signature"`
	// RoutedToEphemeralRollup is a heuristic classification for
	// observability only: true iff the router endpoint was used and
	// confirmation came back under the fast-path threshold. The RPC
	// provider is the source of truth for where a transaction executed.
	RoutedToEphemeralRollup bool    `json:"routedToEphemeralRollup"`
	Validator               *string `json:"validator,omitempty"`
	Slot                    *uint64 `json:"slot,omitempty"`
	Timestamp               int64   `json:"timestamp"` // Unix ms
	ConfirmationTimeMs      *uint32 `json:"confirmationTimeMs,omitempty"`
	Error                   *string `json:"error,omitempty"`
}

// IsSuccess reports whether the transaction completed without error.
func (r *TransactionResult) IsSuccess() bool {
	return r.Error == nil
}

// VrfResult is the outcome of a verifiable-randomness request.
type VrfResult struct {
	Randomness []byte  `json:"randomness"`
	Proof      []byte  `json:"proof"`
	Slot       uint64  `json:"slot"`
	Verified   bool    `json:"verified"`
	VrfAccount *string `json:"vrfAccount,omitempty"`
}
