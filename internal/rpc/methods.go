package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
)

// GetAccountInfo retrieves account info by public key.
// Returns nil if the account does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{"encoding": "base64"},
	}

	var result getAccountInfoResult
	if err := c.Call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, nil
	}

	info := &AccountInfo{
		Lamports:   result.Value.Lamports,
		Owner:      result.Value.Owner,
		Executable: result.Value.Executable,
		RentEpoch:  result.Value.RentEpoch,
	}

	if len(result.Value.Data) >= 1 {
		decoded, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = decoded
	}

	return info, nil
}

type getAccountInfoResult struct {
	Value *getAccountInfoValue `json:"value"`
}

type getAccountInfoValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// GetBalance retrieves the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, pubkey string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.Call(ctx, "getBalance", []interface{}{pubkey}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// GetLatestBlockhash retrieves a recent blockhash from this endpoint.
func (c *Client) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	var result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return nil, err
	}
	if result.Value.Blockhash == "" {
		return nil, nil
	}
	return &Blockhash{
		Blockhash:            result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
		Slot:                 result.Context.Slot,
	}, nil
}

// SendTransaction submits a signed, base64-encoded transaction.
// Returns the transaction signature.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	params := []interface{}{
		txBase64,
		map[string]interface{}{"encoding": "base64"},
	}
	var signature string
	if err := c.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// SimulateTransaction simulates a signed, base64-encoded transaction.
func (c *Client) SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error) {
	params := []interface{}{
		txBase64,
		map[string]interface{}{"encoding": "base64"},
	}
	var result struct {
		Value struct {
			Err           interface{} `json:"err"`
			Logs          []string    `json:"logs"`
			UnitsConsumed uint64      `json:"unitsConsumed"`
		} `json:"value"`
	}
	if err := c.Call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}
	return &SimulationResult{
		Err:           result.Value.Err,
		Logs:          result.Value.Logs,
		UnitsConsumed: result.Value.UnitsConsumed,
	}, nil
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *Client) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := make(map[string]interface{})
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address}
	if len(config) > 0 {
		params = append(params, config)
	}

	var result []struct {
		Signature string      `json:"signature"`
		Slot      uint64      `json:"slot"`
		BlockTime *int64      `json:"blockTime"`
		Err       interface{} `json:"err"`
	}
	if err := c.Call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}
	return sigs, nil
}

// GetTransaction retrieves a transaction by signature.
// Returns nil if the transaction is not found.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result struct {
		Slot      uint64 `json:"slot"`
		BlockTime *int64 `json:"blockTime"`
		Meta      *struct {
			Err         interface{} `json:"err"`
			LogMessages []string    `json:"logMessages"`
		} `json:"meta"`
	}
	if err := c.Call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}

	if result.Slot == 0 && result.BlockTime == nil {
		return nil, nil
	}

	tx := &Transaction{
		Slot:      result.Slot,
		Signature: signature,
	}
	if result.BlockTime != nil {
		tx.BlockTime = *result.BlockTime
	}
	if result.Meta != nil {
		tx.Err = result.Meta.Err
		tx.Logs = result.Meta.LogMessages
	}
	return tx, nil
}

// GetSlot retrieves the current slot.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.Call(ctx, "getSlot", nil, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetHealth checks node health. A healthy node answers "ok".
func (c *Client) GetHealth(ctx context.Context) error {
	var result string
	if err := c.Call(ctx, "getHealth", nil, &result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("unhealthy node: %q", result)
	}
	return nil
}

// GetVersion retrieves the node software version.
func (c *Client) GetVersion(ctx context.Context) (*Version, error) {
	var result Version
	if err := c.Call(ctx, "getVersion", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Router-specific methods. These are only served by the MagicBlock router
// endpoint, which auto-detects delegated accounts and forwards to the
// owning ER validator.

// DelegateAccount submits a delegate instruction payload through the
// router. record is the delegation-record PDA the delegation program
// writes for the account.
func (c *Client) DelegateAccount(ctx context.Context, account, validator, record, dataBase64 string) (string, error) {
	var signature string
	params := []interface{}{account, validator, record, dataBase64}
	if err := c.Call(ctx, "delegateAccount", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// CommitAccounts commits rollup-side state for the accounts back to the
// base layer without ending delegation.
func (c *Client) CommitAccounts(ctx context.Context, accounts []string, dataBase64 string) (string, error) {
	var signature string
	params := []interface{}{accounts, dataBase64}
	if err := c.Call(ctx, "commitAccounts", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// UndelegateAccount commits final rollup state and returns the account to
// base-layer control in one combined call.
func (c *Client) UndelegateAccount(ctx context.Context, account, dataBase64 string) (string, error) {
	var signature string
	params := []interface{}{account, dataBase64}
	if err := c.Call(ctx, "undelegateAccount", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// RequestVrf asks the router's VRF oracle for randomness.
func (c *Client) RequestVrf(ctx context.Context, vrfAccount, seedBase64 string) (*VrfResponse, error) {
	var result VrfResponse
	params := []interface{}{vrfAccount, seedBase64}
	if err := c.Call(ctx, "requestVrf", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifyVrf asks the router to verify a randomness/proof pair.
func (c *Client) VerifyVrf(ctx context.Context, vrfAccount, proofBase64, randomnessBase64 string) (bool, error) {
	var result bool
	params := []interface{}{vrfAccount, proofBase64, randomnessBase64}
	if err := c.Call(ctx, "verifyVrf", params, &result); err != nil {
		return false, err
	}
	return result, nil
}

// ExecutePrivateTransfer runs a transfer inside a TEE-delegated vault.
func (c *Client) ExecutePrivateTransfer(ctx context.Context, vault, owner, recipient string, amountLamports uint64) (string, error) {
	var signature string
	params := []interface{}{vault, owner, recipient, amountLamports}
	if err := c.Call(ctx, "executePrivateTransfer", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// VerifyTEEAttestation asks the router whether a transaction carries a
// valid TEE attestation.
func (c *Client) VerifyTEEAttestation(ctx context.Context, signature string) (bool, error) {
	var result bool
	if err := c.Call(ctx, "verifyTEEAttestation", []interface{}{signature}, &result); err != nil {
		return false, err
	}
	return result, nil
}
