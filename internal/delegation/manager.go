// Package delegation owns the per-account delegation lifecycle: delegating
// base-layer accounts into an ephemeral rollup, committing rollup state
// back, and undelegating. One Manager instance owns the tracked state for
// its accounts; callers must not issue concurrent lifecycle requests
// against the same account.
package delegation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"obscura-core/internal/config"
	"obscura-core/internal/derive"
	"obscura-core/internal/domain"
	"obscura-core/internal/observability"
	"obscura-core/internal/router"
	"obscura-core/internal/storage"
)

var (
	// ErrNoValidatorAvailable means validator selection produced no
	// candidate.
	ErrNoValidatorAvailable = errors.New("no validator available")

	// ErrEmptyAccountSet means a batch operation was called with no
	// accounts.
	ErrEmptyAccountSet = errors.New("empty account set")
)

// DefaultCommitFrequencyMs is the commit cadence applied when the caller
// does not choose one.
const DefaultCommitFrequencyMs uint64 = 30000

// delegationRecordMinLen is the smallest decodable record: 8-byte
// discriminator plus the 32-byte validator key.
const delegationRecordMinLen = 40

// DelegateOpts tunes a delegate request. The zero value selects the
// lowest-latency validator and the default commit frequency.
type DelegateOpts struct {
	// Validator pins the target validator. Empty selects the
	// lowest-latency candidate.
	Validator string

	// CommitFrequencyMs overrides the commit cadence. Zero applies
	// DefaultCommitFrequencyMs.
	CommitFrequencyMs uint64

	// UseTEE routes the delegation to the TEE validator for private
	// execution.
	UseTEE bool
}

// Manager tracks delegation state per account and drives lifecycle
// operations through the execution router.
type Manager struct {
	cfg    config.Config
	router *router.Router

	mu      sync.Mutex
	tracked map[string]*domain.DelegationStatus

	logger  *log.Logger
	metrics *observability.Metrics
	events  storage.DelegationEventStore
}

// Option configures Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithEventStore attaches the audit log. Writes are best-effort and never
// fail a lifecycle operation.
func WithEventStore(s storage.DelegationEventStore) Option {
	return func(m *Manager) {
		m.events = s
	}
}

// NewManager creates a Manager bound to one router instance.
func NewManager(cfg config.Config, r *router.Router, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		router:  r,
		tracked: make(map[string]*domain.DelegationStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(log.Writer(), "[delegation] ", log.LstdFlags)
	}
	return m
}

// Status resolves the delegation state of each account from the base
// layer. A query failure on one account degrades that account to
// NotDelegated without affecting the others.
func (m *Manager) Status(ctx context.Context, accounts []string) []*domain.DelegationStatus {
	out := make([]*domain.DelegationStatus, len(accounts))
	for i, account := range accounts {
		out[i] = m.statusOne(ctx, account)
	}
	return out
}

func (m *Manager) statusOne(ctx context.Context, account string) *domain.DelegationStatus {
	status := &domain.DelegationStatus{
		Account: account,
		State:   domain.StateNotDelegated,
	}

	pda, err := derive.DelegationRecordPDA(account, m.cfg.DelegationProgramID)
	if err != nil {
		m.logger.Printf("status %s: derive record pda: %v", account, err)
		return status
	}

	info, err := m.router.Base().GetAccountInfo(ctx, pda)
	if err != nil {
		m.logger.Printf("status %s: query record: %v", account, err)
		return status
	}
	if info == nil || len(info.Data) < delegationRecordMinLen {
		return status
	}

	validator := base58.Encode(info.Data[8:40])
	status.State = domain.StateDelegated
	status.Validator = &validator

	// Enrich with locally tracked metadata when this manager performed
	// the delegation.
	m.mu.Lock()
	if local, ok := m.tracked[account]; ok {
		status.ValidatorRegion = local.ValidatorRegion
		status.DelegatedAt = local.DelegatedAt
		status.CommitFrequencyMs = local.CommitFrequencyMs
		status.LastCommitSlot = local.LastCommitSlot
		status.EstimatedLatencyMs = local.EstimatedLatencyMs
		// The in-flight transient state wins over the on-chain view.
		if local.State == domain.StatePendingCommit || local.State == domain.StatePendingUndelegation {
			status.State = local.State
		}
	}
	m.mu.Unlock()

	return status
}

// Tracked returns this manager's local view of an account, or nil when the
// account was never delegated through it.
func (m *Manager) Tracked(account string) *domain.DelegationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.tracked[account]; ok {
		out := *s
		return &out
	}
	return nil
}

// Delegate moves an account into an ephemeral rollup. With no validator in
// opts, the lowest-latency candidate is selected; opts.UseTEE pins the TEE
// validator instead.
func (m *Manager) Delegate(ctx context.Context, account, authority string, opts DelegateOpts) (*domain.TransactionResult, error) {
	if _, err := derive.DecodeAddress(account); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if _, err := derive.DecodeAddress(authority); err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}

	commitFrequency := opts.CommitFrequencyMs
	if commitFrequency == 0 {
		commitFrequency = DefaultCommitFrequencyMs
	}

	validator := opts.Validator
	var region *string
	var latency *uint32
	if validator == "" {
		selected := m.selectValidator(ctx, opts.UseTEE)
		if selected == nil {
			m.countError("delegate")
			return nil, ErrNoValidatorAvailable
		}
		validator = selected.Pubkey
		region = &selected.Region
		latency = &selected.LatencyMs
	}

	record, err := derive.DelegationRecordPDA(account, m.cfg.DelegationProgramID)
	if err != nil {
		m.countError("delegate")
		return nil, err
	}

	data, err := delegateInstructionData(validator, commitFrequency)
	if err != nil {
		m.countError("delegate")
		return nil, err
	}

	signature, err := m.router.Rollup().DelegateAccount(ctx, account, validator, record, data)
	if err != nil {
		m.countError("delegate")
		return nil, fmt.Errorf("delegate %s: %w", account, err)
	}

	result := m.confirm(ctx, signature)
	result.Validator = &validator

	if result.IsSuccess() {
		now := time.Now().UnixMilli()
		m.mu.Lock()
		m.tracked[account] = &domain.DelegationStatus{
			Account:            account,
			State:              domain.StateDelegated,
			Validator:          &validator,
			ValidatorRegion:    region,
			DelegatedAt:        &now,
			CommitFrequencyMs:  &commitFrequency,
			EstimatedLatencyMs: latency,
		}
		m.gaugeTracked()
		m.mu.Unlock()
		m.countOp("delegate")
		m.audit(ctx, domain.EventDelegate, account, &validator, result)
	} else {
		m.countError("delegate")
	}

	return result, nil
}

// Commit persists the accounts' rollup state back to the base layer
// without ending delegation. Fails with ErrEmptyAccountSet before any
// network call when accounts is empty.
func (m *Manager) Commit(ctx context.Context, accounts []string, authority string) (*domain.TransactionResult, error) {
	if len(accounts) == 0 {
		return nil, ErrEmptyAccountSet
	}
	if _, err := derive.DecodeAddress(authority); err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}

	m.setTransient(accounts, domain.StatePendingCommit)

	data := commitInstructionData()
	signature, err := m.router.Rollup().CommitAccounts(ctx, accounts, data)
	if err != nil {
		m.revertTransient(accounts, domain.StateDelegated)
		m.countError("commit")
		return nil, fmt.Errorf("commit: %w", err)
	}

	result := m.confirm(ctx, signature)
	if result.IsSuccess() {
		m.settleCommit(accounts, result.Slot)
		m.countOp("commit")
		for _, account := range accounts {
			m.audit(ctx, domain.EventCommit, account, nil, result)
		}
	} else {
		m.revertTransient(accounts, domain.StateDelegated)
		m.countError("commit")
	}

	return result, nil
}

// Undelegate commits the account's final rollup state and returns it to
// base-layer control. The on-chain call is the combined
// commit_and_undelegate instruction, so the last rollup state is persisted
// before control returns.
func (m *Manager) Undelegate(ctx context.Context, account, authority string) (*domain.TransactionResult, error) {
	if _, err := derive.DecodeAddress(account); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if _, err := derive.DecodeAddress(authority); err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}

	m.setTransient([]string{account}, domain.StatePendingUndelegation)

	data, err := undelegateInstructionData(account)
	if err != nil {
		m.revertTransient([]string{account}, domain.StateDelegated)
		m.countError("undelegate")
		return nil, err
	}

	signature, err := m.router.Rollup().UndelegateAccount(ctx, account, data)
	if err != nil {
		m.revertTransient([]string{account}, domain.StateDelegated)
		m.countError("undelegate")
		return nil, fmt.Errorf("undelegate %s: %w", account, err)
	}

	result := m.confirm(ctx, signature)
	if result.IsSuccess() {
		m.mu.Lock()
		delete(m.tracked, account)
		m.gaugeTracked()
		m.mu.Unlock()
		m.countOp("undelegate")
		m.audit(ctx, domain.EventUndelegate, account, nil, result)
	} else {
		m.revertTransient([]string{account}, domain.StateDelegated)
		m.countError("undelegate")
	}

	return result, nil
}

// CommitAndUndelegate commits the whole set once, then undelegates each
// account in order. The returned result belongs to the LAST undelegate;
// callers needing every signature use the primitives directly.
func (m *Manager) CommitAndUndelegate(ctx context.Context, accounts []string, authority string) (*domain.TransactionResult, error) {
	if len(accounts) == 0 {
		return nil, ErrEmptyAccountSet
	}

	if _, err := m.Commit(ctx, accounts, authority); err != nil {
		return nil, err
	}

	var last *domain.TransactionResult
	for _, account := range accounts {
		result, err := m.Undelegate(ctx, account, authority)
		if err != nil {
			return nil, err
		}
		last = result
	}
	return last, nil
}

// ExecutePrivateTransfer moves lamports between vault participants inside
// the TEE validator's private rollup namespace.
func (m *Manager) ExecutePrivateTransfer(ctx context.Context, vault, owner, recipient string, amountLamports uint64) (*domain.TransactionResult, error) {
	for _, in := range []struct{ name, addr string }{
		{"vault", vault},
		{"owner", owner},
		{"recipient", recipient},
	} {
		if _, err := derive.DecodeAddress(in.addr); err != nil {
			return nil, fmt.Errorf("%s: %w", in.name, err)
		}
	}

	signature, err := m.router.Rollup().ExecutePrivateTransfer(ctx, vault, owner, recipient, amountLamports)
	if err != nil {
		m.countError("private_transfer")
		return nil, fmt.Errorf("private transfer: %w", err)
	}

	result := m.confirm(ctx, signature)
	if result.IsSuccess() {
		// The on-chain instruction folds commit and undelegate into the
		// transfer, so the vault leaves the rollup with it.
		m.mu.Lock()
		delete(m.tracked, vault)
		m.gaugeTracked()
		m.mu.Unlock()
		m.countOp("private_transfer")
		m.audit(ctx, domain.EventUndelegate, vault, nil, result)
	} else {
		m.countError("private_transfer")
	}
	return result, nil
}

// selectValidator picks the delegation target. Private delegations pin the
// TEE validator when it is reachable.
func (m *Manager) selectValidator(ctx context.Context, useTEE bool) *domain.ValidatorInfo {
	if useTEE {
		for _, info := range m.router.AvailableValidators(ctx) {
			if info.TEE && info.Available {
				out := info
				return &out
			}
		}
		return nil
	}
	return m.router.SelectClosestValidator(ctx, true)
}

// confirm waits for the signature within the router's polling budget and
// assembles the transaction result. An unconfirmed submission carries an
// error so lifecycle state never advances on it.
func (m *Manager) confirm(ctx context.Context, signature string) *domain.TransactionResult {
	result := &domain.TransactionResult{
		Signature: signature,
		Timestamp: time.Now().UnixMilli(),
	}

	start := time.Now()
	tx, err := m.router.WaitForSignature(ctx, m.router.Rollup(), signature, router.DefaultPollInterval, router.DefaultMaxPolls)
	if err != nil {
		errStr := err.Error()
		result.Error = &errStr
		return result
	}
	if tx == nil {
		errStr := "unconfirmed within polling budget"
		result.Error = &errStr
		return result
	}

	confirmMs := uint32(time.Since(start).Milliseconds())
	result.ConfirmationTimeMs = &confirmMs
	slot := tx.Slot
	result.Slot = &slot
	result.RoutedToEphemeralRollup = confirmMs < router.ERConfirmationThresholdMs
	if tx.Err != nil {
		errStr := fmt.Sprintf("%v", tx.Err)
		result.Error = &errStr
	}
	return result
}

// setTransient moves tracked accounts into a transient state.
func (m *Manager) setTransient(accounts []string, state domain.DelegationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range accounts {
		if s, ok := m.tracked[account]; ok && s.State == domain.StateDelegated {
			s.State = state
		}
	}
}

// revertTransient returns accounts to the given state after a failed
// transient operation.
func (m *Manager) revertTransient(accounts []string, state domain.DelegationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range accounts {
		if s, ok := m.tracked[account]; ok {
			s.State = state
		}
	}
}

// settleCommit clears the transient commit state and records the slot.
func (m *Manager) settleCommit(accounts []string, slot *uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range accounts {
		if s, ok := m.tracked[account]; ok {
			s.State = domain.StateDelegated
			if slot != nil {
				v := *slot
				s.LastCommitSlot = &v
			}
		}
	}
}

// audit appends one lifecycle event to the audit log, best-effort.
func (m *Manager) audit(ctx context.Context, eventType, account string, validator *string, result *domain.TransactionResult) {
	if m.events == nil {
		return
	}
	e := &domain.DelegationEvent{
		EventID:    eventID(eventType, account, result.Signature),
		Account:    account,
		EventType:  eventType,
		Validator:  validator,
		Signature:  result.Signature,
		Slot:       result.Slot,
		OccurredAt: result.Timestamp,
	}
	if err := m.events.Insert(ctx, e); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		m.logger.Printf("audit %s %s: %v", eventType, account, err)
	}
}

// eventID derives a deterministic audit-log key, so a replayed insert hits
// the duplicate-key path instead of double-logging.
func eventID(eventType, account, signature string) string {
	h := sha256.Sum256([]byte(eventType + ":" + account + ":" + signature))
	return hex.EncodeToString(h[:16])
}

// gaugeTracked must be called with m.mu held.
func (m *Manager) gaugeTracked() {
	if m.metrics != nil {
		m.metrics.TrackedAccounts.Set(float64(len(m.tracked)))
	}
}

func (m *Manager) countOp(op string) {
	if m.metrics != nil {
		m.metrics.DelegationOps.WithLabelValues(op).Inc()
	}
}

func (m *Manager) countError(op string) {
	if m.metrics != nil {
		m.metrics.DelegationErrors.WithLabelValues(op).Inc()
	}
}

// delegateInstructionData encodes the delegate instruction: discriminator,
// validator key, commit frequency.
func delegateInstructionData(validator string, commitFrequencyMs uint64) (string, error) {
	validatorRaw, err := derive.DecodeAddress(validator)
	if err != nil {
		return "", fmt.Errorf("validator: %w", err)
	}
	disc := derive.Discriminator("delegate")
	data := make([]byte, 0, 8+32+8)
	data = append(data, disc[:]...)
	data = append(data, validatorRaw...)
	var freq [8]byte
	binary.LittleEndian.PutUint64(freq[:], commitFrequencyMs)
	data = append(data, freq[:]...)
	return base64.StdEncoding.EncodeToString(data), nil
}

// commitInstructionData encodes the commit instruction: discriminator
// only, the account list travels in the request params.
func commitInstructionData() string {
	disc := derive.Discriminator("commit")
	return base64.StdEncoding.EncodeToString(disc[:])
}

// undelegateInstructionData encodes the combined commit_and_undelegate
// instruction: discriminator plus the account key.
func undelegateInstructionData(account string) (string, error) {
	accountRaw, err := derive.DecodeAddress(account)
	if err != nil {
		return "", fmt.Errorf("account: %w", err)
	}
	disc := derive.Discriminator("commit_and_undelegate")
	data := make([]byte, 0, 8+32)
	data = append(data, disc[:]...)
	data = append(data, accountRaw...)
	return base64.StdEncoding.EncodeToString(data), nil
}
