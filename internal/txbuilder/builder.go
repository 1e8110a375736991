// Package txbuilder assembles and signs Solana transactions. Keys never
// enter this package: signing happens through a caller-supplied SignFunc,
// typically backed by a wallet or remote signer.
package txbuilder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"obscura-core/internal/config"
	"obscura-core/internal/derive"
	"obscura-core/internal/rpc"
)

var (
	// ErrMissingBlockhash means neither endpoint produced a recent
	// blockhash.
	ErrMissingBlockhash = errors.New("no recent blockhash available")

	// ErrSigningRejected means the SignFunc declined to sign.
	ErrSigningRejected = errors.New("signing rejected")
)

// systemTransferTag is the system-program instruction index for Transfer.
const systemTransferTag uint32 = 2

// AccountMeta is the account information required for building
// transactions.
type AccountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

// Instruction is one transaction instruction: target program, ordered
// account list, opaque data.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// SignFunc signs a serialized transaction message and returns the 64-byte
// ed25519 signature.
type SignFunc func(message []byte) ([]byte, error)

// BuildTransfer constructs a system-program lamport transfer from one
// account to another. The sender must sign the resulting transaction.
func BuildTransfer(from, to string, lamports uint64) (Instruction, error) {
	if _, err := derive.DecodeAddress(from); err != nil {
		return Instruction{}, fmt.Errorf("sender: %w", err)
	}
	if _, err := derive.DecodeAddress(to); err != nil {
		return Instruction{}, fmt.Errorf("recipient: %w", err)
	}

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferTag)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: config.SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}, nil
}

// BuildCreateVault constructs the instruction that initializes a vault
// account at the PDA derived from the vault id. The owner signs and funds
// the account.
func BuildCreateVault(programID, owner string, vaultID uint64) (Instruction, error) {
	if _, err := derive.DecodeAddress(owner); err != nil {
		return Instruction{}, fmt.Errorf("owner: %w", err)
	}
	vault, err := derive.VaultPDA(vaultID, programID)
	if err != nil {
		return Instruction{}, err
	}

	var args [8]byte
	binary.LittleEndian.PutUint64(args[:], vaultID)

	return NewInstruction(programID, "create_vault", args[:],
		AccountMeta{Pubkey: vault, IsWritable: true},
		AccountMeta{Pubkey: owner, IsSigner: true, IsWritable: true},
		AccountMeta{Pubkey: config.SystemProgramID},
	), nil
}

// BuildDeposit constructs the instruction that moves lamports from the
// depositor into the vault PDA.
func BuildDeposit(programID, depositor string, vaultID, lamports uint64) (Instruction, error) {
	if _, err := derive.DecodeAddress(depositor); err != nil {
		return Instruction{}, fmt.Errorf("depositor: %w", err)
	}
	vault, err := derive.VaultPDA(vaultID, programID)
	if err != nil {
		return Instruction{}, err
	}

	var args [8]byte
	binary.LittleEndian.PutUint64(args[:], lamports)

	return NewInstruction(programID, "deposit", args[:],
		AccountMeta{Pubkey: vault, IsWritable: true},
		AccountMeta{Pubkey: depositor, IsSigner: true, IsWritable: true},
		AccountMeta{Pubkey: config.SystemProgramID},
	), nil
}

// BuildWithdraw constructs the instruction that pays lamports out of the
// vault PDA to its owner. The on-chain program rejects withdrawals while
// the vault is delegated.
func BuildWithdraw(programID, owner string, vaultID, lamports uint64) (Instruction, error) {
	if _, err := derive.DecodeAddress(owner); err != nil {
		return Instruction{}, fmt.Errorf("owner: %w", err)
	}
	vault, err := derive.VaultPDA(vaultID, programID)
	if err != nil {
		return Instruction{}, err
	}

	var args [8]byte
	binary.LittleEndian.PutUint64(args[:], lamports)

	return NewInstruction(programID, "withdraw", args[:],
		AccountMeta{Pubkey: vault, IsWritable: true},
		AccountMeta{Pubkey: owner, IsSigner: true, IsWritable: true},
		AccountMeta{Pubkey: config.SystemProgramID},
	), nil
}

// BuildCreatePermission constructs the access-control instruction that
// whitelists permitted to read the state of a TEE-delegated vault. The
// vault owner signs and pays for the permission account.
func BuildCreatePermission(vault, owner, permitted string) (Instruction, error) {
	if _, err := derive.DecodeAddress(vault); err != nil {
		return Instruction{}, fmt.Errorf("vault: %w", err)
	}
	if _, err := derive.DecodeAddress(owner); err != nil {
		return Instruction{}, fmt.Errorf("owner: %w", err)
	}
	permittedBytes, err := derive.DecodeAddress(permitted)
	if err != nil {
		return Instruction{}, fmt.Errorf("permitted: %w", err)
	}

	permissionAccount, err := derive.PermissionPDA(vault, permitted, config.AccessControlProgramID)
	if err != nil {
		return Instruction{}, err
	}

	return NewInstruction(config.AccessControlProgramID, "create_permission", permittedBytes,
		AccountMeta{Pubkey: owner, IsSigner: true, IsWritable: true},
		AccountMeta{Pubkey: vault, IsWritable: true},
		AccountMeta{Pubkey: permissionAccount, IsWritable: true},
		AccountMeta{Pubkey: config.SystemProgramID},
	), nil
}

// NewInstruction builds an instruction with an 8-byte method discriminator
// prefix, the convention used by the on-chain programs this module talks
// to.
func NewInstruction(programID, method string, args []byte, accounts ...AccountMeta) Instruction {
	disc := derive.Discriminator(method)
	data := make([]byte, 0, len(disc)+len(args))
	data = append(data, disc[:]...)
	data = append(data, args...)
	return Instruction{
		ProgramID: programID,
		Accounts:  accounts,
		Data:      data,
	}
}

// Builder serializes instructions into signed transactions. The primary
// client supplies the recent blockhash; the fallback covers a primary
// outage with a single retry.
type Builder struct {
	primary  *rpc.Client
	fallback *rpc.Client
}

// NewBuilder creates a Builder. fallback may be nil.
func NewBuilder(primary, fallback *rpc.Client) *Builder {
	return &Builder{primary: primary, fallback: fallback}
}

// RecentBlockhash fetches a blockhash from the primary endpoint, retrying
// once against the fallback before giving up with ErrMissingBlockhash.
func (b *Builder) RecentBlockhash(ctx context.Context) (string, error) {
	// An endpoint can answer with a null result; treat that like a
	// transport failure.
	bh, err := b.primary.GetLatestBlockhash(ctx)
	if err == nil && bh != nil {
		return bh.Blockhash, nil
	}
	if b.fallback != nil {
		if bh, ferr := b.fallback.GetLatestBlockhash(ctx); ferr == nil && bh != nil {
			return bh.Blockhash, nil
		}
	}
	if err == nil {
		err = errors.New("empty blockhash result")
	}
	return "", fmt.Errorf("%w: %v", ErrMissingBlockhash, err)
}

// Build serializes the instructions into a legacy transaction message,
// signs it with sign, and returns the base64-encoded wire transaction.
// feePayer is always the first signer.
func (b *Builder) Build(ctx context.Context, feePayer string, instructions []Instruction, sign SignFunc) (string, error) {
	blockhash, err := b.RecentBlockhash(ctx)
	if err != nil {
		return "", err
	}
	return BuildWithBlockhash(feePayer, instructions, blockhash, sign)
}

// BuildWithBlockhash is Build with a caller-provided blockhash, for
// offline assembly and tests.
func BuildWithBlockhash(feePayer string, instructions []Instruction, blockhash string, sign SignFunc) (string, error) {
	msg, numSigners, err := compileMessage(feePayer, instructions, blockhash)
	if err != nil {
		return "", fmt.Errorf("compile message: %w", err)
	}

	sig, err := sign(msg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningRejected, err)
	}
	if len(sig) != 64 {
		return "", fmt.Errorf("%w: signature must be 64 bytes, got %d", ErrSigningRejected, len(sig))
	}

	// Wire format: compact signature count, signatures, message. Only the
	// fee payer signature is produced here; co-signer slots stay zeroed.
	var tx bytes.Buffer
	tx.Write(encodeCompactU16(numSigners))
	tx.Write(sig)
	for i := 1; i < numSigners; i++ {
		tx.Write(make([]byte, 64))
	}
	tx.Write(msg)

	return base64.StdEncoding.EncodeToString(tx.Bytes()), nil
}

// compiledKey tracks the merged signer/writable flags of one account
// across all instructions.
type compiledKey struct {
	pubkey   string
	signer   bool
	writable bool
}

// compileMessage produces a legacy Solana message: header, account keys,
// blockhash, compiled instructions. Returns the message bytes and the
// number of required signers.
func compileMessage(feePayer string, instructions []Instruction, blockhash string) ([]byte, int, error) {
	if feePayer == "" {
		return nil, 0, errors.New("fee payer required")
	}
	if len(instructions) == 0 {
		return nil, 0, errors.New("no instructions")
	}

	// Merge account flags. The fee payer is forced first, signer and
	// writable.
	index := map[string]*compiledKey{}
	order := []*compiledKey{}
	add := func(pubkey string, signer, writable bool) *compiledKey {
		if k, ok := index[pubkey]; ok {
			k.signer = k.signer || signer
			k.writable = k.writable || writable
			return k
		}
		k := &compiledKey{pubkey: pubkey, signer: signer, writable: writable}
		index[pubkey] = k
		order = append(order, k)
		return k
	}

	add(feePayer, true, true)
	for _, ins := range instructions {
		for _, acc := range ins.Accounts {
			add(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		add(ins.ProgramID, false, false)
	}

	// Layout order: writable signers, readonly signers, writable
	// non-signers, readonly non-signers. The fee payer already sorts
	// first within the first group.
	var keys []*compiledKey
	for _, pick := range []func(*compiledKey) bool{
		func(k *compiledKey) bool { return k.signer && k.writable },
		func(k *compiledKey) bool { return k.signer && !k.writable },
		func(k *compiledKey) bool { return !k.signer && k.writable },
		func(k *compiledKey) bool { return !k.signer && !k.writable },
	} {
		for _, k := range order {
			if pick(k) {
				keys = append(keys, k)
			}
		}
	}

	position := map[string]uint8{}
	var numSigners, numReadonlySigned, numReadonlyUnsigned int
	for i, k := range keys {
		position[k.pubkey] = uint8(i)
		if k.signer {
			numSigners++
			if !k.writable {
				numReadonlySigned++
			}
		} else if !k.writable {
			numReadonlyUnsigned++
		}
	}

	blockhashBytes, err := derive.DecodeAddress(blockhash)
	if err != nil {
		return nil, 0, fmt.Errorf("blockhash: %w", err)
	}

	var msg bytes.Buffer
	msg.WriteByte(uint8(numSigners))
	msg.WriteByte(uint8(numReadonlySigned))
	msg.WriteByte(uint8(numReadonlyUnsigned))

	msg.Write(encodeCompactU16(len(keys)))
	for _, k := range keys {
		raw, err := derive.DecodeAddress(k.pubkey)
		if err != nil {
			return nil, 0, fmt.Errorf("account %s: %w", k.pubkey, err)
		}
		msg.Write(raw)
	}

	msg.Write(blockhashBytes)

	msg.Write(encodeCompactU16(len(instructions)))
	for _, ins := range instructions {
		msg.WriteByte(position[ins.ProgramID])
		msg.Write(encodeCompactU16(len(ins.Accounts)))
		for _, acc := range ins.Accounts {
			msg.WriteByte(position[acc.Pubkey])
		}
		msg.Write(encodeCompactU16(len(ins.Data)))
		msg.Write(ins.Data)
	}

	return msg.Bytes(), numSigners, nil
}

// encodeCompactU16 encodes n in the compact-u16 varint used by the wire
// format.
func encodeCompactU16(n int) []byte {
	var out []byte
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
