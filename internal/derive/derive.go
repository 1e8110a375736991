// Package derive implements deterministic Solana address and instruction
// discriminator derivation. All functions are pure and perform no I/O.
package derive

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned when an input address is not a valid
// base58-encoded 32-byte public key.
var ErrInvalidAddress = errors.New("invalid address")

// ErrNoBumpFound is returned when no bump seed yields an off-curve point.
// Practically unreachable for real seeds.
var ErrNoBumpFound = errors.New("no valid bump seed found")

// pdaMarker terminates the PDA preimage, per the Solana derivation algorithm.
const pdaMarker = "ProgramDerivedAddress"

// DecodeAddress decodes a base58 address and validates its length.
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrInvalidAddress, addr, len(raw))
	}
	return raw, nil
}

// PDA derives a Program Derived Address for the given seeds and program id.
// It searches bump seeds 255 down to 1 for the first point off the ed25519
// curve, matching the canonical on-chain derivation bit for bit.
// Returns the base58 address and the bump that produced it.
func PDA(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := uint8(255); bump > 0; bump-- {
		data := make([]byte, 0, 128)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, program...)
		data = append(data, []byte(pdaMarker)...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}

	return "", 0, ErrNoBumpFound
}

// isOnCurve reports whether a 32-byte point decodes as a valid ed25519
// curve point. PDAs must be off-curve so no private key can exist for them.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// Discriminator computes the 8-byte Anchor instruction discriminator:
// the first 8 bytes of SHA-256("global:" + name).
func Discriminator(name string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + name))
	var disc [8]byte
	copy(disc[:], hash[:8])
	return disc
}

// DelegationRecordPDA derives the delegation-record address for an account
// under the delegation program. Seeds: ["delegation", account].
func DelegationRecordPDA(account, delegationProgramID string) (string, error) {
	accountBytes, err := DecodeAddress(account)
	if err != nil {
		return "", err
	}
	addr, _, err := PDA([][]byte{[]byte("delegation"), accountBytes}, delegationProgramID)
	return addr, err
}

// VrfAccountPDA derives the VRF account for a requester.
// Seeds: ["vrf", requester].
func VrfAccountPDA(requester, programID string) (string, error) {
	requesterBytes, err := DecodeAddress(requester)
	if err != nil {
		return "", err
	}
	addr, _, err := PDA([][]byte{[]byte("vrf"), requesterBytes}, programID)
	return addr, err
}

// VaultPDA derives a vault address from its numeric id.
// Seeds: ["obscura_vault", vaultID as little-endian u64].
func VaultPDA(vaultID uint64, programID string) (string, error) {
	var idBytes [8]byte
	binary.LittleEndian.PutUint64(idBytes[:], vaultID)
	addr, _, err := PDA([][]byte{[]byte("obscura_vault"), idBytes[:]}, programID)
	return addr, err
}

// PermissionPDA derives the access-control permission entry that grants
// `permitted` read access to a TEE-delegated vault.
// Seeds: ["obscura_permission", vault, permitted].
func PermissionPDA(vault, permitted, programID string) (string, error) {
	vaultBytes, err := DecodeAddress(vault)
	if err != nil {
		return "", err
	}
	permittedBytes, err := DecodeAddress(permitted)
	if err != nil {
		return "", err
	}
	addr, _, err := PDA([][]byte{[]byte("obscura_permission"), vaultBytes, permittedBytes}, programID)
	return addr, err
}
