package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Limits enforced by the runtime for program-derived addresses.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrMaxSeedLength is returned when a seed exceeds MaxSeedLength bytes.
	ErrMaxSeedLength = errors.New("max seed length exceeded")

	// ErrInvalidSeeds is returned when a seed set hashes onto the ed25519 curve.
	ErrInvalidSeeds = errors.New("provided seeds do not result in a valid address")

	// ErrNoViableBump is returned when no bump in [1, 255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress hashes seeds with the program ID.
// Formula: SHA256(seed_0 || ... || seed_n || programID || "ProgramDerivedAddress").
// The result must lie off the ed25519 curve so that no private key exists for it.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return PublicKey{}, fmt.Errorf("%w: %d seeds", ErrMaxSeedLength, len(seeds))
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return PublicKey{}, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk[:]) {
		return PublicKey{}, ErrInvalidSeeds
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down to 1 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return PublicKey{}, 0, fmt.Errorf("%w: %d seeds", ErrMaxSeedLength, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := byte(255); bump > 0; bump-- {
		withBump[len(seeds)] = []byte{bump}
		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, bump, nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return PublicKey{}, 0, err
		}
	}

	return PublicKey{}, 0, ErrNoViableBump
}

// FindAssociatedTokenAddress derives the associated token account of owner for mint.
// Seeds: [owner, token_program_id, mint] under the associated token program.
func FindAssociatedTokenAddress(owner, mint PublicKey) (PublicKey, uint8, error) {
	tokenProgram := MustPublicKey(TokenProgramID)
	ataProgram := MustPublicKey(AssociatedTokenProgramID)

	return FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, ataProgram)
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
