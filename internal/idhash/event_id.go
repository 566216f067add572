package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(kind|sale_address|actor|lamports|tokens|sequence)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	kind domain.EventKind,
	saleAddress solana.PublicKey,
	actor solana.PublicKey,
	lamports uint64,
	tokens uint64,
	sequence int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d|%d",
		string(kind),
		saleAddress.String(),
		actor.String(),
		lamports,
		tokens,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeEventIDFor fills in the event_id of e from its own fields.
func ComputeEventIDFor(e *domain.LedgerEvent) string {
	return ComputeEventID(e.Kind, e.SaleAddress, e.Actor, e.Lamports, e.Tokens, e.Sequence)
}
