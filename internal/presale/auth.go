package presale

import "solana-presale/internal/solana"

// Role names used in authorization failures.
const (
	roleAuthority = "authority"
	rolePurchaser = "purchaser"
)

// requireSigner checks that the authenticated caller is the identity expected
// for role. Comparison is constant time.
func requireSigner(caller, expected solana.PublicKey, role string) error {
	if caller.IsZero() || !caller.Equal(expected) {
		return newError(KindUnauthorized, "caller %s is not the %s", caller, role)
	}
	return nil
}

// requireExternal rejects the sale's own program accounts as a user identity.
// They have no private key, and a transfer from one to itself moves nothing.
func requireExternal(who solana.PublicKey, addrs Addresses, role string) error {
	if who.Equal(addrs.Sale) || who.Equal(addrs.Vault) {
		return newError(KindUnauthorized, "program account %s cannot act as the %s", who, role)
	}
	return nil
}

// requireTreasury checks that the withdrawal destination is the recorded treasury.
func requireTreasury(supplied, recorded solana.PublicKey) error {
	if !supplied.Equal(recorded) {
		return newError(KindInvalidTreasury, "treasury %s does not match recorded %s", supplied, recorded)
	}
	return nil
}
