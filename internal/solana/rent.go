package solana

// Rent parameters of the default cluster configuration.
const (
	AccountStorageOverhead  = 128
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2
	LamportsPerSOL          = 1_000_000_000
)

// MinimumBalanceForRentExemption returns the lamports an account holding
// dataLen bytes must keep to stay rent-exempt.
// A zero-data system account needs 890880 lamports.
func MinimumBalanceForRentExemption(dataLen uint64) uint64 {
	return (AccountStorageOverhead + dataLen) * LamportsPerByteYear * ExemptionThresholdYears
}
