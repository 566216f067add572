package presale

import (
	"fmt"

	"solana-presale/internal/solana"
)

// Seed namespaces. The derivation scheme is the wire contract: any client
// reproducing it locates the same records.
const (
	SaleSeed     = "sale"
	VaultSeed    = "vault"
	PurchaseSeed = "purchase"
)

// MaxSaleIDLength is the longest sale identifier usable as a derivation seed.
const MaxSaleIDLength = solana.MaxSeedLength

// Addresses are the derived addresses of one sale.
type Addresses struct {
	SaleID    string
	Sale      solana.PublicKey
	SaleBump  uint8
	Vault     solana.PublicKey
	VaultBump uint8
}

// ValidateSaleID checks that saleID fits in a derivation seed.
// The empty identifier selects the singleton sale.
func ValidateSaleID(saleID string) error {
	if len(saleID) > MaxSaleIDLength {
		return newError(KindInvalidSaleID, "sale id is %d bytes, max %d", len(saleID), MaxSaleIDLength)
	}
	return nil
}

// DeriveAddresses computes the sale and vault addresses for saleID under programID.
func DeriveAddresses(programID solana.PublicKey, saleID string) (Addresses, error) {
	if err := ValidateSaleID(saleID); err != nil {
		return Addresses{}, err
	}

	sale, saleBump, err := solana.FindProgramAddress([][]byte{[]byte(SaleSeed), []byte(saleID)}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive sale address: %w", err)
	}
	vault, vaultBump, err := solana.FindProgramAddress([][]byte{[]byte(VaultSeed), []byte(saleID)}, programID)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive vault address: %w", err)
	}

	return Addresses{
		SaleID:    saleID,
		Sale:      sale,
		SaleBump:  saleBump,
		Vault:     vault,
		VaultBump: vaultBump,
	}, nil
}

// PurchaseRecordAddress computes the purchase record address of purchaser in saleID.
func PurchaseRecordAddress(programID solana.PublicKey, saleID string, purchaser solana.PublicKey) (solana.PublicKey, uint8, error) {
	if err := ValidateSaleID(saleID); err != nil {
		return solana.PublicKey{}, 0, err
	}

	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(PurchaseSeed), []byte(saleID), purchaser.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive purchase record address: %w", err)
	}
	return addr, bump, nil
}

// SaleTokenAddress computes the token account holding tokens to distribute:
// the associated token account of the sale address for mint.
func SaleTokenAddress(sale, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(sale, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive sale token account: %w", err)
	}
	return addr, nil
}
