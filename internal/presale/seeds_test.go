package presale

import (
	"errors"
	"strings"
	"testing"

	"solana-presale/internal/solana"
)

func TestDeriveAddresses(t *testing.T) {
	program := solana.MustPublicKey(DefaultProgramID)

	a, err := DeriveAddresses(program, "phnx")
	if err != nil {
		t.Fatalf("DeriveAddresses: %v", err)
	}
	b, err := DeriveAddresses(program, "phnx")
	if err != nil {
		t.Fatalf("DeriveAddresses: %v", err)
	}
	if a != b {
		t.Errorf("derivation not deterministic: %+v vs %+v", a, b)
	}
	if a.Sale == a.Vault {
		t.Error("sale and vault addresses must differ")
	}

	sale, err := solana.CreateProgramAddress([][]byte{[]byte(SaleSeed), []byte("phnx"), {a.SaleBump}}, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress: %v", err)
	}
	if sale != a.Sale {
		t.Errorf("sale bump does not reproduce address: %s vs %s", sale, a.Sale)
	}

	other, err := DeriveAddresses(program, "other")
	if err != nil {
		t.Fatalf("DeriveAddresses: %v", err)
	}
	if other.Sale == a.Sale || other.Vault == a.Vault {
		t.Error("different sale ids must derive different addresses")
	}
}

func TestDeriveAddresses_MaxLength(t *testing.T) {
	program := solana.MustPublicKey(DefaultProgramID)

	if _, err := DeriveAddresses(program, strings.Repeat("x", MaxSaleIDLength)); err != nil {
		t.Errorf("max length id rejected: %v", err)
	}
	_, err := DeriveAddresses(program, strings.Repeat("x", MaxSaleIDLength+1))
	if !errors.Is(err, ErrInvalidSaleID) {
		t.Errorf("expected ErrInvalidSaleID, got %v", err)
	}
}

func TestPurchaseRecordAddress(t *testing.T) {
	program := solana.MustPublicKey(DefaultProgramID)
	alice := testKey(10)
	bob := testKey(11)

	a1, _, err := PurchaseRecordAddress(program, "phnx", alice)
	if err != nil {
		t.Fatalf("PurchaseRecordAddress: %v", err)
	}
	a2, _, _ := PurchaseRecordAddress(program, "phnx", alice)
	b, _, _ := PurchaseRecordAddress(program, "phnx", bob)
	other, _, _ := PurchaseRecordAddress(program, "other", alice)

	if a1 != a2 {
		t.Error("record address not deterministic")
	}
	if a1 == b {
		t.Error("purchasers must have distinct records")
	}
	if a1 == other {
		t.Error("sales must have distinct records for the same purchaser")
	}
}

func TestRequireSigner(t *testing.T) {
	authority := testKey(1)

	if err := requireSigner(authority, authority, roleAuthority); err != nil {
		t.Errorf("matching caller rejected: %v", err)
	}
	if err := requireSigner(testKey(2), authority, roleAuthority); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if err := requireSigner(solana.PublicKey{}, solana.PublicKey{}, roleAuthority); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("zero caller must be rejected, got %v", err)
	}
}
