package domain

import (
	"errors"
	"testing"
)

func TestParseSOL(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"0", 0},
		{"1", 1_000_000_000},
		{"0.5", 500_000_000},
		{"0.000000001", 1},
		{"12.345", 12_345_000_000},
		{"18446744073.709551615", ^uint64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSOL(tt.input)
			if err != nil {
				t.Fatalf("ParseSOL(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSOL(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseSOL_Invalid(t *testing.T) {
	inputs := []string{"", "abc", "-1", "0.0000000001", "18446744073.709551616"}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSOL(input)
			if !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("ParseSOL(%q) error = %v, want ErrInvalidAmount", input, err)
			}
		})
	}
}

func TestFormatSOL(t *testing.T) {
	tests := []struct {
		lamports uint64
		want     string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{500_000_000, "0.5"},
		{1_000_000_000, "1"},
		{2_750_000_000, "2.75"},
	}

	for _, tt := range tests {
		if got := FormatSOL(tt.lamports); got != tt.want {
			t.Errorf("FormatSOL(%d) = %q, want %q", tt.lamports, got, tt.want)
		}
	}
}

func TestPhaseAt(t *testing.T) {
	tests := []struct {
		now  int64
		want Phase
	}{
		{99, PhaseUpcoming},
		{100, PhaseActive},
		{199, PhaseActive},
		{200, PhaseEnded},
		{500, PhaseEnded},
	}

	for _, tt := range tests {
		if got := PhaseAt(100, 200, tt.now); got != tt.want {
			t.Errorf("PhaseAt(100, 200, %d) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestSale_ProgressBps(t *testing.T) {
	tests := []struct {
		name    string
		raised  uint64
		hardCap uint64
		want    uint64
	}{
		{"empty", 0, 100, 0},
		{"half", 50, 100, 5000},
		{"full", 100, 100, 10000},
		{"rounds down", 1, 3, 3333},
		{"large values", ^uint64(0) - 1, ^uint64(0), 9999},
		{"zero cap", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Sale{TotalRaised: tt.raised, HardCapLamports: tt.hardCap}
			if got := s.ProgressBps(); got != tt.want {
				t.Errorf("ProgressBps() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPurchaseRecord_TokensOwed(t *testing.T) {
	r := &PurchaseRecord{AmountSpent: 1_000_000_000}

	if got := r.TokensOwed(500_000_000); got != 2 {
		t.Errorf("TokensOwed(0.5 SOL) = %d, want 2", got)
	}
	if got := r.TokensOwed(300_000_000); got != 3 {
		t.Errorf("TokensOwed(0.3 SOL) = %d, want 3 (remainder forfeited)", got)
	}
	if got := r.TokensOwed(0); got != 0 {
		t.Errorf("TokensOwed(0) = %d, want 0", got)
	}
}

func TestVault_Withdrawable(t *testing.T) {
	v := &Vault{Lamports: 1_000_890_880, RentReserve: 890_880}
	if got := v.Withdrawable(); got != 1_000_000_000 {
		t.Errorf("Withdrawable() = %d, want 1000000000", got)
	}

	v = &Vault{Lamports: 100, RentReserve: 890_880}
	if got := v.Withdrawable(); got != 0 {
		t.Errorf("Withdrawable() below reserve = %d, want 0", got)
	}
}
