package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// maxTxAttempts bounds how often Update re-runs a transaction that lost a
// serialization race. The callback must only touch the ledger through tx.
const maxTxAttempts = 3

// Ledger is a PostgreSQL implementation of storage.Ledger.
// Update runs SERIALIZABLE; the sale row is locked FOR UPDATE when read.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new PostgreSQL ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Update runs fn in a serializable read-write transaction, retrying
// serialization failures.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = l.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, true, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
	}
	return fmt.Errorf("ledger transaction failed after %d attempts: %w", maxTxAttempts, err)
}

// View runs fn in a read-only snapshot transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return l.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, false, fn)
}

func (l *Ledger) run(ctx context.Context, opts pgx.TxOptions, writable bool, fn func(tx storage.Tx) error) (err error) {
	tx, err := l.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&ledgerTx{tx: tx, writable: writable}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// ledgerTx implements storage.Tx on a pgx transaction.
type ledgerTx struct {
	tx       pgx.Tx
	writable bool
}

// numeric renders a u64 for a NUMERIC(20,0) parameter.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// decoder accumulates the first error while converting text columns.
type decoder struct {
	err error
}

func (d *decoder) key(s string) solana.PublicKey {
	if d.err != nil {
		return solana.PublicKey{}
	}
	pk, err := solana.ParsePublicKey(s)
	if err != nil {
		d.err = err
	}
	return pk
}

func (d *decoder) amount(s string) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		d.err = fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v
}

const saleColumns = `
	address, sale_id, bump, authority, treasury, vault, token_mint, sale_token_account,
	price_lamports::text, soft_cap_lamports::text, hard_cap_lamports::text, total_raised::text,
	start_time, end_time, is_active`

// GetSale retrieves a sale, locking its row in read-write transactions.
func (t *ledgerTx) GetSale(ctx context.Context, address solana.PublicKey) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE address = $1`
	if t.writable {
		query += ` FOR UPDATE`
	}

	var (
		addr, authority, treasury, vault, mint, saleToken string
		price, softCap, hardCap, raised                   string
		bump                                              int16
		s                                                 domain.Sale
	)
	err := t.tx.QueryRow(ctx, query, address.String()).Scan(
		&addr, &s.SaleID, &bump, &authority, &treasury, &vault, &mint, &saleToken,
		&price, &softCap, &hardCap, &raised,
		&s.StartTime, &s.EndTime, &s.IsActive,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query sale: %w", err)
	}

	var d decoder
	s.Address = d.key(addr)
	s.Bump = uint8(bump)
	s.Authority = d.key(authority)
	s.Treasury = d.key(treasury)
	s.Vault = d.key(vault)
	s.TokenMint = d.key(mint)
	s.SaleTokenAccount = d.key(saleToken)
	s.PriceLamports = d.amount(price)
	s.SoftCapLamports = d.amount(softCap)
	s.HardCapLamports = d.amount(hardCap)
	s.TotalRaised = d.amount(raised)
	if d.err != nil {
		return nil, fmt.Errorf("decode sale: %w", d.err)
	}

	return &s, nil
}

// InsertSale creates a sale.
func (t *ledgerTx) InsertSale(ctx context.Context, s *domain.Sale) error {
	if s == nil {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO sales (
			address, sale_id, bump, authority, treasury, vault, token_mint, sale_token_account,
			price_lamports, soft_cap_lamports, hard_cap_lamports, total_raised,
			start_time, end_time, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::numeric, $10::numeric, $11::numeric, $12::numeric,
			$13, $14, $15
		)
	`,
		s.Address.String(), s.SaleID, int16(s.Bump), s.Authority.String(), s.Treasury.String(),
		s.Vault.String(), s.TokenMint.String(), s.SaleTokenAccount.String(),
		numeric(s.PriceLamports), numeric(s.SoftCapLamports), numeric(s.HardCapLamports), numeric(s.TotalRaised),
		s.StartTime, s.EndTime, s.IsActive,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isCheckViolationError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// UpdateSale overwrites the mutable sale fields.
func (t *ledgerTx) UpdateSale(ctx context.Context, s *domain.Sale) error {
	if s == nil {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE sales
		SET total_raised = $2::numeric,
		    is_active = $3,
		    updated_at = NOW()
		WHERE address = $1
	`, s.Address.String(), numeric(s.TotalRaised), s.IsActive)
	if err != nil {
		if isCheckViolationError(err) {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetVault retrieves a vault joined with its lamport balance.
func (t *ledgerTx) GetVault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	var (
		addr, reserve, lamports string
		bump                    int16
	)
	err := t.tx.QueryRow(ctx, `
		SELECT v.address, v.bump, v.rent_reserve::text, COALESCE(b.lamports, 0)::text
		FROM vaults v
		LEFT JOIN lamport_balances b ON b.address = v.address
		WHERE v.address = $1
	`, address.String()).Scan(&addr, &bump, &reserve, &lamports)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query vault: %w", err)
	}

	var d decoder
	v := &domain.Vault{
		Address:     d.key(addr),
		Bump:        uint8(bump),
		RentReserve: d.amount(reserve),
		Lamports:    d.amount(lamports),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode vault: %w", d.err)
	}
	return v, nil
}

// InsertVault creates a vault record.
func (t *ledgerTx) InsertVault(ctx context.Context, v *domain.Vault) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO vaults (address, bump, rent_reserve)
		VALUES ($1, $2, $3::numeric)
	`, v.Address.String(), int16(v.Bump), numeric(v.RentReserve))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert vault: %w", err)
	}
	return nil
}

// GetPurchaseRecord retrieves a purchase record.
func (t *ledgerTx) GetPurchaseRecord(ctx context.Context, address solana.PublicKey) (*domain.PurchaseRecord, error) {
	var (
		addr, sale, purchaser, spent string
		bump                         int16
		claimed                      bool
	)
	err := t.tx.QueryRow(ctx, `
		SELECT address, bump, sale_address, purchaser, amount_spent::text, claimed
		FROM purchase_records
		WHERE address = $1
	`, address.String()).Scan(&addr, &bump, &sale, &purchaser, &spent, &claimed)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query purchase record: %w", err)
	}

	var d decoder
	r := &domain.PurchaseRecord{
		Address:     d.key(addr),
		Bump:        uint8(bump),
		SaleAddress: d.key(sale),
		Purchaser:   d.key(purchaser),
		AmountSpent: d.amount(spent),
		Claimed:     claimed,
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode purchase record: %w", d.err)
	}
	return r, nil
}

// InsertPurchaseRecord creates a purchase record.
func (t *ledgerTx) InsertPurchaseRecord(ctx context.Context, r *domain.PurchaseRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_records (address, bump, sale_address, purchaser, amount_spent, claimed)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`, r.Address.String(), int16(r.Bump), r.SaleAddress.String(), r.Purchaser.String(), numeric(r.AmountSpent), r.Claimed)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert purchase record: %w", err)
	}
	return nil
}

// UpdatePurchaseRecord overwrites the mutable purchase record fields.
func (t *ledgerTx) UpdatePurchaseRecord(ctx context.Context, r *domain.PurchaseRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_records
		SET amount_spent = $2::numeric,
		    claimed = $3
		WHERE address = $1
	`, r.Address.String(), numeric(r.AmountSpent), r.Claimed)
	if err != nil {
		return fmt.Errorf("update purchase record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetTokenAccount retrieves a token account.
func (t *ledgerTx) GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	var addr, mint, owner, amount string
	err := t.tx.QueryRow(ctx, `
		SELECT address, mint, owner, amount::text
		FROM token_accounts
		WHERE address = $1
	`, address.String()).Scan(&addr, &mint, &owner, &amount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query token account: %w", err)
	}

	var d decoder
	a := &domain.TokenAccount{
		Address: d.key(addr),
		Mint:    d.key(mint),
		Owner:   d.key(owner),
		Amount:  d.amount(amount),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode token account: %w", d.err)
	}
	return a, nil
}

// InsertTokenAccount creates a token account.
func (t *ledgerTx) InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO token_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4::numeric)
	`, a.Address.String(), a.Mint.String(), a.Owner.String(), numeric(a.Amount))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token account: %w", err)
	}
	return nil
}

// UpdateTokenAccount overwrites a token account balance.
func (t *ledgerTx) UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE token_accounts
		SET amount = $2::numeric
		WHERE address = $1
	`, a.Address.String(), numeric(a.Amount))
	if err != nil {
		return fmt.Errorf("update token account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetLamports returns the balance of address, 0 if never funded.
func (t *ledgerTx) GetLamports(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var lamports string
	err := t.tx.QueryRow(ctx, `
		SELECT lamports::text FROM lamport_balances WHERE address = $1
	`, address.String()).Scan(&lamports)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("query lamports: %w", err)
	}

	v, err := strconv.ParseUint(lamports, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse lamports %q: %w", lamports, err)
	}
	return v, nil
}

// SetLamports overwrites the balance of address.
func (t *ledgerTx) SetLamports(ctx context.Context, address solana.PublicKey, lamports uint64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lamport_balances (address, lamports)
		VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE
		SET lamports = EXCLUDED.lamports
	`, address.String(), numeric(lamports))
	if err != nil {
		return fmt.Errorf("set lamports: %w", err)
	}
	return nil
}

// NextSequence returns the sequence the next appended event must carry.
func (t *ledgerTx) NextSequence(ctx context.Context) (int64, error) {
	var next int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM ledger_events
	`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("query next sequence: %w", err)
	}
	return next, nil
}

// AppendEvent appends a ledger event.
func (t *ledgerTx) AppendEvent(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_events (
			sequence, event_id, kind, sale_id, sale_address, actor,
			lamports, tokens, total_raised, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9::numeric, $10
		)
	`,
		e.Sequence, e.EventID, string(e.Kind), e.SaleID, e.SaleAddress.String(), e.Actor.String(),
		numeric(e.Lamports), numeric(e.Tokens), numeric(e.TotalRaised), e.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

const eventColumns = `
	sequence, event_id, kind, sale_id, sale_address, actor,
	lamports::text, tokens::text, total_raised::text, timestamp`

// ListEventsBySale retrieves events of a sale, ordered by sequence ASC.
func (t *ledgerTx) ListEventsBySale(ctx context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE sale_address = $1
		ORDER BY sequence ASC
	`, saleAddress.String())
	if err != nil {
		return nil, fmt.Errorf("query events by sale: %w", err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// ListEventsAfter retrieves up to limit events with sequence > after.
func (t *ledgerTx) ListEventsAfter(ctx context.Context, after int64, limit int) ([]*domain.LedgerEvent, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	rows, err := t.tx.Query(ctx, `
		SELECT `+eventColumns+`
		FROM ledger_events
		WHERE sequence > $1
		ORDER BY sequence ASC
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events after %d: %w", after, err)
	}
	defer rows.Close()

	return scanLedgerEvents(rows)
}

// scanLedgerEvents scans rows selected with eventColumns.
func scanLedgerEvents(rows pgx.Rows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent
	for rows.Next() {
		var (
			e                             domain.LedgerEvent
			kind, sale, actor             string
			lamports, tokens, totalRaised string
		)
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &kind, &e.SaleID, &sale, &actor,
			&lamports, &tokens, &totalRaised, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}

		var d decoder
		e.Kind = domain.EventKind(kind)
		e.SaleAddress = d.key(sale)
		e.Actor = d.key(actor)
		e.Lamports = d.amount(lamports)
		e.Tokens = d.amount(tokens)
		e.TotalRaised = d.amount(totalRaised)
		if d.err != nil {
			return nil, fmt.Errorf("decode ledger event %d: %w", e.Sequence, d.err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.Ledger = (*Ledger)(nil)
	_ storage.Tx     = (*ledgerTx)(nil)
)
