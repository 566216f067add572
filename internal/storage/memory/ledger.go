package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// errReadOnly is returned by writes attempted inside View.
var errReadOnly = errors.New("memory ledger: write in read-only transaction")

// ledgerState holds committed ledger records. Values are stored by copy.
type ledgerState struct {
	sales         map[solana.PublicKey]domain.Sale
	vaults        map[solana.PublicKey]domain.Vault
	records       map[solana.PublicKey]domain.PurchaseRecord
	tokenAccounts map[solana.PublicKey]domain.TokenAccount
	lamports      map[solana.PublicKey]uint64
	events        []domain.LedgerEvent
	eventIDs      map[string]bool
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		sales:         make(map[solana.PublicKey]domain.Sale),
		vaults:        make(map[solana.PublicKey]domain.Vault),
		records:       make(map[solana.PublicKey]domain.PurchaseRecord),
		tokenAccounts: make(map[solana.PublicKey]domain.TokenAccount),
		lamports:      make(map[solana.PublicKey]uint64),
		eventIDs:      make(map[string]bool),
	}
}

// Ledger is an in-memory implementation of storage.Ledger.
// Update transactions are serialized; their writes are staged and applied
// to the committed state only when the callback succeeds.
type Ledger struct {
	mu    sync.RWMutex
	state *ledgerState
}

// NewLedger creates a new empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{state: newLedgerState()}
}

// Update runs fn in a read-write transaction.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := newLedgerTx(l.state, true)
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.commit()
	return nil
}

// View runs fn in a read-only transaction.
func (l *Ledger) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(newLedgerTx(l.state, false))
}

// ledgerTx overlays staged writes on the committed state.
type ledgerTx struct {
	base     *ledgerState
	writable bool

	sales         map[solana.PublicKey]domain.Sale
	vaults        map[solana.PublicKey]domain.Vault
	records       map[solana.PublicKey]domain.PurchaseRecord
	tokenAccounts map[solana.PublicKey]domain.TokenAccount
	lamports      map[solana.PublicKey]uint64
	events        []domain.LedgerEvent
	eventIDs      map[string]bool
}

func newLedgerTx(base *ledgerState, writable bool) *ledgerTx {
	return &ledgerTx{
		base:          base,
		writable:      writable,
		sales:         make(map[solana.PublicKey]domain.Sale),
		vaults:        make(map[solana.PublicKey]domain.Vault),
		records:       make(map[solana.PublicKey]domain.PurchaseRecord),
		tokenAccounts: make(map[solana.PublicKey]domain.TokenAccount),
		lamports:      make(map[solana.PublicKey]uint64),
		eventIDs:      make(map[string]bool),
	}
}

func (t *ledgerTx) commit() {
	for k, v := range t.sales {
		t.base.sales[k] = v
	}
	for k, v := range t.vaults {
		t.base.vaults[k] = v
	}
	for k, v := range t.records {
		t.base.records[k] = v
	}
	for k, v := range t.tokenAccounts {
		t.base.tokenAccounts[k] = v
	}
	for k, v := range t.lamports {
		t.base.lamports[k] = v
	}
	for _, e := range t.events {
		t.base.events = append(t.base.events, e)
		t.base.eventIDs[e.EventID] = true
	}
}

func (t *ledgerTx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// lookup returns the staged value for k if present, else the committed one.
func lookup[V any](staged, base map[solana.PublicKey]V, k solana.PublicKey) (V, bool) {
	if v, ok := staged[k]; ok {
		return v, true
	}
	v, ok := base[k]
	return v, ok
}

// GetSale retrieves a sale by address.
func (t *ledgerTx) GetSale(_ context.Context, address solana.PublicKey) (*domain.Sale, error) {
	s, ok := lookup(t.sales, t.base.sales, address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

// InsertSale creates a sale.
func (t *ledgerTx) InsertSale(_ context.Context, s *domain.Sale) error {
	if s == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.sales, t.base.sales, s.Address); ok {
		return storage.ErrDuplicateKey
	}
	t.sales[s.Address] = *s
	return nil
}

// UpdateSale overwrites a sale.
func (t *ledgerTx) UpdateSale(_ context.Context, s *domain.Sale) error {
	if s == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.sales, t.base.sales, s.Address); !ok {
		return storage.ErrNotFound
	}
	t.sales[s.Address] = *s
	return nil
}

// GetVault retrieves a vault and fills in its lamport balance.
func (t *ledgerTx) GetVault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error) {
	v, ok := lookup(t.vaults, t.base.vaults, address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	lamports, err := t.GetLamports(ctx, address)
	if err != nil {
		return nil, err
	}
	v.Lamports = lamports
	return &v, nil
}

// InsertVault creates a vault record.
func (t *ledgerTx) InsertVault(_ context.Context, v *domain.Vault) error {
	if v == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.vaults, t.base.vaults, v.Address); ok {
		return storage.ErrDuplicateKey
	}
	stored := *v
	stored.Lamports = 0
	t.vaults[v.Address] = stored
	return nil
}

// GetPurchaseRecord retrieves a purchase record.
func (t *ledgerTx) GetPurchaseRecord(_ context.Context, address solana.PublicKey) (*domain.PurchaseRecord, error) {
	r, ok := lookup(t.records, t.base.records, address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

// InsertPurchaseRecord creates a purchase record.
func (t *ledgerTx) InsertPurchaseRecord(_ context.Context, r *domain.PurchaseRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.records, t.base.records, r.Address); ok {
		return storage.ErrDuplicateKey
	}
	t.records[r.Address] = *r
	return nil
}

// UpdatePurchaseRecord overwrites a purchase record.
func (t *ledgerTx) UpdatePurchaseRecord(_ context.Context, r *domain.PurchaseRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.records, t.base.records, r.Address); !ok {
		return storage.ErrNotFound
	}
	t.records[r.Address] = *r
	return nil
}

// GetTokenAccount retrieves a token account.
func (t *ledgerTx) GetTokenAccount(_ context.Context, address solana.PublicKey) (*domain.TokenAccount, error) {
	a, ok := lookup(t.tokenAccounts, t.base.tokenAccounts, address)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

// InsertTokenAccount creates a token account.
func (t *ledgerTx) InsertTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.tokenAccounts, t.base.tokenAccounts, a.Address); ok {
		return storage.ErrDuplicateKey
	}
	t.tokenAccounts[a.Address] = *a
	return nil
}

// UpdateTokenAccount overwrites a token account.
func (t *ledgerTx) UpdateTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	if _, ok := lookup(t.tokenAccounts, t.base.tokenAccounts, a.Address); !ok {
		return storage.ErrNotFound
	}
	t.tokenAccounts[a.Address] = *a
	return nil
}

// GetLamports returns the balance of address, 0 if never funded.
func (t *ledgerTx) GetLamports(_ context.Context, address solana.PublicKey) (uint64, error) {
	lamports, _ := lookup(t.lamports, t.base.lamports, address)
	return lamports, nil
}

// SetLamports overwrites the balance of address.
func (t *ledgerTx) SetLamports(_ context.Context, address solana.PublicKey, lamports uint64) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	t.lamports[address] = lamports
	return nil
}

// NextSequence returns the sequence the next appended event must carry.
func (t *ledgerTx) NextSequence(_ context.Context) (int64, error) {
	return int64(len(t.base.events)+len(t.events)) + 1, nil
}

// AppendEvent appends an event to the staged log.
func (t *ledgerTx) AppendEvent(ctx context.Context, e *domain.LedgerEvent) error {
	if e == nil || e.EventID == "" || !e.Kind.IsValid() {
		return storage.ErrInvalidInput
	}
	if err := t.checkWritable(); err != nil {
		return err
	}
	next, _ := t.NextSequence(ctx)
	if e.Sequence < next || t.base.eventIDs[e.EventID] || t.eventIDs[e.EventID] {
		return storage.ErrDuplicateKey
	}
	if e.Sequence != next {
		return storage.ErrInvalidInput
	}
	t.events = append(t.events, *e)
	t.eventIDs[e.EventID] = true
	return nil
}

// ListEventsBySale retrieves events of a sale, ordered by sequence ASC.
func (t *ledgerTx) ListEventsBySale(_ context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error) {
	var result []*domain.LedgerEvent
	t.eachEvent(func(e domain.LedgerEvent) bool {
		if e.SaleAddress == saleAddress {
			result = append(result, &e)
		}
		return true
	})
	return result, nil
}

// ListEventsAfter retrieves up to limit events with sequence > after.
func (t *ledgerTx) ListEventsAfter(_ context.Context, after int64, limit int) ([]*domain.LedgerEvent, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	var result []*domain.LedgerEvent
	t.eachEvent(func(e domain.LedgerEvent) bool {
		if e.Sequence > after {
			result = append(result, &e)
		}
		return len(result) < limit
	})
	return result, nil
}

// eachEvent visits committed then staged events in sequence order until fn returns false.
func (t *ledgerTx) eachEvent(fn func(e domain.LedgerEvent) bool) {
	for _, e := range t.base.events {
		if !fn(e) {
			return
		}
	}
	for _, e := range t.events {
		if !fn(e) {
			return
		}
	}
}

// sortEvents sorts events by sequence.
func sortEvents(events []*domain.LedgerEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence < events[j].Sequence
	})
}

// Verify interface compliance at compile time.
var (
	_ storage.Ledger = (*Ledger)(nil)
	_ storage.Tx     = (*ledgerTx)(nil)
)
