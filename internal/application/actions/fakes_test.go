package actions

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"ecofusion-backend/internal/domain"
	"ecofusion-backend/internal/infrastructure/audit"
	"ecofusion-backend/internal/pkg/apperr"
	"ecofusion-backend/internal/pkg/fixedpoint"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	alice = "0x00000000000000000000000000000000000A11cE"
	bob   = "0x0000000000000000000000000000000000000B0b"
	admin = "0x00000000000000000000000000000000000Ad000"
)

// fakeLedger models the action repository closely enough to exercise every lifecycle path.
type fakeLedger struct {
	mu          sync.Mutex
	counter     uint64
	actions     map[uint64]*domain.OnChainAction
	nextSerial  int64
	block       uint64
	events      []domain.ActionSubmittedEvent
	associated  map[string]bool
	calls       map[string]int
	failOnce    map[string]error
	approveGate chan struct{}
	redemptions int

	// beforeCounter runs once before the next counter read.
	beforeCounter func()
	// beforeRedeem runs once before the next redemption.
	beforeRedeem  func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		actions:    map[uint64]*domain.OnChainAction{},
		nextSerial: 1,
		block:      10,
		associated: map[string]bool{},
		calls:      map[string]int{},
		failOnce:   map[string]error{},
	}
}

func (f *fakeLedger) record(method string) error {
	f.calls[method]++
	if err, ok := f.failOnce[method]; ok {
		delete(f.failOnce, method)
		return err
	}
	return nil
}

func (f *fakeLedger) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// redeemed counts redemptions that took effect, unlike count which includes failed calls.
func (f *fakeLedger) redeemed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redemptions
}

func (f *fakeLedger) SubmitAction(ctx context.Context, account, uri string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("submitAction"); err != nil {
		return "", err
	}
	f.counter++
	f.block++
	id := f.counter
	f.actions[id] = &domain.OnChainAction{ID: id, Owner: account, State: domain.LedgerActionPending, MetadataURI: uri}
	txRef := fmt.Sprintf("0xsubmit%d", id)
	f.events = append(f.events, domain.ActionSubmittedEvent{LedgerActionID: id, Owner: account, MetadataURI: uri, TxRef: txRef, BlockNumber: f.block})
	return txRef, nil
}

func (f *fakeLedger) ActionCounter(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	hook := f.beforeCounter
	f.beforeCounter = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("actionCounter"); err != nil {
		return 0, err
	}
	return f.counter, nil
}

func (f *fakeLedger) GetAction(ctx context.Context, id uint64) (domain.OnChainAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getAction"); err != nil {
		return domain.OnChainAction{}, err
	}
	a, ok := f.actions[id]
	if !ok {
		return domain.OnChainAction{}, apperr.NotFound("fake.getAction", "no such action")
	}
	return *a, nil
}

func (f *fakeLedger) ApproveAction(ctx context.Context, account string, id uint64, amount fixedpoint.Amount) (domain.MintReceipt, error) {
	if f.approveGate != nil {
		<-f.approveGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("approve"); err != nil {
		return domain.MintReceipt{}, err
	}
	a := f.actions[id]
	if a == nil || a.State != domain.LedgerActionPending {
		return domain.MintReceipt{}, apperr.New(apperr.KindContractReverted, "fake.approve", "not pending")
	}
	a.State = domain.LedgerActionVerified
	a.TokenAmount = amount
	a.Serial = f.nextSerial
	f.nextSerial++
	return domain.MintReceipt{TxRef: fmt.Sprintf("0xapprove%d", id), Serials: []int64{a.Serial}}, nil
}

func (f *fakeLedger) RejectAction(ctx context.Context, account string, id uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reject"); err != nil {
		return "", err
	}
	a := f.actions[id]
	if a == nil || a.State != domain.LedgerActionPending {
		return "", apperr.New(apperr.KindContractReverted, "fake.reject", "not pending")
	}
	a.State = domain.LedgerActionRejected
	return fmt.Sprintf("0xreject%d", id), nil
}

func (f *fakeLedger) GrantAllowance(ctx context.Context, account string, asset domain.Asset, value *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("allowance:" + string(asset)); err != nil {
		return "", err
	}
	return "0xallowance", nil
}

func (f *fakeLedger) IsAssociated(ctx context.Context, account string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("isAssociated"); err != nil {
		return false, err
	}
	return f.associated[strings.ToLower(account)], nil
}

func (f *fakeLedger) Associate(ctx context.Context, account string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("associate"); err != nil {
		return "", err
	}
	f.associated[strings.ToLower(account)] = true
	return "0xassociate", nil
}

func (f *fakeLedger) RedeemAction(ctx context.Context, account string, serial int64) (string, error) {
	f.mu.Lock()
	hook := f.beforeRedeem
	f.beforeRedeem = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reedemAction"); err != nil {
		return "", err
	}
	for _, a := range f.actions {
		if a.Serial == serial && a.State == domain.LedgerActionVerified {
			a.State = domain.LedgerActionRedeemed
			f.redemptions++
			return fmt.Sprintf("0xredeem%d", serial), nil
		}
	}
	return "", apperr.New(apperr.KindContractReverted, "fake.redeem", "nothing to redeem")
}

func (f *fakeLedger) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeLedger) ScanActionSubmitted(ctx context.Context, from, to uint64) ([]domain.ActionSubmittedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActionSubmittedEvent
	for _, ev := range f.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memIntents struct {
	mu sync.Mutex
	m  map[string]domain.SubmitIntent
}

func (m *memIntents) Put(ctx context.Context, uri string, in domain.SubmitIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[uri] = in
	return nil
}

func (m *memIntents) Get(ctx context.Context, uri string) (domain.SubmitIntent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.m[uri]
	return in, ok, nil
}

type memCursors struct{ m map[string]uint64 }

func (c *memCursors) Get(ctx context.Context, stream string) (uint64, bool, error) {
	v, ok := c.m[stream]
	return v, ok, nil
}

func (c *memCursors) Advance(ctx context.Context, stream string, block uint64) error {
	if block > c.m[stream] {
		c.m[stream] = block
	}
	return nil
}

type recordingAccruer struct {
	mu     sync.Mutex
	deltas []decimal.Decimal
}

func (r *recordingAccruer) Accrue(ctx context.Context, d decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, d)
	return nil
}

type harness struct {
	svc     *Service
	db      *gorm.DB
	ledger  *fakeLedger
	intents *memIntents
	rounds  *recordingAccruer
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{NowFunc: func() time.Time { return time.Now().UTC() }})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Action{}, &domain.AuditRecord{}))

	h := &harness{
		db:      db,
		ledger:  newFakeLedger(),
		intents: &memIntents{m: map[string]domain.SubmitIntent{}},
		rounds:  &recordingAccruer{},
	}
	h.svc = &Service{
		DB:        db,
		Ledger:    h.ledger,
		Audit:     audit.NewGormLog(db),
		Intents:   h.intents,
		Cursors:   &memCursors{m: map[string]uint64{}},
		Rounds:    h.rounds,
		ChannelID: "review",
		Logger:    zerolog.Nop(),
	}
	return h
}

func user(addr string) domain.Account {
	return domain.Account{UserID: uuid.New(), Address: addr, Role: domain.RoleUser}
}

func reviewer() domain.Account {
	return domain.Account{UserID: uuid.New(), Address: admin, Role: domain.RoleAdmin}
}

func (h *harness) submit(t *testing.T, owner, uri string) *domain.Action {
	t.Helper()
	a, err := h.svc.Submit(context.Background(), user(owner), SubmitInput{
		ActionType:  "solar",
		Description: "installed rooftop panels",
		EvidenceURI: uri,
	})
	require.NoError(t, err)
	return a
}

func (h *harness) verify(t *testing.T, id uuid.UUID, tokens string) *domain.Action {
	t.Helper()
	a, err := h.svc.ApplyVerdict(context.Background(), reviewer(), id, VerifyVerdict{
		CO2Impact:   decimal.RequireFromString("12.5"),
		TokenAmount: fixedpoint.MustParse(tokens),
	})
	require.NoError(t, err)
	return a
}
