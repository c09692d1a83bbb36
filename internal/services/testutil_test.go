package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"

	"github.com/shopspring/decimal"
)

var testScope = docstore.Scope{AppID: "test-app", UserID: "u1"}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store  *docstore.MemoryStore
	events *recordingPublisher
	svc    *Services
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  docstore.NewMemoryStore(),
		events: &recordingPublisher{},
		now:    time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() { f.store.Close() })
	f.svc = New(Deps{Store: f.store, Events: f.events, Now: func() time.Time { return f.now }}, testScope)
	return f
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) account(t *testing.T, name, opening string) core.Account {
	t.Helper()
	acc, err := f.svc.Ledger.CreateAccount(context.Background(), name, dec(opening))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acc
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	acc, err := f.svc.Ledger.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", accountID, err)
	}
	return acc.Balance
}

func (f *fixture) expectBalance(t *testing.T, accountID, want string) {
	t.Helper()
	if got := f.balance(t, accountID); !got.Equal(dec(want)) {
		t.Fatalf("account %s: expected balance %s, got %s", accountID, want, got)
	}
}

// expectInvariant checks balance == opening + signed sum for every account.
func (f *fixture) expectInvariant(t *testing.T) {
	t.Helper()
	drifts, err := f.svc.Reconciler.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	for _, d := range drifts {
		if !d.Balanced() {
			t.Fatalf("account %s drifted: recorded %s, expected %s", d.AccountID, d.Recorded, d.Expected)
		}
	}
}

func txInput(typ core.TransactionType, amount, accountID, category string) core.TransactionInput {
	return core.TransactionInput{
		Type:        typ,
		Amount:      dec(amount),
		Category:    category,
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: category,
		AccountID:   accountID,
	}
}
