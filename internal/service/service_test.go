package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntheticfi/boxloan/internal/datemath"
	"github.com/syntheticfi/boxloan/internal/domain"
	"github.com/syntheticfi/boxloan/internal/engine"
	"github.com/syntheticfi/boxloan/internal/feed"
	"github.com/syntheticfi/boxloan/internal/rates"
)

// Tue 08/12/2025 settles Wed 08/13. Expiration Tue 12/02/2025 settles Wed
// 12/03, 112 calendar days later.
var (
	tradeDay   = time.Date(2025, time.August, 12, 0, 0, 0, 0, time.UTC)
	expiration = time.Date(2025, time.December, 2, 0, 0, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cal, err := datemath.NewCalendar()
	require.NoError(t, err)
	return engine.New(engine.DefaultParams(), cal, testLogger())
}

func testReference(fromFeed bool) feed.Reference {
	return feed.Reference{
		Ladder: rates.NewLadder([]time.Time{expiration}),
		Curve: rates.NewCurve(map[int]domain.RateQuote{
			112: {Bid: 0.044, Ask: 0.044, Mid: 0.044},
		}),
		FromFeed: fromFeed,
	}
}

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubRefs struct {
	ref feed.Reference
}

func (s stubRefs) Reference(context.Context) feed.Reference { return s.ref }

type memTickets struct {
	mu      sync.Mutex
	tickets []domain.OrderTicket
	err     error
}

func (m *memTickets) Create(_ context.Context, t domain.OrderTicket) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets = append(m.tickets, t)
	return nil
}

func (m *memTickets) Get(_ context.Context, id string) (domain.OrderTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.OrderTicket{}, domain.ErrNotFound
}

func (m *memTickets) ListByAccount(_ context.Context, accountID string, limit int) ([]domain.OrderTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderTicket
	for _, t := range m.tickets {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSnapshots struct {
	mu       sync.Mutex
	byKey    map[string]domain.MarginSnapshot
	upserted []domain.MarginSnapshot
	getErr   error
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{byKey: make(map[string]domain.MarginSnapshot)}
}

func (m *memSnapshots) Upsert(_ context.Context, s domain.MarginSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[string(s.Broker)+"/"+s.AccountID] = s
	m.upserted = append(m.upserted, s)
	return nil
}

func (m *memSnapshots) ListLatest(context.Context) ([]domain.MarginSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MarginSnapshot, 0, len(m.byKey))
	for _, s := range m.byKey {
		out = append(out, s)
	}
	return out, nil
}

func (m *memSnapshots) GetByAccount(_ context.Context, broker domain.Broker, accountID string) (domain.MarginSnapshot, error) {
	if m.getErr != nil {
		return domain.MarginSnapshot{}, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byKey[string(broker)+"/"+accountID]
	if !ok {
		return domain.MarginSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (b *recordingBroadcaster) Broadcast(channel string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	b.payloads = append(b.payloads, payload)
}

type stubArchiver struct {
	payloads [][]byte
	err      error
}

func (a *stubArchiver) ArchivePayload(_ context.Context, _ domain.Broker, payload []byte) error {
	a.payloads = append(a.payloads, payload)
	return a.err
}

func (a *stubArchiver) ArchiveSnapshot(context.Context, domain.ContractSnapshot) error {
	return a.err
}

type stubAdapter struct {
	broker   domain.Broker
	accounts []domain.AccountData
	err      error
}

func (a stubAdapter) Broker() domain.Broker { return a.broker }

func (a stubAdapter) Parse([]byte) ([]domain.AccountData, error) {
	return a.accounts, a.err
}

// boxLegs is a 5000/5100 box opened for a 9935 net credit.
func boxLegs() []domain.OptionLeg {
	return []domain.OptionLeg{
		{Expiration: expiration, Strike: 5000, Right: domain.RightCall, Quantity: -1, CostBasis: -10335},
		{Expiration: expiration, Strike: 5100, Right: domain.RightCall, Quantity: 1, CostBasis: 1500},
		{Expiration: expiration, Strike: 5000, Right: domain.RightPut, Quantity: 1, CostBasis: 851},
		{Expiration: expiration, Strike: 5100, Right: domain.RightPut, Quantity: -1, CostBasis: -1951},
	}
}

// ---------------------------------------------------------------------------
// BalanceService
// ---------------------------------------------------------------------------

func TestIngestPayload(t *testing.T) {
	adapter := stubAdapter{
		broker: domain.BrokerFidelity,
		accounts: []domain.AccountData{
			{
				AccountID: "Z111",
				Snapshot:  domain.MarginSnapshot{Broker: domain.BrokerFidelity, AccountID: "Z111", AccountName: "Roth IRA", IsIra: true},
			},
			{
				AccountID: "X222",
				Snapshot: domain.MarginSnapshot{
					Broker: domain.BrokerFidelity, AccountID: "X222", AccountName: "Individual",
					MarginDebitBalance: 50000, WithdrawMargin: 10000,
				},
				Legs: boxLegs(),
			},
		},
	}
	snapshots := newMemSnapshots()
	archiver := &stubArchiver{}
	notifier := &recordingNotifier{}
	bcast := &recordingBroadcaster{}

	svc := NewBalanceService([]domain.BrokerAdapter{adapter}, snapshots, archiver, notifier, bcast, testLogger())
	svc.now = func() time.Time { return tradeDay }

	snaps, err := svc.IngestPayload(context.Background(), domain.BrokerFidelity, []byte(`{}`))
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Borrowing-capable account sorts first.
	assert.Equal(t, "X222", snaps[0].AccountID)
	assert.Equal(t, "Z111", snaps[1].AccountID)
	assert.Equal(t, tradeDay, snaps[0].RefreshedAt)

	require.Len(t, snaps[0].Groups, 1)
	group := snaps[0].Groups[0]
	assert.Equal(t, 5000.0, group.StrikePrice1)
	assert.Equal(t, 5100.0, group.StrikePrice2)
	assert.Equal(t, 1, group.Quantity)
	assert.InDelta(t, -9935.0, group.CostBasisSum, 1e-9)
	assert.InDelta(t, 10000.0, group.BoxSize, 1e-9)
	assert.InDelta(t, 9935.0, snaps[0].BoxSpreadDebitBalance, 1e-9)

	assert.Len(t, snapshots.upserted, 2)
	assert.Len(t, archiver.payloads, 1)
	assert.Equal(t, []string{"snapshots"}, bcast.channels)
	assert.Equal(t, []string{EventSnapshotRefreshed}, notifier.events)
}

func TestIngestPayloadUnknownBroker(t *testing.T) {
	svc := NewBalanceService(nil, newMemSnapshots(), nil, nil, nil, testLogger())

	_, err := svc.IngestPayload(context.Background(), domain.BrokerSchwab, []byte(`[]`))
	require.ErrorIs(t, err, domain.ErrUnknownBroker)
}

func TestIngestPayloadParseError(t *testing.T) {
	adapter := stubAdapter{broker: domain.BrokerSchwab, err: domain.ErrMalformedPayload}
	snapshots := newMemSnapshots()
	archiver := &stubArchiver{}

	svc := NewBalanceService([]domain.BrokerAdapter{adapter}, snapshots, archiver, nil, nil, testLogger())

	_, err := svc.IngestPayload(context.Background(), domain.BrokerSchwab, []byte(`bad`))
	require.ErrorIs(t, err, domain.ErrMalformedPayload)
	assert.Empty(t, snapshots.upserted)
	// The raw capture is archived even when parsing fails.
	assert.Len(t, archiver.payloads, 1)
}

func TestIngestPayloadArchiveFailureNonFatal(t *testing.T) {
	adapter := stubAdapter{
		broker: domain.BrokerFidelity,
		accounts: []domain.AccountData{
			{AccountID: "X1", Snapshot: domain.MarginSnapshot{Broker: domain.BrokerFidelity, AccountID: "X1"}},
		},
	}
	archiver := &stubArchiver{err: errors.New("bucket unreachable")}

	svc := NewBalanceService([]domain.BrokerAdapter{adapter}, newMemSnapshots(), archiver, nil, nil, testLogger())

	snaps, err := svc.IngestPayload(context.Background(), domain.BrokerFidelity, []byte(`{}`))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

// ---------------------------------------------------------------------------
// BorrowService
// ---------------------------------------------------------------------------

func TestPlanBorrowTicket(t *testing.T) {
	snapshots := newMemSnapshots()
	require.NoError(t, snapshots.Upsert(context.Background(), domain.MarginSnapshot{
		Broker: domain.BrokerFidelity, AccountID: "X222", AccountName: "Individual",
		MarginDebitBalance: 50000, WithdrawMargin: 10000,
	}))
	tickets := &memTickets{}
	notifier := &recordingNotifier{}
	bcast := &recordingBroadcaster{}

	svc := NewBorrowService(testEngine(t), stubRefs{testReference(false)}, snapshots, tickets, notifier, bcast, testLogger())
	svc.now = func() time.Time { return tradeDay }

	ticket, err := svc.PlanBorrow(context.Background(), domain.BrokerFidelity, "X222", domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionCredit, ticket.Direction)
	assert.Equal(t, "Individual", ticket.AccountName)
	assert.Equal(t, expiration, ticket.ExpirationDate)
	assert.Equal(t, 5000.0, ticket.StrikePrice1)
	assert.Equal(t, 6010.0, ticket.StrikePrice2)
	assert.Equal(t, 1, ticket.Quantity)
	assert.InDelta(t, 996.30, ticket.LimitPrice, 1e-9)
	assert.InDelta(t, 99630.0, ticket.UpfrontCash, 1e-6)
	assert.InDelta(t, 101000.0, ticket.RepaymentAmount, 1e-9)
	assert.Nil(t, ticket.CostBasis)

	// 100k requested against 60k of remaining capacity plus drawn margin.
	assert.True(t, ticket.ExceedsCreditLimit)
	assert.Contains(t, notifier.events, EventTicketCreated)
	assert.Contains(t, notifier.events, EventCreditLimit)
	assert.Equal(t, []string{"tickets"}, bcast.channels)

	stored, err := tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket, stored)
}

func TestPlanBorrowWithinCreditLimit(t *testing.T) {
	snapshots := newMemSnapshots()
	require.NoError(t, snapshots.Upsert(context.Background(), domain.MarginSnapshot{
		Broker: domain.BrokerFidelity, AccountID: "X222", AccountName: "Individual",
		MarginDebitBalance: 50000, WithdrawMargin: 60000,
	}))

	svc := NewBorrowService(testEngine(t), stubRefs{testReference(false)}, snapshots, &memTickets{}, nil, nil, testLogger())
	svc.now = func() time.Time { return tradeDay }

	ticket, err := svc.PlanBorrow(context.Background(), domain.BrokerFidelity, "X222", domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	})
	require.NoError(t, err)
	assert.False(t, ticket.ExceedsCreditLimit)
}

func TestPlanBorrowWithoutSnapshot(t *testing.T) {
	svc := NewBorrowService(testEngine(t), stubRefs{testReference(false)}, newMemSnapshots(), &memTickets{}, nil, nil, testLogger())
	svc.now = func() time.Time { return tradeDay }

	ticket, err := svc.PlanBorrow(context.Background(), domain.BrokerFidelity, "X999", domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, "X999", ticket.AccountName)
	assert.False(t, ticket.ExceedsCreditLimit)
}

func TestPlanBorrowSnapshotStoreError(t *testing.T) {
	snapshots := newMemSnapshots()
	snapshots.getErr = errors.New("connection reset")
	tickets := &memTickets{}

	svc := NewBorrowService(testEngine(t), stubRefs{testReference(false)}, snapshots, tickets, nil, nil, testLogger())
	svc.now = func() time.Time { return tradeDay }

	_, err := svc.PlanBorrow(context.Background(), domain.BrokerFidelity, "X222", domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 90,
	})
	require.Error(t, err)
	assert.Empty(t, tickets.tickets)
}

func TestPlanBorrowInfeasiblePeriod(t *testing.T) {
	svc := NewBorrowService(testEngine(t), stubRefs{testReference(false)}, newMemSnapshots(), &memTickets{}, nil, nil, testLogger())
	svc.now = func() time.Time { return tradeDay }

	_, err := svc.PlanBorrow(context.Background(), domain.BrokerFidelity, "X222", domain.BorrowRequest{
		BorrowAmount: 100_000,
		PeriodInDays: 400,
	})
	require.ErrorIs(t, err, domain.ErrInfeasible)
}

// ---------------------------------------------------------------------------
// RepayService
// ---------------------------------------------------------------------------

func TestPlanRepayTicket(t *testing.T) {
	tickets := &memTickets{}
	notifier := &recordingNotifier{}
	bcast := &recordingBroadcaster{}

	svc := NewRepayService(testEngine(t), stubRefs{testReference(true)}, tickets, notifier, bcast, testLogger())
	svc.now = func() time.Time { return tradeDay }

	ticket, err := svc.PlanRepay(context.Background(), domain.BrokerFidelity, "X222", domain.RepayRequest{
		ExpirationDate: expiration,
		StrikePrice1:   5000,
		StrikePrice2:   5100,
		Quantity:       2,
		CostBasis:      -9935,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionDebit, ticket.Direction)
	assert.Equal(t, domain.PlanSourceLive, ticket.Source)
	// 10000 payoff discounted 112 days at 4.4%/360 is 9864.05, so 98.65
	// per contract after rounding up to the nickel.
	assert.InDelta(t, 98.65, ticket.LimitPrice, 1e-9)
	assert.InDelta(t, 19730.0, ticket.UpfrontCash, 1e-6)
	assert.InDelta(t, 20000.0, ticket.RepaymentAmount, 1e-9)
	require.NotNil(t, ticket.CostBasis)
	assert.InDelta(t, -9935.0, *ticket.CostBasis, 1e-9)

	assert.Len(t, tickets.tickets, 1)
	assert.Equal(t, []string{"tickets"}, bcast.channels)
	assert.Contains(t, notifier.events, EventTicketCreated)
}

func TestPlanRepayFallbackSource(t *testing.T) {
	svc := NewRepayService(testEngine(t), stubRefs{testReference(false)}, &memTickets{}, nil, nil, testLogger())
	svc.now = func() time.Time { return tradeDay }

	ticket, err := svc.PlanRepay(context.Background(), domain.BrokerFidelity, "X222", domain.RepayRequest{
		ExpirationDate: expiration,
		StrikePrice1:   5000,
		StrikePrice2:   5100,
		Quantity:       1,
		CostBasis:      -9935,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PlanSourceFallback, ticket.Source)
}

func TestPlanRepayRejectsInvertedStrikes(t *testing.T) {
	svc := NewRepayService(testEngine(t), stubRefs{testReference(true)}, &memTickets{}, nil, nil, testLogger())

	_, err := svc.PlanRepay(context.Background(), domain.BrokerFidelity, "X222", domain.RepayRequest{
		ExpirationDate: expiration,
		StrikePrice1:   5100,
		StrikePrice2:   5000,
		Quantity:       1,
		CostBasis:      0,
	})
	require.ErrorIs(t, err, domain.ErrInfeasible)
}

func TestBumpTicket(t *testing.T) {
	tickets := &memTickets{}
	seed := domain.OrderTicket{
		ID:              "seed-1",
		AccountID:       "X222",
		AccountName:     "Individual",
		Broker:          domain.BrokerFidelity,
		Direction:       domain.DirectionCredit,
		ExpirationDate:  expiration,
		StrikePrice1:    5000,
		StrikePrice2:    6010,
		Quantity:        1,
		LimitPrice:      996.30,
		UpfrontCash:     99630,
		RepaymentAmount: 101000,
		Source:          domain.PlanSourceFallback,
		CreatedAt:       tradeDay.Add(-time.Hour),
	}
	require.NoError(t, tickets.Create(context.Background(), seed))

	bcast := &recordingBroadcaster{}
	svc := NewRepayService(testEngine(t), stubRefs{testReference(true)}, tickets, nil, bcast, testLogger())
	svc.now = func() time.Time { return tradeDay }

	bumped, err := svc.Bump(context.Background(), "seed-1")
	require.NoError(t, err)

	assert.NotEqual(t, seed.ID, bumped.ID)
	assert.InDelta(t, 996.25, bumped.LimitPrice, 1e-9)
	assert.InDelta(t, 99625.0, bumped.UpfrontCash, 1e-6)
	assert.Equal(t, seed.RepaymentAmount, bumped.RepaymentAmount)
	assert.Equal(t, tradeDay, bumped.CreatedAt)

	assert.Len(t, tickets.tickets, 2)
	assert.Equal(t, []string{"tickets"}, bcast.channels)
}

func TestBumpUnknownTicket(t *testing.T) {
	svc := NewRepayService(testEngine(t), stubRefs{testReference(true)}, &memTickets{}, nil, nil, testLogger())

	_, err := svc.Bump(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
