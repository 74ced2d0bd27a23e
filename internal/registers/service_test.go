package registers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/ledger/ledgertest"
	"github.com/meridian-retail/meridian/internal/sales"
	"github.com/meridian-retail/meridian/internal/shared"
)

type memoryRepo struct {
	ledgerStore *ledgertest.Store
	nextID      int64
	Sessions    []Session
	tenders     map[sales.TenderType]int64

	// fires when a close takes the session lock, for simulating a
	// payment racing the close
	onSessionLock func()
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{ledgerStore: ledgertest.NewStore(), tenders: map[sales.TenderType]int64{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := append([]Session(nil), m.Sessions...)
	id := m.nextID
	err := m.ledgerStore.WithTx(ctx, func(ctx context.Context, ls ledger.TxStore) error {
		return fn(ctx, &memTx{repo: m, ledger: ls})
	})
	if err != nil {
		m.Sessions, m.nextID = snapshot, id
	}
	return err
}

func (m *memoryRepo) GetSession(_ context.Context, storeID, sessionID int64) (Session, error) {
	for _, s := range m.Sessions {
		if s.StoreID == storeID && s.ID == sessionID {
			return s, nil
		}
	}
	return Session{}, shared.NotFound("registers.get", "register session %d", sessionID)
}

type memTx struct {
	repo   *memoryRepo
	ledger ledger.TxStore
}

func (t *memTx) Ledger() ledger.TxStore { return t.ledger }

func (t *memTx) InsertSession(_ context.Context, s Session) (Session, error) {
	for _, existing := range t.repo.Sessions {
		if existing.StoreID == s.StoreID && existing.RegisterID == s.RegisterID && existing.Status == SessionOpen {
			return Session{}, shared.Conflict("registers.open", "register %d already has an open session", s.RegisterID)
		}
	}
	t.repo.nextID++
	s.ID = t.repo.nextID
	s.OpenedAt = time.Now().UTC()
	t.repo.Sessions = append(t.repo.Sessions, s)
	return s, nil
}

func (t *memTx) GetSessionForUpdate(ctx context.Context, storeID, sessionID int64) (Session, error) {
	if t.repo.onSessionLock != nil {
		t.repo.onSessionLock()
	}
	return t.repo.GetSession(ctx, storeID, sessionID)
}

func (t *memTx) TenderTotals(context.Context, int64, int64) (map[sales.TenderType]int64, error) {
	out := make(map[sales.TenderType]int64, len(t.repo.tenders))
	for tender, total := range t.repo.tenders {
		out[tender] = total
	}
	return out, nil
}

func (t *memTx) UpdateSession(_ context.Context, s Session) error {
	for i := range t.repo.Sessions {
		if t.repo.Sessions[i].StoreID == s.StoreID && t.repo.Sessions[i].ID == s.ID {
			t.repo.Sessions[i] = s
			return nil
		}
	}
	return shared.NotFound("registers.get", "register session %d", s.ID)
}

func TestOpenSession(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 5, OpeningFloatCents: 10000, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, SessionOpen, session.Status)
	require.Equal(t, int64(10000), session.OpeningFloatCents)
	require.Len(t, repo.ledgerStore.Events, 1)
	require.Equal(t, ledger.EventSessionOpened, repo.ledgerStore.Events[0].EventType)

	// one open session per register
	_, err = svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 5, ActorID: 3})
	require.True(t, shared.IsKind(err, shared.KindConflict))

	// a different register is fine
	_, err = svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 6, ActorID: 3})
	require.NoError(t, err)

	_, err = svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 7, OpeningFloatCents: -1, ActorID: 3})
	require.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestCloseSessionReconcilesCash(t *testing.T) {
	repo := newMemoryRepo()
	repo.tenders = map[sales.TenderType]int64{
		sales.TenderCash: 45000,
		sales.TenderCard: 90000, // must not enter the cash expectation
	}
	svc := NewService(repo, nil)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 5, OpeningFloatCents: 10000, ActorID: 3})
	require.NoError(t, err)

	closed, err := svc.Close(ctx, CloseInput{StoreID: 1, SessionID: session.ID, CountedCashCents: 54500, ActorID: 3, Note: "short drawer"})
	require.NoError(t, err)
	require.Equal(t, SessionClosed, closed.Status)
	require.Equal(t, int64(55000), *closed.ExpectedCashCents)
	require.Equal(t, int64(54500), *closed.CountedCashCents)
	require.Equal(t, int64(-500), *closed.OverShortCents)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, ledger.EventSessionClosed, repo.ledgerStore.Events[1].EventType)

	_, err = svc.Close(ctx, CloseInput{StoreID: 1, SessionID: session.ID, CountedCashCents: 54500, ActorID: 3})
	require.True(t, shared.IsKind(err, shared.KindConflict))

	// register is free again after close
	_, err = svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 5, ActorID: 3})
	require.NoError(t, err)
}

func TestCloseCountsPaymentLandingAtLockTime(t *testing.T) {
	repo := newMemoryRepo()
	repo.tenders = map[sales.TenderType]int64{sales.TenderCash: 1000}
	svc := NewService(repo, nil)
	ctx := context.Background()

	session, err := svc.Open(ctx, OpenInput{StoreID: 1, RegisterID: 5, ActorID: 3})
	require.NoError(t, err)

	// a payment that commits just before the close takes the session
	// lock must still enter the cash expectation
	repo.onSessionLock = func() {
		repo.tenders[sales.TenderCash] += 500
	}

	closed, err := svc.Close(ctx, CloseInput{StoreID: 1, SessionID: session.ID, CountedCashCents: 1500, ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(1500), *closed.ExpectedCashCents)
	require.Equal(t, int64(0), *closed.OverShortCents)
}

func TestCloseValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Close(ctx, CloseInput{StoreID: 1, SessionID: 99, CountedCashCents: -1})
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.Close(ctx, CloseInput{StoreID: 1, SessionID: 99, CountedCashCents: 0})
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}
