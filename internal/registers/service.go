package registers

import (
	"context"
	"strconv"
	"time"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/sales"
	"github.com/meridian-retail/meridian/internal/shared"
)

// RepositoryPort abstracts session storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSession(ctx context.Context, storeID, sessionID int64) (Session, error)
}

// TenderPort reads net tender totals recorded against a session.
type TenderPort interface {
	TenderSummary(ctx context.Context, storeID, registerSessionID int64) (map[sales.TenderType]int64, error)
}

// Service runs the session lifecycle.
type Service struct {
	repo RepositoryPort
	now  shared.NowFunc
}

// NewService builds Service.
func NewService(repo RepositoryPort, now shared.NowFunc) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// Open starts a session on a register. At most one session per register
// may be open at a time.
func (s *Service) Open(ctx context.Context, in OpenInput) (Session, error) {
	const op = "registers.open"
	if in.OpeningFloatCents < 0 {
		return Session{}, shared.Validation(op, "opening float must be >= 0")
	}
	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		session, err = tx.InsertSession(ctx, Session{
			StoreID:           in.StoreID,
			RegisterID:        in.RegisterID,
			Status:            SessionOpen,
			OpeningFloatCents: in.OpeningFloatCents,
			OpenedBy:          in.ActorID,
		})
		if err != nil {
			return err
		}
		_, err = tx.Ledger().AppendEvent(ctx, ledger.Event{
			StoreID:           in.StoreID,
			EventType:         ledger.EventSessionOpened,
			EntityType:        "register_session",
			EntityID:          strconv.FormatInt(session.ID, 10),
			RegisterSessionID: &session.ID,
			ActorID:           in.ActorID,
			OccurredAt:        s.now().UTC(),
		})
		return err
	})
	return session, err
}

// Close ends a session, reconciling counted cash against the opening
// float plus net cash tenders. Closing twice is a conflict.
func (s *Service) Close(ctx context.Context, in CloseInput) (Session, error) {
	const op = "registers.close"
	if in.CountedCashCents < 0 {
		return Session{}, shared.Validation(op, "counted cash must be >= 0")
	}
	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		session, err = tx.GetSessionForUpdate(ctx, in.StoreID, in.SessionID)
		if err != nil {
			return err
		}
		if session.Status == SessionClosed {
			return shared.Conflict(op, "register session %d is already closed", in.SessionID)
		}
		// totals are read under the session row lock so a payment
		// committing alongside the close cannot slip out of the drawer
		totals, err := tx.TenderTotals(ctx, in.StoreID, in.SessionID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		expected := session.OpeningFloatCents + totals[sales.TenderCash]
		counted := in.CountedCashCents
		overShort := counted - expected
		session.Status = SessionClosed
		session.ExpectedCashCents = &expected
		session.CountedCashCents = &counted
		session.OverShortCents = &overShort
		session.ClosedBy = &in.ActorID
		session.ClosedAt = &now
		if in.Note != "" {
			session.Note = in.Note
		}
		if err := tx.UpdateSession(ctx, session); err != nil {
			return err
		}
		_, err = tx.Ledger().AppendEvent(ctx, ledger.Event{
			StoreID:           in.StoreID,
			EventType:         ledger.EventSessionClosed,
			EntityType:        "register_session",
			EntityID:          strconv.FormatInt(session.ID, 10),
			RegisterSessionID: &session.ID,
			ActorID:           in.ActorID,
			Note:              in.Note,
			OccurredAt:        now,
		})
		return err
	})
	return session, err
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, storeID, sessionID int64) (Session, error) {
	return s.repo.GetSession(ctx, storeID, sessionID)
}
