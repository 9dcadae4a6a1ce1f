package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/trace"

	"payments-service/domain"
	"payments-service/gateway"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

// fakeReservationStore mimics the conditional-update semantics of the mongo
// repository behind a mutex, so the concurrency tests exercise the same
// compare-and-skip behavior production relies on.
type fakeReservationStore struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]*domain.Reservation

	insertErr  error
	applyErr   error
	refundByID error
}

func newFakeReservationStore(reservations ...*domain.Reservation) *fakeReservationStore {
	s := &fakeReservationStore{byID: make(map[primitive.ObjectID]*domain.Reservation)}
	for _, r := range reservations {
		if r.ID.IsZero() {
			r.ID = primitive.NewObjectID()
		}
		s.byID[r.ID] = r
	}
	return s
}

func (s *fakeReservationStore) clone(r *domain.Reservation) *domain.Reservation {
	copied := *r
	return &copied
}

func (s *fakeReservationStore) Insert(reservation *domain.Reservation, ctx context.Context) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return primitive.NilObjectID, s.insertErr
	}
	if reservation.ID.IsZero() {
		reservation.ID = primitive.NewObjectID()
	}
	reservation.CreatedAt = time.Now()
	s.byID[reservation.ID] = s.clone(reservation)
	return reservation.ID, nil
}

func (s *fakeReservationStore) GetByID(id primitive.ObjectID, ctx context.Context) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return s.clone(r), nil
}

func (s *fakeReservationStore) GetByOrderID(orderID string, ctx context.Context) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.OrderID == orderID {
			return s.clone(r), nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (s *fakeReservationStore) GetByRefundID(refundID string, ctx context.Context) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refundByID != nil {
		return nil, s.refundByID
	}
	for _, r := range s.byID {
		if r.RefundID == refundID {
			return s.clone(r), nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (s *fakeReservationStore) GetByGuestID(guestID string, ctx context.Context) (domain.Reservations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out domain.Reservations
	for _, r := range s.byID {
		if r.GuestID == guestID {
			out = append(out, s.clone(r))
		}
	}
	return out, nil
}

func (s *fakeReservationStore) ConfirmPayment(orderID, paymentID, signature string, ctx context.Context) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.byID {
		if r.OrderID == orderID && r.Status == domain.ReservationPending {
			now := time.Now()
			r.Status = domain.ReservationConfirmed
			r.PaymentID = paymentID
			r.PaymentSignature = signature
			r.ConfirmedAt = &now
			return s.clone(r), nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (s *fakeReservationStore) MarkCancelled(id primitive.ObjectID, upd domain.CancelUpdate, ctx context.Context) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	if r.Status != domain.ReservationConfirmed {
		return nil, domain.ErrAlreadyCancelled
	}
	now := time.Now()
	r.Status = upd.Status
	r.RefundStatus = upd.RefundStatus
	r.RefundAmount = upd.RefundAmount
	r.RefundPercentage = upd.RefundPercentage
	r.CancellationReason = upd.Reason
	r.CancelledAt = &now
	return s.clone(r), nil
}

func (s *fakeReservationStore) SetRefundRequested(id primitive.ObjectID, refundID string, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.RefundID = refundID
	r.RefundStatus = domain.RefundProcessing
	return nil
}

func (s *fakeReservationStore) MarkRefundRequestFailed(id primitive.ObjectID, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	r.Status = domain.ReservationCancelled
	r.RefundStatus = domain.RefundFailed
	return nil
}

func (s *fakeReservationStore) ApplyRefundOutcome(refundID string, status domain.ReservationStatus, refundStatus domain.RefundStatus, refundedAt *time.Time, ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return false, s.applyErr
	}
	for _, r := range s.byID {
		if r.RefundID != refundID {
			continue
		}
		if r.Status != domain.ReservationRefundPending {
			continue
		}
		if r.RefundStatus != domain.RefundPending && r.RefundStatus != domain.RefundProcessing {
			continue
		}
		r.Status = status
		r.RefundStatus = refundStatus
		r.RefundedAt = refundedAt
		return true, nil
	}
	return false, nil
}

func (s *fakeReservationStore) ListPendingRefunds(ctx context.Context) (domain.Reservations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out domain.Reservations
	for _, r := range s.byID {
		if r.RefundID == "" {
			continue
		}
		if r.RefundStatus == domain.RefundPending || r.RefundStatus == domain.RefundProcessing {
			out = append(out, s.clone(r))
		}
	}
	return out, nil
}

func (s *fakeReservationStore) ListUnsentRefundRequests(ctx context.Context) (domain.Reservations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out domain.Reservations
	for _, r := range s.byID {
		if r.Status == domain.ReservationRefundPending && r.RefundStatus == domain.RefundPending && r.RefundID == "" {
			out = append(out, s.clone(r))
		}
	}
	return out, nil
}

type fakeCancellationStore struct {
	mu               sync.Mutex
	byReservation    map[primitive.ObjectID]*domain.Cancellation
	insertErr        error
	refundByRefundID map[string]primitive.ObjectID
}

func newFakeCancellationStore() *fakeCancellationStore {
	return &fakeCancellationStore{
		byReservation:    make(map[primitive.ObjectID]*domain.Cancellation),
		refundByRefundID: make(map[string]primitive.ObjectID),
	}
}

func (s *fakeCancellationStore) Insert(cancellation *domain.Cancellation, ctx context.Context) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return primitive.NilObjectID, s.insertErr
	}
	if _, exists := s.byReservation[cancellation.ReservationID]; exists {
		return primitive.NilObjectID, domain.ErrAlreadyCancelled
	}
	cancellation.ID = primitive.NewObjectID()
	cancellation.CreatedAt = time.Now()
	copied := *cancellation
	s.byReservation[cancellation.ReservationID] = &copied
	if cancellation.RefundID != "" {
		s.refundByRefundID[cancellation.RefundID] = cancellation.ReservationID
	}
	return cancellation.ID, nil
}

func (s *fakeCancellationStore) GetByReservationID(reservationID primitive.ObjectID, ctx context.Context) (*domain.Cancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byReservation[reservationID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeCancellationStore) SetRefundRequested(reservationID primitive.ObjectID, refundID string, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byReservation[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	c.RefundID = refundID
	c.RefundStatus = domain.RefundProcessing
	c.Status = domain.CancellationProcessing
	s.refundByRefundID[refundID] = reservationID
	return nil
}

func (s *fakeCancellationStore) MarkRefundRequestFailed(reservationID primitive.ObjectID, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byReservation[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	c.RefundStatus = domain.RefundFailed
	c.Status = domain.CancellationFailed
	return nil
}

func (s *fakeCancellationStore) ApplyRefundOutcome(refundID string, status domain.CancellationStatus, refundStatus domain.RefundStatus, completedAt *time.Time, ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservationID, ok := s.refundByRefundID[refundID]
	if !ok {
		return false, nil
	}
	c := s.byReservation[reservationID]
	if c.Status != domain.CancellationPending && c.Status != domain.CancellationProcessing {
		return false, nil
	}
	c.Status = status
	c.RefundStatus = refundStatus
	c.RefundCompletedAt = completedAt
	return true, nil
}

type fakeAccommodationStore struct {
	byID map[string]*domain.Accommodation
}

func newFakeAccommodationStore(accommodations ...*domain.Accommodation) *fakeAccommodationStore {
	s := &fakeAccommodationStore{byID: make(map[string]*domain.Accommodation)}
	for _, a := range accommodations {
		s.byID[a.ID.Hex()] = a
	}
	return s
}

func (s *fakeAccommodationStore) GetByID(id string, ctx context.Context) (*domain.Accommodation, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrAccommodationNotFound
	}
	return a, nil
}

type fakeGateway struct {
	mu sync.Mutex

	createOrderFn  func(amountMinor int64, currency, receipt string) (*gateway.Order, error)
	createRefundFn func(paymentID string, amountMinor int64) (*gateway.Refund, error)
	fetchRefundFn  func(refundID string) (*gateway.Refund, error)

	orderCalls  int
	refundCalls []int64
	fetchCalls  []string
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*gateway.Order, error) {
	g.mu.Lock()
	g.orderCalls++
	g.mu.Unlock()
	if g.createOrderFn != nil {
		return g.createOrderFn(amountMinor, currency, receipt)
	}
	return &gateway.Order{ID: "order_test", Amount: amountMinor, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (*gateway.Refund, error) {
	g.mu.Lock()
	g.refundCalls = append(g.refundCalls, amountMinor)
	g.mu.Unlock()
	if g.createRefundFn != nil {
		return g.createRefundFn(paymentID, amountMinor)
	}
	return &gateway.Refund{ID: "rfnd_test", PaymentID: paymentID, Amount: amountMinor, Status: "created"}, nil
}

func (g *fakeGateway) FetchRefund(ctx context.Context, refundID string) (*gateway.Refund, error) {
	g.mu.Lock()
	g.fetchCalls = append(g.fetchCalls, refundID)
	g.mu.Unlock()
	if g.fetchRefundFn != nil {
		return g.fetchRefundFn(refundID)
	}
	return &gateway.Refund{ID: refundID, Status: "processed"}, nil
}

type notifierCall struct {
	kind      NotificationKind
	recipient string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
	err   error
}

func (n *fakeNotifier) Dispatch(kind NotificationKind, recipient string, reservation *domain.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{kind: kind, recipient: recipient})
	return n.err
}

func (n *fakeNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}
