package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/healthy-mentoring/server-go/internal/database"
	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/gateway"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/notify"
	"github.com/healthy-mentoring/server-go/internal/repository"
)

// fakeDB runs the transaction function directly; the in-memory fakes
// below ignore the tx handle, so rollback semantics are not simulated.
// Tests that care about atomicity assert on invariants instead.
type fakeDB struct{}

func (fakeDB) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *fakeSessionRepo) put(s *model.Session) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	copied := *s
	r.sessions[s.ID] = &copied
	return s
}

func (r *fakeSessionRepo) get(id string) *model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	copied := *s
	return &copied
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return r.get(id), nil
}

func (r *fakeSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	return r.get(id), nil
}

func (r *fakeSessionRepo) FindActiveByMentor(ctx context.Context, mentorID string) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.MentorID == mentorID && s.Status != model.SessionStatusCancelled {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *fakeSessionRepo) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.Session, error) {
	all, _ := r.FindActiveByMentor(ctx, mentorID)
	return all, nil
}

func (r *fakeSessionRepo) ListByAttendee(ctx context.Context, attendeeID string, limit, offset int) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.AttendeeID != nil && *s.AttendeeID == attendeeID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	now := time.Now()
	session := &model.Session{
		ID:         uuid.NewString(),
		MentorID:   params.MentorID,
		AttendeeID: params.AttendeeID,
		StartAt:    params.StartAt,
		EndAt:      params.EndAt,
		Status:     params.Status,
		PriceCents: params.PriceCents,
		PaymentID:  params.PaymentID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return r.put(session), nil
}

func (r *fakeSessionRepo) UpdateSchedule(ctx context.Context, id string, startAt, endAt time.Time, priceCents *int64, status model.SessionStatus, originalData *json.RawMessage, changedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	if s == nil {
		return nil
	}
	s.StartAt = startAt
	s.EndAt = endAt
	s.PriceCents = priceCents
	s.Status = status
	if originalData != nil {
		s.OriginalData = originalData
	}
	s.ChangedBy = &changedBy
	return nil
}

func (r *fakeSessionRepo) SetPayment(ctx context.Context, id string, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		s.PaymentID = &paymentID
	}
	return nil
}

func (r *fakeSessionRepo) MarkCancelled(ctx context.Context, id string, refundedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		s.Status = model.SessionStatusCancelled
		if refundedAt != nil {
			s.RefundedAt = refundedAt
		}
	}
	return nil
}

func (r *fakeSessionRepo) MarkRefunded(ctx context.Context, id string, refundedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		s.Status = model.SessionStatusRefunded
		s.RefundedAt = &refundedAt
	}
	return nil
}

func (r *fakeSessionRepo) MarkPayoutAvailable(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		s.Status = model.SessionStatusPayoutAvailable
	}
	return nil
}

func (r *fakeSessionRepo) MarkPaidOut(ctx context.Context, id string, paidOutAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[id]; s != nil {
		s.Status = model.SessionStatusPaidOut
		s.PaidOutAt = &paidOutAt
	}
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Status == model.SessionStatusDraft && s.EndAt.Before(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) ExpireInvited(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusInvited && s.EndAt.Before(now) {
			s.Status = model.SessionStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) CompleteConfirmed(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusConfirmed && s.EndAt.Before(now) {
			s.Status = model.SessionStatusCompleted
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) FindPayoutCandidates(ctx context.Context, endedBefore time.Time) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusCompleted && s.EndAt.Before(endedBefore) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return r }

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*model.Payment)}
}

func (r *fakePaymentRepo) put(p *model.Payment) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	copied := *p
	r.payments[p.ID] = &copied
	return p
}

func (r *fakePaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.IntentID == intentID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.SessionID != nil && *p.SessionID == sessionID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) Create(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	payment := &model.Payment{
		ID:                      uuid.NewString(),
		IntentID:                params.IntentID,
		MentorID:                params.MentorID,
		ClientID:                params.ClientID,
		SessionID:               params.SessionID,
		AmountCents:             params.AmountCents,
		Currency:                params.Currency,
		PlatformCommissionCents: params.PlatformCommissionCents,
		Status:                  params.Status,
		CreatedAt:               time.Now(),
	}
	return r.put(payment), nil
}

func (r *fakePaymentRepo) MarkRefunded(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.payments[id]; p != nil {
		p.Status = model.PaymentStatusRefunded
	}
	return nil
}

func (r *fakePaymentRepo) EarningsCents(ctx context.Context, mentorID string) (int64, error) {
	return 0, nil
}

func (r *fakePaymentRepo) WithTx(tx *sqlx.Tx) repository.PaymentRepository { return r }

// fakeClientWallet keeps the ledger and balance in memory with the same
// contract as the SQL repository.
type fakeClientWallet struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []model.WalletTransaction
}

func newFakeClientWallet() *fakeClientWallet {
	return &fakeClientWallet{balances: make(map[string]int64)}
}

func (r *fakeClientWallet) BalanceForUpdate(ctx context.Context, clientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[clientID], nil
}

func (r *fakeClientWallet) InsertEntry(ctx context.Context, clientID string, params model.LedgerEntryParams) (*model.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := model.WalletTransaction{
		ID:               uuid.NewString(),
		ClientID:         clientID,
		AmountCents:      params.AmountCents,
		Reason:           params.Reason,
		RelatedPaymentID: params.RelatedPaymentID,
		RelatedSessionID: params.RelatedSessionID,
		CreatedAt:        time.Now(),
	}
	r.entries = append(r.entries, entry)
	return &entry, nil
}

func (r *fakeClientWallet) SetBalance(ctx context.Context, clientID string, balanceCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[clientID] = balanceCents
	return nil
}

func (r *fakeClientWallet) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]model.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.WalletTransaction
	for _, e := range r.entries {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeClientWallet) CountByClient(ctx context.Context, clientID string) (int, error) {
	list, _ := r.ListByClient(ctx, clientID, 0, 0)
	return len(list), nil
}

func (r *fakeClientWallet) WithTx(tx *sqlx.Tx) repository.ClientWalletRepository { return r }

type fakeMentorWallet struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  []model.MentorWalletTransaction
}

func newFakeMentorWallet() *fakeMentorWallet {
	return &fakeMentorWallet{balances: make(map[string]int64)}
}

func (r *fakeMentorWallet) BalanceForUpdate(ctx context.Context, mentorID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[mentorID], nil
}

func (r *fakeMentorWallet) InsertEntry(ctx context.Context, mentorID string, params model.LedgerEntryParams) (*model.MentorWalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := model.MentorWalletTransaction{
		ID:               uuid.NewString(),
		MentorID:         mentorID,
		AmountCents:      params.AmountCents,
		Reason:           params.Reason,
		RelatedPaymentID: params.RelatedPaymentID,
		RelatedSessionID: params.RelatedSessionID,
		CreatedAt:        time.Now(),
	}
	r.entries = append(r.entries, entry)
	return &entry, nil
}

func (r *fakeMentorWallet) SetBalance(ctx context.Context, mentorID string, balanceCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[mentorID] = balanceCents
	return nil
}

func (r *fakeMentorWallet) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.MentorWalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MentorWalletTransaction
	for _, e := range r.entries {
		if e.MentorID == mentorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeMentorWallet) CountByMentor(ctx context.Context, mentorID string) (int, error) {
	list, _ := r.ListByMentor(ctx, mentorID, 0, 0)
	return len(list), nil
}

func (r *fakeMentorWallet) HasSessionEntry(ctx context.Context, sessionID string, reason model.WalletReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.RelatedSessionID != nil && *e.RelatedSessionID == sessionID && e.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMentorWallet) WithTx(tx *sqlx.Tx) repository.MentorWalletRepository { return r }

type fakeMentorRepo struct {
	mu      sync.Mutex
	mentors map[string]*model.MentorProfile
}

func newFakeMentorRepo() *fakeMentorRepo {
	return &fakeMentorRepo{mentors: make(map[string]*model.MentorProfile)}
}

func (r *fakeMentorRepo) put(m *model.MentorProfile) *model.MentorProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	copied := *m
	r.mentors[m.ID] = &copied
	return m
}

func (r *fakeMentorRepo) get(id string) *model.MentorProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mentors[id]
	if !ok {
		return nil
	}
	copied := *m
	return &copied
}

func (r *fakeMentorRepo) FindByID(ctx context.Context, id string) (*model.MentorProfile, error) {
	return r.get(id), nil
}

func (r *fakeMentorRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.MentorProfile, error) {
	return r.get(id), nil
}

func (r *fakeMentorRepo) FindByAccountID(ctx context.Context, accountID string) (*model.MentorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mentors {
		if m.AccountID == accountID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMentorRepo) ListIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.mentors))
	for id := range r.mentors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeMentorRepo) UpdateAvailability(ctx context.Context, id string, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.mentors[id]; m != nil {
		m.OneTimeSlots = oneTime
		m.RecurringSlots = recurring
		m.HasCollisions = hasCollisions
	}
	return nil
}

func (r *fakeMentorRepo) UpdateSessionLength(ctx context.Context, id string, lengthMinutes int, oneTime model.OneTimeSlots, recurring model.RecurringSlots, hasCollisions bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.mentors[id]; m != nil {
		m.SessionLengthMinutes = lengthMinutes
		m.OneTimeSlots = oneTime
		m.RecurringSlots = recurring
		m.HasCollisions = hasCollisions
	}
	return nil
}

func (r *fakeMentorRepo) WithTx(tx *sqlx.Tx) repository.MentorRepository { return r }

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*model.ClientProfile
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: make(map[string]*model.ClientProfile)}
}

func (r *fakeClientRepo) put(c *model.ClientProfile) *model.ClientProfile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	copied := *c
	r.clients[c.ID] = &copied
	return c
}

func (r *fakeClientRepo) FindByID(ctx context.Context, id string) (*model.ClientProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeClientRepo) FindByAccountID(ctx context.Context, accountID string) (*model.ClientProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.AccountID == accountID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeClientRepo) WithTx(tx *sqlx.Tx) repository.ClientRepository { return r }

type fixedZones struct{}

func (fixedZones) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// fakeGateway scripts the processor side of the booking flow.
type fakeGateway struct {
	mu      sync.Mutex
	intents map[string]*gateway.Intent
	created int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]*gateway.Intent)}
}

func (g *fakeGateway) addIntent(intent gateway.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := intent
	g.intents[intent.IntentID] = &copied
}

func (g *fakeGateway) CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created++
	intent := &gateway.Intent{
		IntentID:     uuid.NewString(),
		ClientSecret: "secret-" + uuid.NewString(),
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Status:       "requires_payment_method",
		Metadata:     params.Metadata,
	}
	g.intents[intent.IntentID] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, intentID string) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[intentID]; ok {
		copied := *intent
		return &copied, nil
	}
	return nil, nil
}

func (g *fakeGateway) VerifyIntentSucceeded(ctx context.Context, intentID string, expectedAmountCents int64, expectedMentorID string) (*gateway.Intent, error) {
	intent, err := g.RetrieveIntent(ctx, intentID)
	if err != nil || intent == nil {
		return nil, apperrors.NotFound("payment intent")
	}
	if intent.Status != "succeeded" {
		return nil, apperrors.PaymentNotVerified("Payment intent status is " + intent.Status)
	}
	if intent.AmountCents != expectedAmountCents {
		return nil, apperrors.PaymentMismatch("Payment amount does not match the session price")
	}
	if intent.Metadata["mentor_id"] != expectedMentorID {
		return nil, apperrors.PaymentMismatch("Payment intent does not belong to this mentor")
	}
	return intent, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) eventTypes() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]notify.EventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}
