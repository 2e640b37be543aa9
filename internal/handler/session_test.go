package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/notify"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/service"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindActiveByMentor(ctx context.Context, mentorID string) ([]model.Session, error) {
	args := m.Called(ctx, mentorID)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) ListByMentor(ctx context.Context, mentorID string, limit, offset int) ([]model.Session, error) {
	args := m.Called(ctx, mentorID, limit, offset)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) ListByAttendee(ctx context.Context, attendeeID string, limit, offset int) ([]model.Session, error) {
	args := m.Called(ctx, attendeeID, limit, offset)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) UpdateSchedule(ctx context.Context, id string, startAt, endAt time.Time, priceCents *int64, status model.SessionStatus, originalData *json.RawMessage, changedBy string) error {
	args := m.Called(ctx, id, startAt, endAt, priceCents, status, originalData, changedBy)
	return args.Error(0)
}

func (m *mockSessionRepo) SetPayment(ctx context.Context, id string, paymentID string) error {
	args := m.Called(ctx, id, paymentID)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkCancelled(ctx context.Context, id string, refundedAt *time.Time) error {
	args := m.Called(ctx, id, refundedAt)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkRefunded(ctx context.Context, id string, refundedAt time.Time) error {
	args := m.Called(ctx, id, refundedAt)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkPayoutAvailable(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) MarkPaidOut(ctx context.Context, id string, paidOutAt time.Time) error {
	args := m.Called(ctx, id, paidOutAt)
	return args.Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteExpiredDrafts(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) ExpireInvited(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) CompleteConfirmed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) FindPayoutCandidates(ctx context.Context, endedBefore time.Time) ([]model.Session, error) {
	args := m.Called(ctx, endedBefore)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return m }

func newSessionHandler(sessions *mockSessionRepo, mentors *mockMentorRepo, clients *mockClientRepo) *SessionHandler {
	settlement := service.NewSettlementService(
		noTx{}, sessions, nil,
		service.NewWalletService(nil, nil),
		notify.NopNotifier{}, 48*time.Hour, 720*time.Hour,
	)
	return NewSessionHandler(settlement, sessions, mentors, clients)
}

func settlementRequest(action, sessionID string, account *model.Account) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/"+action, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", sessionID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if account != nil {
		ctx = withAccount(ctx, account)
	}
	return req.WithContext(ctx)
}

func TestSessionHandler_Cancel(t *testing.T) {
	attendee := "client-1"
	sessionID := uuid.NewString()
	confirmed := &model.Session{
		ID:         sessionID,
		MentorID:   "mentor-1",
		AttendeeID: &attendee,
		Status:     model.SessionStatusConfirmed,
	}

	t.Run("returns 401 when no account in context", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(confirmed, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), new(mockClientRepo))

		rec := httptest.NewRecorder()
		handler.Cancel(rec, settlementRequest("cancel", sessionID, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("returns 404 when session does not exist", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(nil, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), new(mockClientRepo))

		account := &model.Account{ID: "acc-1", Role: model.RoleClient}
		rec := httptest.NewRecorder()
		handler.Cancel(rec, settlementRequest("cancel", sessionID, account))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects a client who is not the attendee", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(confirmed, nil)
		clients := new(mockClientRepo)
		clients.On("FindByAccountID", mock.Anything, "acc-other").
			Return(&model.ClientProfile{ID: "client-other", AccountID: "acc-other"}, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), clients)

		account := &model.Account{ID: "acc-other", Role: model.RoleClient}
		rec := httptest.NewRecorder()
		handler.Cancel(rec, settlementRequest("cancel", sessionID, account))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "FORBIDDEN")
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("rejects a mentor who does not host the session", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(confirmed, nil)
		mentors := new(mockMentorRepo)
		mentors.On("FindByAccountID", mock.Anything, "acc-m2").
			Return(&model.MentorProfile{ID: "mentor-2", AccountID: "acc-m2"}, nil)
		handler := newSessionHandler(sessions, mentors, new(mockClientRepo))

		account := &model.Account{ID: "acc-m2", Role: model.RoleMentor}
		rec := httptest.NewRecorder()
		handler.Cancel(rec, settlementRequest("cancel", sessionID, account))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})
}

func TestSessionHandler_Refund(t *testing.T) {
	attendee := "client-1"
	sessionID := uuid.NewString()
	completed := &model.Session{
		ID:         sessionID,
		MentorID:   "mentor-1",
		AttendeeID: &attendee,
		Status:     model.SessionStatusCompleted,
	}

	t.Run("rejects the hosting mentor", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(completed, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), new(mockClientRepo))

		account := &model.Account{ID: "acc-m1", Role: model.RoleMentor}
		rec := httptest.NewRecorder()
		handler.Refund(rec, settlementRequest("refund", sessionID, account))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})

	t.Run("rejects a client who is not the attendee", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(completed, nil)
		clients := new(mockClientRepo)
		clients.On("FindByAccountID", mock.Anything, "acc-other").
			Return(&model.ClientProfile{ID: "client-other", AccountID: "acc-other"}, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), clients)

		account := &model.Account{ID: "acc-other", Role: model.RoleClient}
		rec := httptest.NewRecorder()
		handler.Refund(rec, settlementRequest("refund", sessionID, account))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})
}

func TestSessionHandler_Decline(t *testing.T) {
	attendee := "client-1"
	sessionID := uuid.NewString()
	invited := &model.Session{
		ID:         sessionID,
		MentorID:   "mentor-1",
		AttendeeID: &attendee,
		Status:     model.SessionStatusInvited,
	}

	t.Run("attendee can decline their invitation", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(invited, nil)
		sessions.On("FindByIDForUpdate", mock.Anything, sessionID).Return(invited, nil)
		sessions.On("MarkCancelled", mock.Anything, sessionID, mock.Anything).Return(nil)
		clients := new(mockClientRepo)
		clients.On("FindByAccountID", mock.Anything, "acc-c1").
			Return(&model.ClientProfile{ID: attendee, AccountID: "acc-c1"}, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), clients)

		account := &model.Account{ID: "acc-c1", Role: model.RoleClient}
		rec := httptest.NewRecorder()
		handler.Decline(rec, settlementRequest("decline", sessionID, account))

		assert.Equal(t, http.StatusOK, rec.Code)
		sessions.AssertExpectations(t)
	})

	t.Run("rejects the hosting mentor", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		sessions.On("FindByID", mock.Anything, sessionID).Return(invited, nil)
		handler := newSessionHandler(sessions, new(mockMentorRepo), new(mockClientRepo))

		account := &model.Account{ID: "acc-m1", Role: model.RoleMentor}
		rec := httptest.NewRecorder()
		handler.Decline(rec, settlementRequest("decline", sessionID, account))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		sessions.AssertNotCalled(t, "FindByIDForUpdate", mock.Anything, mock.Anything)
	})
}
