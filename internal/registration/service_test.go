package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arthall/onboard-bot/internal/domain"
	apperrors "github.com/arthall/onboard-bot/internal/errors"
	"github.com/arthall/onboard-bot/internal/storage"
	"github.com/arthall/onboard-bot/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) UserExists(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) AddUser(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStore) SavePhone(ctx context.Context, id int64, phone string) error {
	return m.Called(ctx, id, phone).Error(0)
}

func (m *mockStore) AllUserIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockStore) GiveawayNumber(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Stats(ctx context.Context) (*domain.Stats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*domain.Stats)
	return stats, args.Error(1)
}

func (m *mockStore) ExportUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]domain.User)
	return users, args.Error(1)
}

func (m *mockStore) Setting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockStore) SetSetting(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *mockStore) AssignMissingNumbers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

func newTestService(store storage.Store) (*Service, workflow.Machine) {
	fsm := workflow.NewMachine(workflow.NewMemoryStorage(), testLogger(), nil)
	return NewService(store, fsm, nil, testLogger()), fsm
}

func TestFirstContact_NewUser(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("UserExists", mock.Anything, int64(111)).Return(false, nil).Once()
	store.On("AddUser", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.TelegramID == 111 && !u.JoinedAt.IsZero()
	})).Return(nil).Once()
	store.On("GiveawayNumber", mock.Anything, int64(111)).Return(1, nil).Once()

	svc, fsm := newTestService(store)

	result, err := svc.FirstContact(ctx, &domain.User{TelegramID: 111, FirstName: "Anna"})
	require.NoError(t, err)
	require.False(t, result.AlreadyRegistered)
	require.Equal(t, 1, result.GiveawayNumber)

	state, err := fsm.GetState(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, workflow.StateAwaitingPhone, state.CurrentState)

	store.AssertExpectations(t)
}

func TestFirstContact_AlreadyRegistered(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("UserExists", mock.Anything, int64(111)).Return(true, nil).Once()
	store.On("GiveawayNumber", mock.Anything, int64(111)).Return(5, nil).Once()

	svc, _ := newTestService(store)

	result, err := svc.FirstContact(ctx, &domain.User{TelegramID: 111})
	require.NoError(t, err)
	require.True(t, result.AlreadyRegistered)
	require.Equal(t, 5, result.GiveawayNumber)

	// AddUser must not be called for a returning user.
	store.AssertNotCalled(t, "AddUser", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestFirstContact_StoreFailureIsHard(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("UserExists", mock.Anything, int64(111)).Return(false, nil).Once()
	store.On("AddUser", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	svc, _ := newTestService(store)

	result, err := svc.FirstContact(ctx, &domain.User{TelegramID: 111})
	require.Error(t, err)
	require.Nil(t, result)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.True(t, appErr.Retryable)

	store.AssertExpectations(t)
}

func TestSharePhone_RejectsRelayedContact(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	svc, _ := newTestService(store)

	err := svc.SharePhone(ctx, 111, 999, "+15551234567")
	require.ErrorIs(t, err, ErrContactMismatch)

	// No phone recorded for either identity.
	store.AssertNotCalled(t, "SavePhone", mock.Anything, mock.Anything, mock.Anything)
}

func TestSharePhone_RecordsAndCompletes(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("SavePhone", mock.Anything, int64(111), "+15551234567").Return(nil).Once()

	svc, fsm := newTestService(store)
	require.NoError(t, fsm.SetState(ctx, 111, workflow.StateAwaitingPhone))

	require.NoError(t, svc.SharePhone(ctx, 111, 111, "+15551234567"))

	state, err := fsm.GetState(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, workflow.StateComplete, state.CurrentState)

	store.AssertExpectations(t)
}

func TestSharePhone_UnknownUser(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("SavePhone", mock.Anything, int64(111), "+15551234567").
		Return(storage.ErrUserNotFound).Once()

	svc, _ := newTestService(store)

	err := svc.SharePhone(ctx, 111, 111, "+15551234567")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.False(t, appErr.Retryable)

	store.AssertExpectations(t)
}

func TestSkip_CompletesWorkflow(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}

	svc, fsm := newTestService(store)
	require.NoError(t, fsm.SetState(ctx, 111, workflow.StateAwaitingPhone))

	require.NoError(t, svc.Skip(ctx, 111))

	state, err := fsm.GetState(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, workflow.StateComplete, state.CurrentState)

	// Skipping again stays idempotent.
	require.NoError(t, svc.Skip(ctx, 111))
}

func TestGiveawayNumber_FallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	store.On("GiveawayNumber", mock.Anything, int64(111)).Return(3, nil).Once()

	svc, _ := newTestService(store)

	number, err := svc.GiveawayNumber(ctx, 111)
	require.NoError(t, err)
	require.Equal(t, 3, number)

	store.AssertExpectations(t)
}
