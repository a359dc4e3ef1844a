package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageFailure = errors.New("storage error")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	args := m.Called(ctx, userID)
	state, _ := args.Get(0).(*UserState)
	return state, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	args := m.Called(ctx, userID, state)
	return args.Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockStorage) ListStates(ctx context.Context) ([]*UserState, error) {
	args := m.Called(ctx)
	states, _ := args.Get(0).([]*UserState)
	return states, args.Error(1)
}

func TestMachine_TransitionTo(t *testing.T) {
	ctx := context.Background()
	userID := int64(42)
	log := testLogger()

	testCases := []struct {
		name        string
		setupMocks  func(ms *mockStorage)
		newState    State
		expectedErr error
	}{
		{
			name: "awaiting phone to complete",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&UserState{CurrentState: StateAwaitingPhone}, nil).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *UserState) bool {
					return state.CurrentState == StateComplete
				})).Return(nil).Once()
			},
			newState:    StateComplete,
			expectedErr: nil,
		},
		{
			name: "unknown user enters awaiting phone",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return((*UserState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *UserState) bool {
					return state.CurrentState == StateAwaitingPhone
				})).Return(nil).Once()
			},
			newState:    StateAwaitingPhone,
			expectedErr: nil,
		},
		{
			name: "expired state completes directly",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return((*UserState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *UserState) bool {
					return state.CurrentState == StateComplete
				})).Return(nil).Once()
			},
			newState:    StateComplete,
			expectedErr: nil,
		},
		{
			name: "complete cannot regress to awaiting phone",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&UserState{CurrentState: StateComplete}, nil).Once()
			},
			newState:    StateAwaitingPhone,
			expectedErr: ErrInvalidTransition,
		},
		{
			name: "repeated completion is idempotent",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&UserState{CurrentState: StateComplete}, nil).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *UserState) bool {
					return state.CurrentState == StateComplete
				})).Return(nil).Once()
			},
			newState:    StateComplete,
			expectedErr: nil,
		},
		{
			name: "storage failure propagates",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return((*UserState)(nil), errStorageFailure).Once()
			},
			newState:    StateComplete,
			expectedErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			fsm := NewMachine(ms, log, nil)
			err := fsm.TransitionTo(ctx, userID, tc.newState)

			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestMachine_SetState(t *testing.T) {
	ctx := context.Background()
	userID := int64(11)

	ms := &mockStorage{}
	ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *UserState) bool {
		return state.CurrentState == StateAwaitingPhone && state.UserID == userID
	})).Return(nil).Once()

	fsm := NewMachine(ms, testLogger(), nil)
	require.NoError(t, fsm.SetState(ctx, userID, StateAwaitingPhone))

	ms.AssertExpectations(t)
}

func TestMachine_ClearState(t *testing.T) {
	ctx := context.Background()
	userID := int64(7)

	ms := &mockStorage{}
	ms.On("ClearState", mock.Anything, userID).Return(nil).Once()

	fsm := NewMachine(ms, testLogger(), nil)
	require.NoError(t, fsm.ClearState(ctx, userID))

	ms.AssertExpectations(t)
}
