package jobs

import (
	"context"
	"testing"
	"time"

	"whiteboard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) Create(ctx context.Context, link *model.LoginLink) error {
	return m.Called(ctx, link).Error(0)
}

func (m *mockLinks) Consume(ctx context.Context, tokenHash string, now time.Time) (*model.LoginLink, error) {
	args := m.Called(ctx, tokenHash, now)
	return nil, args.Error(1)
}

func (m *mockLinks) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func TestPurgeLoginLinks(t *testing.T) {
	links := new(mockLinks)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	links.On("PurgeExpired", mock.Anything, now).Return(int64(3), nil)

	s := NewScheduler(links)
	s.now = func() time.Time { return now }

	assert.Equal(t, int64(3), s.PurgeLoginLinks(context.Background()))
	links.AssertExpectations(t)
}

func TestPurgeLoginLinks_Error(t *testing.T) {
	links := new(mockLinks)
	links.On("PurgeExpired", mock.Anything, mock.Anything).Return(int64(0), assert.AnError)

	assert.Equal(t, int64(0), NewScheduler(links).PurgeLoginLinks(context.Background()))
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(new(mockLinks))

	assert.Error(t, s.Start("every now and then"))
}

func TestStart_RunsOnSchedule(t *testing.T) {
	links := new(mockLinks)
	ran := make(chan struct{}, 1)
	links.On("PurgeExpired", mock.Anything, mock.Anything).Return(int64(0), nil).Run(func(mock.Arguments) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	s := NewScheduler(links)
	assert.NoError(t, s.Start("@every 1s"))
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("purge did not run")
	}
}
