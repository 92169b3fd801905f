package sessions

import (
	"context"

	"github.com/mghextreme/blu-presenter-sub000/internal/content"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, orgID, sessionID string) (*Record, error) {
	args := m.Called(ctx, orgID, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Record), args.Error(1)
}

func (m *MockStore) SaveSchedule(ctx context.Context, orgID, sessionID string, schedule []content.ScheduleItem) error {
	args := m.Called(ctx, orgID, sessionID, schedule)
	return args.Error(0)
}

func (m *MockStore) SaveScheduleItem(ctx context.Context, orgID, sessionID string, item *content.ScheduleItem) error {
	args := m.Called(ctx, orgID, sessionID, item)
	return args.Error(0)
}

func (m *MockStore) SaveSelection(ctx context.Context, orgID, sessionID string, sel content.Selection) error {
	args := m.Called(ctx, orgID, sessionID, sel)
	return args.Error(0)
}
