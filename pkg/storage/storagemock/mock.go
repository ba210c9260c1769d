package storagemock

import (
	"context"
	"time"

	"github.com/envoylog/envoylog/pkg/storage"
	"github.com/envoylog/envoylog/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetDailyHistory(ctx context.Context, day time.Time) (*types.DailyHistory, error) {
	args := m.Called(ctx, day)
	if h, ok := args.Get(0).(*types.DailyHistory); ok {
		return h, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) PutDailyHistory(ctx context.Context, day time.Time, h *types.DailyHistory) error {
	args := m.Called(ctx, day, h)
	return args.Error(0)
}

func (m *MockDatabase) GetManifest(ctx context.Context) (types.Manifest, error) {
	args := m.Called(ctx)
	if mf, ok := args.Get(0).(types.Manifest); ok {
		return mf, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDatabase) PutManifest(ctx context.Context, mf types.Manifest) error {
	args := m.Called(ctx, mf)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
