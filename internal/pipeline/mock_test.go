package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/geocode"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, run model.Run, listings []model.Listing) (*model.Run, error) {
	args := m.Called(ctx, run, listings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) LatestRun(ctx context.Context) (*model.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) RunListings(ctx context.Context, runID string) ([]model.Listing, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Listing), args.Error(1)
}

func (m *mockStore) GetCentroids(ctx context.Context, country string, codes []string) (map[string]geocode.Centroid, error) {
	args := m.Called(ctx, country, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]geocode.Centroid), args.Error(1)
}

func (m *mockStore) PutCentroids(ctx context.Context, country string, centroids map[string]geocode.Centroid) error {
	return m.Called(ctx, country, centroids).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
