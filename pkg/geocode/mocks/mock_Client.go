// Package mocks provides test doubles for the geocode client.
package mocks

import (
	"context"

	geocode "github.com/sells-group/listings-cli/pkg/geocode"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Lookup provides a mock function with given fields: ctx, country, codes
func (_m *MockClient) Lookup(ctx context.Context, country string, codes []string) (map[string]geocode.Centroid, error) {
	ret := _m.Called(ctx, country, codes)

	if len(ret) == 0 {
		panic("no return value specified for Lookup")
	}

	var r0 map[string]geocode.Centroid
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []string) (map[string]geocode.Centroid, error)); ok {
		return rf(ctx, country, codes)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, []string) map[string]geocode.Centroid); ok {
		r0 = rf(ctx, country, codes)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(map[string]geocode.Centroid)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, []string) error); ok {
		r1 = rf(ctx, country, codes)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
