// Package mocks provides test doubles for the matching package.
package mocks

import (
	"context"

	model "github.com/isuku/isuku-dispatch/internal/model"
	store "github.com/isuku/isuku-dispatch/internal/store"
	mock "github.com/stretchr/testify/mock"
)

// MockRecords is a mock type for the Records interface.
type MockRecords struct {
	mock.Mock
}

// QueryCollectors provides a mock function with given fields: ctx, q
func (_m *MockRecords) QueryCollectors(ctx context.Context, q store.CollectorQuery) ([]model.Collector, error) {
	ret := _m.Called(ctx, q)

	if len(ret) == 0 {
		panic("no return value specified for QueryCollectors")
	}

	var r0 []model.Collector
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.CollectorQuery) ([]model.Collector, error)); ok {
		return rf(ctx, q)
	}
	if rf, ok := ret.Get(0).(func(context.Context, store.CollectorQuery) []model.Collector); ok {
		r0 = rf(ctx, q)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.Collector)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, store.CollectorQuery) error); ok {
		r1 = rf(ctx, q)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// QueryPickups provides a mock function with given fields: ctx, q
func (_m *MockRecords) QueryPickups(ctx context.Context, q store.PickupQuery) ([]model.PickupRequest, error) {
	ret := _m.Called(ctx, q)

	if len(ret) == 0 {
		panic("no return value specified for QueryPickups")
	}

	var r0 []model.PickupRequest
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.PickupQuery) ([]model.PickupRequest, error)); ok {
		return rf(ctx, q)
	}
	if rf, ok := ret.Get(0).(func(context.Context, store.PickupQuery) []model.PickupRequest); ok {
		r0 = rf(ctx, q)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.PickupRequest)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, store.PickupQuery) error); ok {
		r1 = rf(ctx, q)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ClaimPickup provides a mock function with given fields: ctx, c
func (_m *MockRecords) ClaimPickup(ctx context.Context, c store.Claim) (*model.Assignment, error) {
	ret := _m.Called(ctx, c)

	if len(ret) == 0 {
		panic("no return value specified for ClaimPickup")
	}

	var r0 *model.Assignment
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.Claim) (*model.Assignment, error)); ok {
		return rf(ctx, c)
	}
	if rf, ok := ret.Get(0).(func(context.Context, store.Claim) *model.Assignment); ok {
		r0 = rf(ctx, c)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.Assignment)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, store.Claim) error); ok {
		r1 = rf(ctx, c)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockRecords creates a new instance of MockRecords. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockRecords(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRecords {
	m := &MockRecords{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
