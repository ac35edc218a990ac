// Package mocks holds testify mocks shared across package tests.
package mocks

import (
	"context"

	"github.com/ace221390/work.ink/internal/events"
	"github.com/ace221390/work.ink/internal/flow"
	"github.com/ace221390/work.ink/internal/page"
	"github.com/stretchr/testify/mock"
)

// -- Store Mock --

// MockStore mocks store.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Set(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockStore) Get(ctx context.Context, key, def string) (string, error) {
	args := m.Called(ctx, key, def)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// -- Publisher Mock --

// MockPublisher mocks events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, r events.Report) error {
	return m.Called(ctx, r).Error(0)
}

// -- Page Handler Mock --

// MockHandler mocks a page handler as used by the engine.
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) Handle(ctx context.Context, p page.Page) flow.Outcome {
	args := m.Called(ctx, p)
	if fn, ok := args.Get(0).(func(context.Context, page.Page) flow.Outcome); ok {
		return fn(ctx, p)
	}
	return args.Get(0).(flow.Outcome)
}
