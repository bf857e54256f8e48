// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/dazno/dazno-umbrel/internal/auth"
)

// MockSessionRepository is a mock implementation of auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a mock that asserts its expectations on cleanup.
func NewMockSessionRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ret := m.Called(ctx, session)
	return ret.Error(0)
}

func (m *MockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	ret := m.Called(ctx, tokenHash)
	var session *auth.Session
	if v := ret.Get(0); v != nil {
		session = v.(*auth.Session)
	}
	return session, ret.Error(1)
}

func (m *MockSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	ret := m.Called(ctx, id)
	return ret.Error(0)
}

func (m *MockSessionRepository) DeleteByUser(ctx context.Context, userID, keep ulid.ULID) (int64, error) {
	ret := m.Called(ctx, userID, keep)
	return ret.Get(0).(int64), ret.Error(1)
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	return ret.Get(0).(int64), ret.Error(1)
}

var _ auth.SessionRepository = (*MockSessionRepository)(nil)
