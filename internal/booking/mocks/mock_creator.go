package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
)

// MockCreator is a mock implementation of booking.Creator
type MockCreator struct {
	mock.Mock
}

func (m *MockCreator) CreateBooking(ctx context.Context, method backend.Method, payload backend.BookingPayload) (*backend.BookingCreated, error) {
	args := m.Called(ctx, method, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.BookingCreated), args.Error(1)
}
