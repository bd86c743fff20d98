package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
)

// MockVerifier is a mock implementation of payment.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) PaymentCallback(ctx context.Context, params backend.CallbackParams) (*backend.CallbackResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*backend.CallbackResult), args.Error(1)
}
