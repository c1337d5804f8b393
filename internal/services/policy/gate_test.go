package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagecrm/notify/internal/domain/preference"
)

type fakePrefRepo struct {
	pref *preference.Preference
	err  error
}

func (f *fakePrefRepo) GetOrCreate(_ context.Context, userID int64) (*preference.Preference, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.pref != nil {
		return f.pref, nil
	}
	return preference.Defaults(userID), nil
}

func (f *fakePrefRepo) Update(_ context.Context, _ int64, _ preference.Patch) (*preference.Preference, error) {
	return nil, errors.New("not implemented")
}

func TestGate_DefaultsAllowEverything(t *testing.T) {
	g := NewGate(&fakePrefRepo{}, true, zap.NewNop())

	require.True(t, g.ShouldShowInApp(context.Background(), 1, preference.CategoryTripUpcoming))
	require.True(t, g.ShouldSendEmail(context.Background(), 1, preference.CategoryPaymentDue))
}

func TestGate_MasterSwitchOverridesCategoryFlag(t *testing.T) {
	p := preference.Defaults(7)
	p.EmailEnabled = false
	p.PaymentDueEmail = true
	g := NewGate(&fakePrefRepo{pref: p}, true, zap.NewNop())

	require.False(t, g.ShouldSendEmail(context.Background(), 7, preference.CategoryPaymentDue))
	require.True(t, g.ShouldShowInApp(context.Background(), 7, preference.CategoryPaymentDue))
}

func TestGate_CategoryFlagOff(t *testing.T) {
	p := preference.Defaults(7)
	p.TripCreatedInApp = false
	g := NewGate(&fakePrefRepo{pref: p}, true, zap.NewNop())

	require.False(t, g.ShouldShowInApp(context.Background(), 7, preference.CategoryTripCreated))
	require.True(t, g.ShouldSendEmail(context.Background(), 7, preference.CategoryTripCreated))
}

func TestGate_UnknownCategoryDefaultsAllowed(t *testing.T) {
	g := NewGate(&fakePrefRepo{}, true, zap.NewNop())

	require.True(t, g.ShouldShowInApp(context.Background(), 1, preference.Category("loyalty_points")))
	require.True(t, g.ShouldSendEmail(context.Background(), 1, preference.Category("loyalty_points")))
}

func TestGate_StoreFailureFollowsFailMode(t *testing.T) {
	boom := errors.New("connection refused")

	open := NewGate(&fakePrefRepo{err: boom}, true, zap.NewNop())
	require.True(t, open.ShouldSendEmail(context.Background(), 1, preference.CategoryPaymentDue))

	closed := NewGate(&fakePrefRepo{err: boom}, false, zap.NewNop())
	require.False(t, closed.ShouldSendEmail(context.Background(), 1, preference.CategoryPaymentDue))
}
