package payment

import (
	"context"
	"errors"
	"testing"

	"pulsepoint/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher map[string]*Intent

func (f fakeFetcher) FetchIntent(_ context.Context, id string) (*Intent, error) {
	intent, ok := f[id]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return intent, nil
}

func TestVerify(t *testing.T) {
	fetcher := fakeFetcher{
		"pi_ok":      {ID: "pi_ok", Amount: 2500, Currency: "usd", Status: "succeeded"},
		"pi_pending": {ID: "pi_pending", Amount: 2500, Currency: "usd", Status: "requires_payment_method"},
		"pi_eur":     {ID: "pi_eur", Amount: 2500, Currency: "eur", Status: "succeeded"},
	}
	v := NewVerifier(fetcher, "USD")
	ctx := context.Background()

	intent, err := v.Verify(ctx, "pi_ok", 2500)
	require.NoError(t, err)
	assert.Equal(t, "pi_ok", intent.ID)

	_, err = v.Verify(ctx, "pi_ok", 1000)
	assert.ErrorIs(t, err, types.ErrPaymentNotSucceeded)

	_, err = v.Verify(ctx, "pi_pending", 2500)
	assert.ErrorIs(t, err, types.ErrPaymentNotSucceeded)

	_, err = v.Verify(ctx, "pi_eur", 2500)
	assert.ErrorIs(t, err, types.ErrPaymentNotSucceeded)

	_, err = v.Verify(ctx, "", 2500)
	assert.ErrorIs(t, err, types.ErrPaymentNotSucceeded)

	_, err = v.Verify(ctx, "pi_missing", 2500)
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrPaymentNotSucceeded)
}

func TestNewStripeFetcherRequiresKey(t *testing.T) {
	_, err := NewStripeFetcher("")
	assert.Error(t, err)
}
