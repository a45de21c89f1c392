// Package payment confirms with the payment provider that a donation was
// actually paid before it is recorded.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pulsepoint/pkg/types"

	"github.com/stripe/stripe-go/v84"
)

// Intent is the part of a provider payment intent the portal checks.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

type IntentFetcher interface {
	FetchIntent(ctx context.Context, id string) (*Intent, error)
}

type Verifier struct {
	fetcher  IntentFetcher
	currency string
}

func NewVerifier(fetcher IntentFetcher, currency string) *Verifier {
	return &Verifier{fetcher: fetcher, currency: strings.ToLower(currency)}
}

// Verify checks that intent id succeeded for exactly amountCents in the
// configured currency. Any mismatch is ErrPaymentNotSucceeded.
func (v *Verifier) Verify(ctx context.Context, id string, amountCents int64) (*Intent, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: missing payment intent", types.ErrPaymentNotSucceeded)
	}

	intent, err := v.fetcher.FetchIntent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch payment intent %s: %w", id, err)
	}

	if intent.Status != string(stripe.PaymentIntentStatusSucceeded) {
		return nil, fmt.Errorf("%w: intent %s is %s", types.ErrPaymentNotSucceeded, id, intent.Status)
	}
	if intent.Amount != amountCents {
		return nil, fmt.Errorf("%w: intent %s amount %d, expected %d", types.ErrPaymentNotSucceeded, id, intent.Amount, amountCents)
	}
	if v.currency != "" && !strings.EqualFold(intent.Currency, v.currency) {
		return nil, fmt.Errorf("%w: intent %s currency %s", types.ErrPaymentNotSucceeded, id, intent.Currency)
	}

	return intent, nil
}

type stripeFetcher struct {
	client *stripe.Client
}

// NewStripeFetcher reads payment intents through the Stripe API.
func NewStripeFetcher(secretKey string) (IntentFetcher, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	return &stripeFetcher{client: stripe.NewClient(secretKey)}, nil
}

func (f *stripeFetcher) FetchIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := f.client.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}

	return &Intent{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Status:   string(pi.Status),
	}, nil
}
