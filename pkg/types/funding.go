package types

import "time"

type Funding struct {
	ID              string    `json:"_id,omitempty"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	Email           string    `json:"email"`
	Amount          float64   `json:"amount" validate:"gt=0"`
	Date            time.Time `json:"date"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
}

type FundingPage struct {
	Fundings   []*Funding `json:"fundings"`
	TotalPages int        `json:"totalPages"`
	Page       int        `json:"page"`
}

type PaymentIntent struct {
	ClientSecret string `json:"clientSecret" validate:"required"`
}
