package types

import (
	"fmt"
	"strings"
)

type BloodGroup string

var BloodGroups = []BloodGroup{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func (b BloodGroup) Valid() bool {
	for _, g := range BloodGroups {
		if g == b {
			return true
		}
	}
	return false
}

func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.ReplaceAll(s, " ", "")))
	if !g.Valid() {
		return "", fmt.Errorf("unknown blood group %q", s)
	}
	return g, nil
}

type DonationStatus string

const (
	DonationStatusPending    DonationStatus = "pending"
	DonationStatusInProgress DonationStatus = "inprogress"
	DonationStatusDone       DonationStatus = "done"
	DonationStatusCanceled   DonationStatus = "canceled"
)

var DonationStatuses = []DonationStatus{
	DonationStatusPending,
	DonationStatusInProgress,
	DonationStatusDone,
	DonationStatusCanceled,
}

// ParseDonationStatus maps every spelling the backend has been seen to use
// onto the canonical set.
func ParseDonationStatus(s string) (DonationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return DonationStatusPending, nil
	case "inprogress", "in progress", "in-progress", "in_progress":
		return DonationStatusInProgress, nil
	case "done", "completed", "complete":
		return DonationStatusDone, nil
	case "canceled", "cancelled":
		return DonationStatusCanceled, nil
	default:
		return "", fmt.Errorf("unknown donation status %q", s)
	}
}

func (s *DonationStatus) UnmarshalText(text []byte) error {
	status, err := ParseDonationStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

type DonationRequest struct {
	ID             string         `json:"_id,omitempty"`
	RequesterName  string         `json:"requesterName" form:"requester_name"`
	RequesterEmail string         `json:"requesterEmail" form:"requester_email"`
	RecipientName  string         `json:"recipientName" form:"recipient_name" validate:"required"`
	Division       string         `json:"division" form:"division" validate:"required"`
	District       string         `json:"district" form:"district" validate:"required"`
	Hospital       string         `json:"hospital" form:"hospital" validate:"required"`
	Address        string         `json:"address" form:"address" validate:"required"`
	BloodGroup     BloodGroup     `json:"bloodGroup" form:"blood_group" validate:"required,bloodgroup"`
	DonationDate   string         `json:"donationDate" form:"donation_date" validate:"required,datetime=2006-01-02"`
	DonationTime   string         `json:"donationTime" form:"donation_time" validate:"required,datetime=15:04"`
	Message        string         `json:"message" form:"message"`
	Status         DonationStatus `json:"status"`
	DonorName      string         `json:"donorName,omitempty"`
	DonorEmail     string         `json:"donorEmail,omitempty"`
}
