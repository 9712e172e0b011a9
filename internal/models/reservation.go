package models

import "time"

// Reservation books one unit of an Office's capacity for a time window.
type Reservation struct {
	ID          string    `json:"id" dynamodbav:"id"`
	OfficeID    string    `json:"officeId" dynamodbav:"officeId"`
	FromTime    time.Time `json:"fromTime" dynamodbav:"fromTime"`
	ToTime      time.Time `json:"toTime" dynamodbav:"toTime"`
	User        string    `json:"user" dynamodbav:"user"`
	WorkspaceID string    `json:"workspaceId,omitempty" dynamodbav:"workspaceId,omitempty"`
}

func (r *Reservation) DocumentID() string { return r.ID }

// PrepareCreate normalises a new reservation. defaultUser is used when the
// request does not name the user the reservation is for.
func (r *Reservation) PrepareCreate(defaultUser string) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.User == "" {
		r.User = defaultUser
	}

	var errs []string
	if r.OfficeID == "" {
		errs = append(errs, "officeId is required")
	}
	if r.User == "" {
		errs = append(errs, "user is required")
	}
	if r.FromTime.IsZero() || r.ToTime.IsZero() {
		errs = append(errs, "fromTime and toTime are required")
	} else if !r.FromTime.Before(r.ToTime) {
		errs = append(errs, "fromTime must be before toTime")
	}
	return validationError(errs)
}
