package inquiry

import (
	"strings"
	"time"
	"unicode/utf8"

	"inquiryflow/auth"
)

const (
	maxNameLength          = 50
	maxServiceLength       = 100
	maxContactNumberLength = 15
)

// Details are the immutable descriptive fields captured at creation.
type Details struct {
	Name          string
	Description   string
	CreatedAt     time.Time
	Deadline      time.Time
	Service       string
	ContactNumber string
	DeliveryArea  string
	Reference     bool
}

// Validate checks the descriptive fields against the column limits.
func (d Details) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return errorf(ErrInvalidAction, "name required")
	case utf8.RuneCountInString(d.Name) > maxNameLength:
		return errorf(ErrInvalidAction, "name longer than %d characters", maxNameLength)
	case strings.TrimSpace(d.Service) == "":
		return errorf(ErrInvalidAction, "service required")
	case utf8.RuneCountInString(d.Service) > maxServiceLength:
		return errorf(ErrInvalidAction, "service longer than %d characters", maxServiceLength)
	case strings.TrimSpace(d.ContactNumber) == "":
		return errorf(ErrInvalidAction, "contact number required")
	case utf8.RuneCountInString(d.ContactNumber) > maxContactNumberLength:
		return errorf(ErrInvalidAction, "contact number longer than %d characters", maxContactNumberLength)
	case !d.Deadline.IsZero() && !d.CreatedAt.IsZero() && d.Deadline.Before(d.CreatedAt):
		return errorf(ErrInvalidAction, "deadline before creation time")
	}
	return nil
}

// Inquiry is a service request tracked through the workflow. Version is the
// optimistic concurrency token; it changes on every successful write.
type Inquiry struct {
	ID      int64
	Details Details
	Status  Status
	Version int64
}

// Caller is the resolved identity acting on an inquiry.
type Caller struct {
	ID   string
	Role auth.Role
}
