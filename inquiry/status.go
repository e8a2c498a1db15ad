package inquiry

import (
	"sort"
	"strings"
	"time"
)

// Label is the wire discriminant of a Status variant. It is used for
// serialization and store filtering only; the engine dispatches on the
// concrete variant type.
type Label string

const (
	LabelUnassigned           Label = "Unassigned"
	LabelCoordinatorRequested Label = "CoordinatorRequested"
	LabelCoordinatorAccepted  Label = "CoordinatorAccepted"
	LabelFreelancerRequested  Label = "FreelancerRequested"
	LabelFreelancerAssigned   Label = "FreelancerAssigned"
	LabelInquiryResolved      Label = "InquiryResolved"
)

// MaxSlots is the number of concurrent freelancer candidacies an inquiry can hold.
const MaxSlots = 3

// Labels returns every status label in lifecycle order.
func Labels() []Label {
	return []Label{
		LabelUnassigned,
		LabelCoordinatorRequested,
		LabelCoordinatorAccepted,
		LabelFreelancerRequested,
		LabelFreelancerAssigned,
		LabelInquiryResolved,
	}
}

// ParseLabel validates a raw label string.
func ParseLabel(raw string) (Label, error) {
	for _, l := range Labels() {
		if string(l) == raw {
			return l, nil
		}
	}
	return "", errorf(ErrInvalidStatus, "unknown status label %q", raw)
}

// Status is the closed set of lifecycle phases an inquiry can be in.
type Status interface {
	Label() Label
	clone() Status
}

// Unassigned is the initial status: no coordinator engaged.
type Unassigned struct{}

// CoordinatorRequested waits on a single coordinator's response.
type CoordinatorRequested struct {
	CoordinatorID string
	RequestedAt   time.Time
	Countdown     time.Duration
}

// CoordinatorAccepted means a coordinator owns the inquiry but no freelancer
// has been asked yet (or every candidate declined).
type CoordinatorAccepted struct {
	CoordinatorID string
}

// FreelancerRequested holds up to MaxSlots freelancer candidacies, filled
// left to right.
type FreelancerRequested struct {
	CoordinatorID string
	Slots         [MaxSlots]*Slot
}

// FreelancerAssigned binds one freelancer to the inquiry.
type FreelancerAssigned struct {
	CoordinatorID string
	FreelancerID  string
	Tags          TagSet
}

// InquiryResolved is terminal.
type InquiryResolved struct {
	CoordinatorID string
	FreelancerID  string
	Tags          TagSet
}

func (Unassigned) Label() Label           { return LabelUnassigned }
func (CoordinatorRequested) Label() Label { return LabelCoordinatorRequested }
func (CoordinatorAccepted) Label() Label  { return LabelCoordinatorAccepted }
func (FreelancerRequested) Label() Label  { return LabelFreelancerRequested }
func (FreelancerAssigned) Label() Label   { return LabelFreelancerAssigned }
func (InquiryResolved) Label() Label      { return LabelInquiryResolved }

func (s Unassigned) clone() Status           { return s }
func (s CoordinatorRequested) clone() Status { return s }
func (s CoordinatorAccepted) clone() Status  { return s }

func (s FreelancerRequested) clone() Status {
	out := FreelancerRequested{CoordinatorID: s.CoordinatorID}
	for i, slot := range s.Slots {
		if slot != nil {
			c := slot.Clone()
			out.Slots[i] = &c
		}
	}
	return out
}

func (s FreelancerAssigned) clone() Status {
	s.Tags = s.Tags.Clone()
	return s
}

func (s InquiryResolved) clone() Status {
	s.Tags = s.Tags.Clone()
	return s
}

// CloneStatus returns a deep copy so callers can hand statuses across
// goroutines or store boundaries without aliasing slot pointers.
func CloneStatus(s Status) Status {
	if s == nil {
		return nil
	}
	return s.clone()
}

// Deadline is the instant after which the coordinator request lapses.
func (s CoordinatorRequested) Deadline() time.Time {
	return s.RequestedAt.Add(s.Countdown)
}

// NextFree returns the leftmost empty slot index.
func (s FreelancerRequested) NextFree() (int, bool) {
	for i, slot := range s.Slots {
		if slot == nil {
			return i, true
		}
	}
	return -1, false
}

// IndexOf returns the slot index held by freelancerID, or -1.
func (s FreelancerRequested) IndexOf(freelancerID string) int {
	for i, slot := range s.Slots {
		if slot != nil && slot.FreelancerID == freelancerID {
			return i
		}
	}
	return -1
}

// Slot is one freelancer candidacy. Response is nil while pending.
type Slot struct {
	FreelancerID string
	RequestedAt  time.Time
	Countdown    time.Duration
	Response     *bool
}

// Deadline is RequestedAt + Countdown.
func (s Slot) Deadline() time.Time {
	return s.RequestedAt.Add(s.Countdown)
}

// Clone copies the slot including its response pointer target.
func (s Slot) Clone() Slot {
	if s.Response != nil {
		v := *s.Response
		s.Response = &v
	}
	return s
}

// TagSet is a sorted, de-duplicated set of tags. The empty set is nil.
type TagSet []string

// NewTagSet normalises tags: trims, drops blanks, de-duplicates and sorts.
func NewTagSet(tags ...string) TagSet {
	seen := make(map[string]struct{}, len(tags))
	out := make(TagSet, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Union merges two sets.
func (t TagSet) Union(other TagSet) TagSet {
	merged := make([]string, 0, len(t)+len(other))
	merged = append(merged, t...)
	merged = append(merged, other...)
	return NewTagSet(merged...)
}

// Contains reports membership.
func (t TagSet) Contains(tag string) bool {
	i := sort.SearchStrings(t, tag)
	return i < len(t) && t[i] == tag
}

func (t TagSet) Clone() TagSet {
	if t == nil {
		return nil
	}
	out := make(TagSet, len(t))
	copy(out, t)
	return out
}

func boolPtr(v bool) *bool { return &v }
