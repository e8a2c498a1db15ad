package inquiry

import "time"

// Expiry is lazy: nothing here schedules work. Callers consult the policy
// whenever they read a status; the expiry package can optionally push the
// same decision at each deadline.

// IsExpired reports whether a pending slot's countdown has elapsed. Slots
// that already carry a response never expire.
func IsExpired(slot Slot, now time.Time) bool {
	if slot.Response != nil {
		return false
	}
	return !now.Before(slot.Deadline())
}

// IsCoordinatorRequestExpired applies the same rule to a coordinator request.
func IsCoordinatorRequestExpired(s CoordinatorRequested, now time.Time) bool {
	return !now.Before(s.Deadline())
}

// EffectiveResponse folds expiry into the slot's response: an expired
// pending slot reads as an implicit rejection.
func EffectiveResponse(slot Slot, now time.Time) *bool {
	if slot.Response != nil {
		v := *slot.Response
		return &v
	}
	if IsExpired(slot, now) {
		return boolPtr(false)
	}
	return nil
}

// IsPending reports a slot still waiting on its freelancer.
func IsPending(slot Slot, now time.Time) bool {
	return EffectiveResponse(slot, now) == nil
}

// HasPending reports whether any filled slot is still pending.
func HasPending(s FreelancerRequested, now time.Time) bool {
	for _, slot := range s.Slots {
		if slot != nil && IsPending(*slot, now) {
			return true
		}
	}
	return false
}

// AllRejected reports whether every filled slot reads as rejected. A status
// with no filled slots is not considered rejected.
func AllRejected(s FreelancerRequested, now time.Time) bool {
	filled := 0
	for _, slot := range s.Slots {
		if slot == nil {
			continue
		}
		filled++
		r := EffectiveResponse(*slot, now)
		if r == nil || *r {
			return false
		}
	}
	return filled > 0
}

// ExpiredSlots lists slot indexes that are pending but past their deadline.
func ExpiredSlots(s FreelancerRequested, now time.Time) []int {
	var out []int
	for i, slot := range s.Slots {
		if slot != nil && IsExpired(*slot, now) {
			out = append(out, i)
		}
	}
	return out
}

// NextDeadline returns the earliest pending deadline on the status, if any.
func NextDeadline(s Status) (time.Time, bool) {
	switch st := s.(type) {
	case CoordinatorRequested:
		return st.Deadline(), true
	case FreelancerRequested:
		var (
			next  time.Time
			found bool
		)
		for _, slot := range st.Slots {
			if slot == nil || slot.Response != nil {
				continue
			}
			if d := slot.Deadline(); !found || d.Before(next) {
				next, found = d, true
			}
		}
		return next, found
	default:
		return time.Time{}, false
	}
}
