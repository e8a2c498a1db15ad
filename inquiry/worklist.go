package inquiry

import (
	"context"
	"sort"
	"time"

	"inquiryflow/auth"
)

// Worklist splits the inquiries a caller can see into those waiting on them
// and the rest.
type Worklist struct {
	Urgent []Inquiry
	Misc   []Inquiry
}

// BuildWorklist classifies inquiries for caller at now. Pending slots are
// judged with the Slot Timer Policy, so expired requests no longer count.
func BuildWorklist(caller Caller, inquiries []Inquiry, now time.Time) Worklist {
	var wl Worklist
	for _, inq := range inquiries {
		switch bucket(caller, inq.Status, now) {
		case bucketUrgent:
			wl.Urgent = append(wl.Urgent, inq)
		case bucketMisc:
			wl.Misc = append(wl.Misc, inq)
		}
	}
	sort.Slice(wl.Urgent, func(i, j int) bool { return wl.Urgent[i].ID < wl.Urgent[j].ID })
	sort.Slice(wl.Misc, func(i, j int) bool { return wl.Misc[i].ID < wl.Misc[j].ID })
	return wl
}

type worklistBucket int

const (
	bucketNone worklistBucket = iota
	bucketUrgent
	bucketMisc
)

func bucket(caller Caller, s Status, now time.Time) worklistBucket {
	switch caller.Role {
	case auth.RoleAdmin:
		switch st := s.(type) {
		case Unassigned, FreelancerAssigned:
			return bucketUrgent
		case CoordinatorRequested:
			if IsCoordinatorRequestExpired(st, now) {
				return bucketUrgent
			}
			return bucketMisc
		default:
			return bucketMisc
		}
	case auth.RoleCoordinator:
		switch st := s.(type) {
		case CoordinatorRequested:
			if st.CoordinatorID == caller.ID {
				return bucketUrgent
			}
		case CoordinatorAccepted:
			if st.CoordinatorID == caller.ID {
				return bucketUrgent
			}
		case FreelancerRequested:
			if st.CoordinatorID != caller.ID {
				return bucketNone
			}
			if HasPending(st, now) {
				return bucketMisc
			}
			return bucketUrgent
		case FreelancerAssigned:
			if st.CoordinatorID == caller.ID {
				return bucketMisc
			}
		}
	case auth.RoleFreelancer:
		switch st := s.(type) {
		case FreelancerRequested:
			if idx := st.IndexOf(caller.ID); idx >= 0 && IsPending(*st.Slots[idx], now) {
				return bucketUrgent
			}
		case FreelancerAssigned:
			if st.FreelancerID == caller.ID {
				return bucketMisc
			}
		}
	}
	return bucketNone
}

// Worklist loads every live inquiry and classifies it for caller.
func (s *Service) Worklist(ctx context.Context, caller Caller) (Worklist, error) {
	var all []Inquiry
	for _, label := range Labels() {
		list, err := s.store.ListByStatus(ctx, label)
		if err != nil {
			return Worklist{}, err
		}
		all = append(all, list...)
	}
	return BuildWorklist(caller, all, s.engine.Now()), nil
}
