package inquiry

import (
	"encoding/json"
	"math"
	"time"
)

// StatusRecord is the flat persisted and wire form of a Status. Fields
// that do not apply to a label stay at their zero value. Times are unix
// milliseconds and countdowns are milliseconds.
type StatusRecord struct {
	Label              Label        `json:"label" bson:"label"`
	CoordinatorID      string       `json:"coordinatorId,omitempty" bson:"coordinatorId,omitempty"`
	RequestTime        int64        `json:"requestTime,omitempty" bson:"requestTime,omitempty"`
	CountdownMs        int64        `json:"countdownMs,omitempty" bson:"countdownMs,omitempty"`
	FreelancerID       string       `json:"freelancerId,omitempty" bson:"freelancerId,omitempty"`
	FreelancerRequests []SlotRecord `json:"freelancerRequests,omitempty" bson:"freelancerRequests,omitempty"`
	Tags               []string     `json:"tags,omitempty" bson:"tags,omitempty"`
}

// SlotRecord keeps Response without omitempty so null, false and true stay distinct.
type SlotRecord struct {
	EmployeeID  string `json:"employeeId" bson:"employeeId"`
	RequestTime int64  `json:"requestTime" bson:"requestTime"`
	CountdownMs int64  `json:"countdownMs" bson:"countdownMs"`
	Response    *bool  `json:"response" bson:"response"`
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// maxCountdownMs is the longest countdown a time.Duration can hold.
const maxCountdownMs = math.MaxInt64 / int64(time.Millisecond)

func countdownFromMillis(ms int64) (time.Duration, bool) {
	if ms > maxCountdownMs || ms < -maxCountdownMs {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// ToRecord flattens a status.
func ToRecord(s Status) (StatusRecord, error) {
	switch st := s.(type) {
	case Unassigned:
		return StatusRecord{Label: LabelUnassigned}, nil
	case CoordinatorRequested:
		return StatusRecord{
			Label:         LabelCoordinatorRequested,
			CoordinatorID: st.CoordinatorID,
			RequestTime:   toMillis(st.RequestedAt),
			CountdownMs:   st.Countdown.Milliseconds(),
		}, nil
	case CoordinatorAccepted:
		return StatusRecord{Label: LabelCoordinatorAccepted, CoordinatorID: st.CoordinatorID}, nil
	case FreelancerRequested:
		rec := StatusRecord{Label: LabelFreelancerRequested, CoordinatorID: st.CoordinatorID}
		for _, slot := range st.Slots {
			if slot == nil {
				break
			}
			var resp *bool
			if slot.Response != nil {
				resp = boolPtr(*slot.Response)
			}
			rec.FreelancerRequests = append(rec.FreelancerRequests, SlotRecord{
				EmployeeID:  slot.FreelancerID,
				RequestTime: toMillis(slot.RequestedAt),
				CountdownMs: slot.Countdown.Milliseconds(),
				Response:    resp,
			})
		}
		return rec, nil
	case FreelancerAssigned:
		return StatusRecord{
			Label:         LabelFreelancerAssigned,
			CoordinatorID: st.CoordinatorID,
			FreelancerID:  st.FreelancerID,
			Tags:          st.Tags.Clone(),
		}, nil
	case InquiryResolved:
		return StatusRecord{
			Label:         LabelInquiryResolved,
			CoordinatorID: st.CoordinatorID,
			FreelancerID:  st.FreelancerID,
			Tags:          st.Tags.Clone(),
		}, nil
	case nil:
		return StatusRecord{}, errorf(ErrInvalidStatus, "nil status")
	default:
		return StatusRecord{}, errorf(ErrInvalidStatus, "unsupported status %T", s)
	}
}

// FromRecord rebuilds a status and checks the fields its label requires.
func FromRecord(rec StatusRecord) (Status, error) {
	label, err := ParseLabel(string(rec.Label))
	if err != nil {
		return nil, err
	}

	requireCoordinator := func() error {
		if rec.CoordinatorID == "" {
			return errorf(ErrInvalidStatus, "%s without coordinatorId", label)
		}
		return nil
	}

	switch label {
	case LabelUnassigned:
		return Unassigned{}, nil
	case LabelCoordinatorRequested:
		if err := requireCoordinator(); err != nil {
			return nil, err
		}
		if rec.CountdownMs <= 0 {
			return nil, errorf(ErrInvalidStatus, "coordinator request without countdown")
		}
		countdown, ok := countdownFromMillis(rec.CountdownMs)
		if !ok {
			return nil, errorf(ErrInvalidStatus, "countdown %dms out of range", rec.CountdownMs)
		}
		return CoordinatorRequested{
			CoordinatorID: rec.CoordinatorID,
			RequestedAt:   fromMillis(rec.RequestTime),
			Countdown:     countdown,
		}, nil
	case LabelCoordinatorAccepted:
		if err := requireCoordinator(); err != nil {
			return nil, err
		}
		return CoordinatorAccepted{CoordinatorID: rec.CoordinatorID}, nil
	case LabelFreelancerRequested:
		if err := requireCoordinator(); err != nil {
			return nil, err
		}
		if len(rec.FreelancerRequests) == 0 {
			return nil, errorf(ErrInvalidStatus, "freelancer request without slots")
		}
		if len(rec.FreelancerRequests) > MaxSlots {
			return nil, errorf(ErrInvalidStatus, "%d freelancer requests exceed %d slots", len(rec.FreelancerRequests), MaxSlots)
		}
		st := FreelancerRequested{CoordinatorID: rec.CoordinatorID}
		seen := make(map[string]struct{}, len(rec.FreelancerRequests))
		for i, sr := range rec.FreelancerRequests {
			if sr.EmployeeID == "" {
				return nil, errorf(ErrInvalidStatus, "slot %d without employeeId", i)
			}
			if _, dup := seen[sr.EmployeeID]; dup {
				return nil, errorf(ErrInvalidStatus, "freelancer %s appears twice", sr.EmployeeID)
			}
			seen[sr.EmployeeID] = struct{}{}
			countdown, ok := countdownFromMillis(sr.CountdownMs)
			if !ok {
				return nil, errorf(ErrInvalidStatus, "slot %d countdown %dms out of range", i, sr.CountdownMs)
			}
			var resp *bool
			if sr.Response != nil {
				resp = boolPtr(*sr.Response)
			}
			st.Slots[i] = &Slot{
				FreelancerID: sr.EmployeeID,
				RequestedAt:  fromMillis(sr.RequestTime),
				Countdown:    countdown,
				Response:     resp,
			}
		}
		return st, nil
	case LabelFreelancerAssigned, LabelInquiryResolved:
		if err := requireCoordinator(); err != nil {
			return nil, err
		}
		if rec.FreelancerID == "" {
			return nil, errorf(ErrInvalidStatus, "%s without freelancerId", label)
		}
		if label == LabelFreelancerAssigned {
			return FreelancerAssigned{
				CoordinatorID: rec.CoordinatorID,
				FreelancerID:  rec.FreelancerID,
				Tags:          NewTagSet(rec.Tags...),
			}, nil
		}
		return InquiryResolved{
			CoordinatorID: rec.CoordinatorID,
			FreelancerID:  rec.FreelancerID,
			Tags:          NewTagSet(rec.Tags...),
		}, nil
	}
	return nil, errorf(ErrInvalidStatus, "unknown status label %q", label)
}

// MarshalStatus encodes a status as JSON.
func MarshalStatus(s Status) ([]byte, error) {
	rec, err := ToRecord(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalStatus decodes a status from JSON.
func UnmarshalStatus(data []byte) (Status, error) {
	var rec StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errorf(ErrInvalidStatus, "decode: %v", err)
	}
	return FromRecord(rec)
}

// DetailsRecord is the wire form of Details.
type DetailsRecord struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	CreatedAt     int64  `json:"createdAt,omitempty"`
	Deadline      int64  `json:"deadline,omitempty"`
	Service       string `json:"service"`
	ContactNumber string `json:"contactNumber"`
	DeliveryArea  string `json:"deliveryArea,omitempty"`
	Reference     bool   `json:"reference"`
}

func detailsToRecord(d Details) DetailsRecord {
	rec := DetailsRecord{
		Name:          d.Name,
		Description:   d.Description,
		Service:       d.Service,
		ContactNumber: d.ContactNumber,
		DeliveryArea:  d.DeliveryArea,
		Reference:     d.Reference,
	}
	if !d.CreatedAt.IsZero() {
		rec.CreatedAt = toMillis(d.CreatedAt)
	}
	if !d.Deadline.IsZero() {
		rec.Deadline = toMillis(d.Deadline)
	}
	return rec
}

func detailsFromRecord(rec DetailsRecord) Details {
	d := Details{
		Name:          rec.Name,
		Description:   rec.Description,
		Service:       rec.Service,
		ContactNumber: rec.ContactNumber,
		DeliveryArea:  rec.DeliveryArea,
		Reference:     rec.Reference,
	}
	if rec.CreatedAt != 0 {
		d.CreatedAt = fromMillis(rec.CreatedAt)
	}
	if rec.Deadline != 0 {
		d.Deadline = fromMillis(rec.Deadline)
	}
	return d
}

// InquiryRecord is the wire form of a stored inquiry.
type InquiryRecord struct {
	ID      int64         `json:"id"`
	Version int64         `json:"version"`
	Details DetailsRecord `json:"details"`
	Status  StatusRecord  `json:"status"`
}

func ToInquiryRecord(inq Inquiry) (InquiryRecord, error) {
	status, err := ToRecord(inq.Status)
	if err != nil {
		return InquiryRecord{}, err
	}
	return InquiryRecord{
		ID:      inq.ID,
		Version: inq.Version,
		Details: detailsToRecord(inq.Details),
		Status:  status,
	}, nil
}

// actionEnvelope is the label-tagged wire form shared by every action.
type actionEnvelope struct {
	Label         ActionLabel    `json:"label"`
	InquiryID     int64          `json:"inquiryId,omitempty"`
	AdminID       string         `json:"adminId,omitempty"`
	CoordinatorID string         `json:"coordinatorId,omitempty"`
	FreelancerID  string         `json:"freelancerId,omitempty"`
	CountdownMs   int64          `json:"countdownMs,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Details       *DetailsRecord `json:"details,omitempty"`
}

// EncodeAction renders an action as label-tagged JSON.
func EncodeAction(a Action) ([]byte, error) {
	env := actionEnvelope{Label: a.Label(), InquiryID: a.Target()}
	switch v := a.(type) {
	case CreateInquiry:
		env.AdminID = v.AdminID
		rec := detailsToRecord(v.Details)
		env.Details = &rec
	case RequestCoordinator:
		env.AdminID, env.CoordinatorID = v.AdminID, v.CoordinatorID
		env.CountdownMs = v.Countdown.Milliseconds()
	case AcceptAsCoordinator:
		env.CoordinatorID = v.CoordinatorID
	case RejectAsCoordinator:
		env.CoordinatorID = v.CoordinatorID
	case RequestFreelancer:
		env.CoordinatorID, env.FreelancerID = v.CoordinatorID, v.FreelancerID
		env.CountdownMs = v.Countdown.Milliseconds()
	case AcceptAsFreelancer:
		env.FreelancerID = v.FreelancerID
	case RejectAsFreelancer:
		env.FreelancerID = v.FreelancerID
	case AssignFreelancer:
		env.CoordinatorID, env.FreelancerID = v.CoordinatorID, v.FreelancerID
	case UpdateTags:
		env.AdminID, env.Tags = v.AdminID, v.Tags.Clone()
	case MarkResolved:
		env.AdminID, env.Tags = v.AdminID, v.Tags.Clone()
	case DeleteInquiry:
		env.AdminID = v.AdminID
	default:
		return nil, errorf(ErrInvalidAction, "unsupported action %T", a)
	}
	return json.Marshal(env)
}

// DecodeAction parses label-tagged JSON into the matching action variant.
func DecodeAction(data []byte) (Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errorf(ErrInvalidAction, "decode: %v", err)
	}
	countdown, ok := countdownFromMillis(env.CountdownMs)
	if !ok {
		return nil, errorf(ErrInvalidAction, "countdownMs %d out of range", env.CountdownMs)
	}
	switch env.Label {
	case ActionCreateInquiry:
		if env.Details == nil {
			return nil, errorf(ErrInvalidAction, "%s without details", env.Label)
		}
		return CreateInquiry{AdminID: env.AdminID, Details: detailsFromRecord(*env.Details)}, nil
	case ActionRequestCoordinator:
		return RequestCoordinator{AdminID: env.AdminID, InquiryID: env.InquiryID, CoordinatorID: env.CoordinatorID, Countdown: countdown}, nil
	case ActionAcceptAsCoordinator:
		return AcceptAsCoordinator{CoordinatorID: env.CoordinatorID, InquiryID: env.InquiryID}, nil
	case ActionRejectAsCoordinator:
		return RejectAsCoordinator{CoordinatorID: env.CoordinatorID, InquiryID: env.InquiryID}, nil
	case ActionRequestFreelancer:
		return RequestFreelancer{CoordinatorID: env.CoordinatorID, InquiryID: env.InquiryID, FreelancerID: env.FreelancerID, Countdown: countdown}, nil
	case ActionAcceptAsFreelancer:
		return AcceptAsFreelancer{FreelancerID: env.FreelancerID, InquiryID: env.InquiryID}, nil
	case ActionRejectAsFreelancer:
		return RejectAsFreelancer{FreelancerID: env.FreelancerID, InquiryID: env.InquiryID}, nil
	case ActionAssignFreelancer:
		return AssignFreelancer{CoordinatorID: env.CoordinatorID, InquiryID: env.InquiryID, FreelancerID: env.FreelancerID}, nil
	case ActionUpdateTags:
		return UpdateTags{AdminID: env.AdminID, InquiryID: env.InquiryID, Tags: NewTagSet(env.Tags...)}, nil
	case ActionMarkResolved:
		return MarkResolved{AdminID: env.AdminID, InquiryID: env.InquiryID, Tags: NewTagSet(env.Tags...)}, nil
	case ActionDeleteInquiry:
		return DeleteInquiry{AdminID: env.AdminID, InquiryID: env.InquiryID}, nil
	default:
		return nil, errorf(ErrInvalidAction, "unknown action label %q", env.Label)
	}
}
