package inquiry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func sampleStatuses() []Status {
	at := epoch.Add(1234 * time.Millisecond)
	fr := FreelancerRequested{CoordinatorID: coordID}
	fr.Slots[0] = &Slot{FreelancerID: fl1, RequestedAt: at, Countdown: ms(3000)}
	fr.Slots[1] = &Slot{FreelancerID: fl2, RequestedAt: at, Countdown: ms(4000), Response: boolPtr(false)}
	fr.Slots[2] = &Slot{FreelancerID: fl3, RequestedAt: at, Countdown: ms(5000), Response: boolPtr(true)}

	return []Status{
		Unassigned{},
		CoordinatorRequested{CoordinatorID: coordID, RequestedAt: at, Countdown: ms(5000)},
		CoordinatorAccepted{CoordinatorID: coordID},
		fr,
		FreelancerAssigned{CoordinatorID: coordID, FreelancerID: fl1},
		FreelancerAssigned{CoordinatorID: coordID, FreelancerID: fl1, Tags: TagSet{"vip"}},
		InquiryResolved{CoordinatorID: coordID, FreelancerID: fl1, Tags: TagSet{"urgent", "vip"}},
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, st := range sampleStatuses() {
		data, err := MarshalStatus(st)
		if err != nil {
			t.Fatalf("marshal %s: %v", st.Label(), err)
		}
		got, err := UnmarshalStatus(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", st.Label(), err)
		}
		if !reflect.DeepEqual(got, st) {
			t.Fatalf("round trip of %s:\n got %#v\nwant %#v", st.Label(), got, st)
		}
	}
}

func TestStatusRoundTripKeepsNullFalseTrueApart(t *testing.T) {
	st := sampleStatuses()[3]
	data, err := MarshalStatus(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw struct {
		FreelancerRequests []map[string]json.RawMessage `json:"freelancerRequests"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	want := []string{"null", "false", "true"}
	for i, w := range want {
		if got := string(raw.FreelancerRequests[i]["response"]); got != w {
			t.Fatalf("slot %d response encoded as %s, want %s", i, got, w)
		}
	}
}

func TestUnmarshalStatusRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"unknown label":       `{"label":"Paused"}`,
		"missing coordinator": `{"label":"CoordinatorAccepted"}`,
		"no slots":            `{"label":"FreelancerRequested","coordinatorId":"PB-PC0001"}`,
		"four slots": `{"label":"FreelancerRequested","coordinatorId":"PB-PC0001","freelancerRequests":[` +
			strings.Repeat(`{"employeeId":"a","requestTime":1,"countdownMs":1,"response":null},`, 3) +
			`{"employeeId":"b","requestTime":1,"countdownMs":1,"response":null}]}`,
		"duplicate freelancer": `{"label":"FreelancerRequested","coordinatorId":"PB-PC0001","freelancerRequests":[` +
			`{"employeeId":"a","requestTime":1,"countdownMs":1,"response":null},` +
			`{"employeeId":"a","requestTime":1,"countdownMs":1,"response":null}]}`,
		"assigned without freelancer":    `{"label":"FreelancerAssigned","coordinatorId":"PB-PC0001"}`,
		"not json":                       `{`,
		"coordinator countdown overflow": `{"label":"CoordinatorRequested","coordinatorId":"PB-PC0001","requestTime":1,"countdownMs":9223372036854775807}`,
		"slot countdown overflow": `{"label":"FreelancerRequested","coordinatorId":"PB-PC0001","freelancerRequests":[` +
			`{"employeeId":"a","requestTime":1,"countdownMs":9223372036855,"response":null}]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := UnmarshalStatus([]byte(payload)); !errors.Is(err, ErrInvalidStatus) {
				t.Fatalf("expected ErrInvalidStatus, got %v", err)
			}
		})
	}
}

func TestActionRoundTrip(t *testing.T) {
	details := sampleDetails()
	details.CreatedAt = epoch
	actions := []Action{
		CreateInquiry{AdminID: adminID, Details: details},
		RequestCoordinator{AdminID: adminID, InquiryID: 7, CoordinatorID: coordID, Countdown: ms(5000)},
		AcceptAsCoordinator{CoordinatorID: coordID, InquiryID: 7},
		RejectAsCoordinator{CoordinatorID: coordID, InquiryID: 7},
		RequestFreelancer{CoordinatorID: coordID, InquiryID: 7, FreelancerID: fl1, Countdown: ms(3000)},
		AcceptAsFreelancer{FreelancerID: fl1, InquiryID: 7},
		RejectAsFreelancer{FreelancerID: fl1, InquiryID: 7},
		AssignFreelancer{CoordinatorID: coordID, InquiryID: 7, FreelancerID: fl1},
		UpdateTags{AdminID: adminID, InquiryID: 7, Tags: TagSet{"vip"}},
		MarkResolved{AdminID: adminID, InquiryID: 7, Tags: TagSet{"urgent"}},
		DeleteInquiry{AdminID: adminID, InquiryID: 7},
	}
	for _, a := range actions {
		data, err := EncodeAction(a)
		if err != nil {
			t.Fatalf("encode %s: %v", a.Label(), err)
		}
		got, err := DecodeAction(data)
		if err != nil {
			t.Fatalf("decode %s: %v", a.Label(), err)
		}
		if !reflect.DeepEqual(got, a) {
			t.Fatalf("round trip of %s:\n got %#v\nwant %#v", a.Label(), got, a)
		}
	}
}

func TestDecodeActionFromShellPayload(t *testing.T) {
	a, err := DecodeAction([]byte(`{"label":"RequestFreelancerAsCoordinator","inquiryId":3,"coordinatorId":"PB-PC0001","freelancerId":"PB-FR0001","countdownMs":3000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := RequestFreelancer{CoordinatorID: coordID, InquiryID: 3, FreelancerID: fl1, Countdown: ms(3000)}
	if a != Action(want) {
		t.Fatalf("got %#v want %#v", a, want)
	}

	if _, err := DecodeAction([]byte(`{"label":"LaunchRocket"}`)); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for unknown label, got %v", err)
	}
	if _, err := DecodeAction([]byte(`{"label":"CreateInquiryAsAdmin","adminId":"PB-AM0001"}`)); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for create without details, got %v", err)
	}
}

func TestDecodeActionRejectsOverflowingCountdown(t *testing.T) {
	limit := int64(math.MaxInt64 / int64(time.Millisecond))

	ok := fmt.Sprintf(`{"label":"RequestFreelancerAsCoordinator","inquiryId":1,"coordinatorId":"PB-PC0001","freelancerId":"PB-FR0001","countdownMs":%d}`, limit)
	a, err := DecodeAction([]byte(ok))
	if err != nil {
		t.Fatalf("countdown at the limit: %v", err)
	}
	if got := a.(RequestFreelancer).Countdown; got <= 0 || got.Milliseconds() != limit {
		t.Fatalf("countdown decoded as %v", got)
	}

	for _, n := range []int64{limit + 1, math.MaxInt64} {
		payload := fmt.Sprintf(`{"label":"RequestCoordinatorAsAdmin","inquiryId":1,"adminId":"PB-AM0001","coordinatorId":"PB-PC0001","countdownMs":%d}`, n)
		if _, err := DecodeAction([]byte(payload)); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("countdownMs %d: expected ErrInvalidAction, got %v", n, err)
		}
	}
}

func TestInquiryRecordJSON(t *testing.T) {
	inq := Inquiry{
		ID:      4,
		Version: 3,
		Details: sampleDetails(),
		Status:  CoordinatorAccepted{CoordinatorID: coordID},
	}
	rec, err := ToInquiryRecord(inq)
	if err != nil {
		t.Fatalf("ToInquiryRecord: %v", err)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"id":4`, `"version":3`, `"label":"CoordinatorAccepted"`, `"coordinatorId":"` + coordID + `"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("record %s missing %s", raw, want)
		}
	}
}
