package inquiry

import "time"

// ActionLabel is the wire discriminant of an Action variant.
type ActionLabel string

const (
	ActionCreateInquiry       ActionLabel = "CreateInquiryAsAdmin"
	ActionRequestCoordinator  ActionLabel = "RequestCoordinatorAsAdmin"
	ActionAcceptAsCoordinator ActionLabel = "AcceptInquiryAsCoordinator"
	ActionRejectAsCoordinator ActionLabel = "RejectInquiryAsCoordinator"
	ActionRequestFreelancer   ActionLabel = "RequestFreelancerAsCoordinator"
	ActionAcceptAsFreelancer  ActionLabel = "AcceptInquiryAsFreelancer"
	ActionRejectAsFreelancer  ActionLabel = "RejectInquiryAsFreelancer"
	ActionAssignFreelancer    ActionLabel = "AssignFreelancerAsCoordinator"
	ActionUpdateTags          ActionLabel = "UpdateTagsAsAdmin"
	ActionMarkResolved        ActionLabel = "MarkResolvedAsAdmin"
	ActionDeleteInquiry       ActionLabel = "DeleteInquiryAsAdmin"
)

// Action is a caller-initiated intent. Actor is the employee id the action
// claims to act as; the engine checks it against the resolved caller. The
// variant set is closed: only this package's types satisfy it.
type Action interface {
	Label() ActionLabel
	Target() int64
	Actor() string
	action()
}

type CreateInquiry struct {
	AdminID string
	Details Details
}

type RequestCoordinator struct {
	AdminID       string
	InquiryID     int64
	CoordinatorID string
	Countdown     time.Duration
}

type AcceptAsCoordinator struct {
	CoordinatorID string
	InquiryID     int64
}

type RejectAsCoordinator struct {
	CoordinatorID string
	InquiryID     int64
}

type RequestFreelancer struct {
	CoordinatorID string
	InquiryID     int64
	FreelancerID  string
	Countdown     time.Duration
}

type AcceptAsFreelancer struct {
	FreelancerID string
	InquiryID    int64
}

type RejectAsFreelancer struct {
	FreelancerID string
	InquiryID    int64
}

type AssignFreelancer struct {
	CoordinatorID string
	InquiryID     int64
	FreelancerID  string
}

type UpdateTags struct {
	AdminID   string
	InquiryID int64
	Tags      TagSet
}

type MarkResolved struct {
	AdminID   string
	InquiryID int64
	Tags      TagSet
}

type DeleteInquiry struct {
	AdminID   string
	InquiryID int64
}

func (CreateInquiry) Label() ActionLabel       { return ActionCreateInquiry }
func (RequestCoordinator) Label() ActionLabel  { return ActionRequestCoordinator }
func (AcceptAsCoordinator) Label() ActionLabel { return ActionAcceptAsCoordinator }
func (RejectAsCoordinator) Label() ActionLabel { return ActionRejectAsCoordinator }
func (RequestFreelancer) Label() ActionLabel   { return ActionRequestFreelancer }
func (AcceptAsFreelancer) Label() ActionLabel  { return ActionAcceptAsFreelancer }
func (RejectAsFreelancer) Label() ActionLabel  { return ActionRejectAsFreelancer }
func (AssignFreelancer) Label() ActionLabel    { return ActionAssignFreelancer }
func (UpdateTags) Label() ActionLabel          { return ActionUpdateTags }
func (MarkResolved) Label() ActionLabel        { return ActionMarkResolved }
func (DeleteInquiry) Label() ActionLabel       { return ActionDeleteInquiry }

// CreateInquiry has no target; the store assigns the id.
func (CreateInquiry) Target() int64         { return 0 }
func (a RequestCoordinator) Target() int64  { return a.InquiryID }
func (a AcceptAsCoordinator) Target() int64 { return a.InquiryID }
func (a RejectAsCoordinator) Target() int64 { return a.InquiryID }
func (a RequestFreelancer) Target() int64   { return a.InquiryID }
func (a AcceptAsFreelancer) Target() int64  { return a.InquiryID }
func (a RejectAsFreelancer) Target() int64  { return a.InquiryID }
func (a AssignFreelancer) Target() int64    { return a.InquiryID }
func (a UpdateTags) Target() int64          { return a.InquiryID }
func (a MarkResolved) Target() int64        { return a.InquiryID }
func (a DeleteInquiry) Target() int64       { return a.InquiryID }

func (a CreateInquiry) Actor() string       { return a.AdminID }
func (a RequestCoordinator) Actor() string  { return a.AdminID }
func (a AcceptAsCoordinator) Actor() string { return a.CoordinatorID }
func (a RejectAsCoordinator) Actor() string { return a.CoordinatorID }
func (a RequestFreelancer) Actor() string   { return a.CoordinatorID }
func (a AcceptAsFreelancer) Actor() string  { return a.FreelancerID }
func (a RejectAsFreelancer) Actor() string  { return a.FreelancerID }
func (a AssignFreelancer) Actor() string    { return a.CoordinatorID }
func (a UpdateTags) Actor() string          { return a.AdminID }
func (a MarkResolved) Actor() string        { return a.AdminID }
func (a DeleteInquiry) Actor() string       { return a.AdminID }

func (CreateInquiry) action()       {}
func (RequestCoordinator) action()  {}
func (AcceptAsCoordinator) action() {}
func (RejectAsCoordinator) action() {}
func (RequestFreelancer) action()   {}
func (AcceptAsFreelancer) action()  {}
func (RejectAsFreelancer) action()  {}
func (AssignFreelancer) action()    {}
func (UpdateTags) action()          {}
func (MarkResolved) action()        {}
func (DeleteInquiry) action()       {}
