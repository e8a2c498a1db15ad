package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"inquiryflow/auth"
	"inquiryflow/inquiry"
	"inquiryflow/store"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitInternal = 3
)

// app holds the wired services for one CLI invocation.
type app struct {
	svc  *inquiry.Service
	auth *auth.Service

	// employees is false when no employee repository is configured.
	employees bool
	// timeline is nil unless the store records transitions.
	timeline store.TimelineSource

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *log.Logger
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"apply", "apply -token T [-file action.json]   apply a label-tagged JSON action (stdin when -file is omitted)", (*app).cmdApply},
	{"get", "get -token T -id N                   show one inquiry", (*app).cmdGet},
	{"list", "list -token T -label L               list inquiries in a status", (*app).cmdList},
	{"worklist", "worklist -token T                    urgent and misc inquiries for the caller", (*app).cmdWorklist},
	{"sweep", "sweep                                expire every lapsed request now", (*app).cmdSweep},
	{"login", "login -email E -password P           issue a token", (*app).cmdLogin},
	{"register", "register -token T -email E -password P -name N -role R [-id ID]   create an employee (admin)", (*app).cmdRegister},
	{"employees", "employees -token T (-role R | -id ID | -self)   look up employees", (*app).cmdEmployees},
	{"availability", "availability -token T -set true|false   mark yourself available for new work", (*app).cmdAvailability},
	{"timeline", "timeline -token T -id N               recorded transitions of an inquiry (postgres)", (*app).cmdTimeline},
}

func (a *app) usage() {
	fmt.Fprintln(a.errOut, "usage: inquiryctl <command> [flags]")
	for _, c := range commands {
		fmt.Fprintf(a.errOut, "  %s\n", c.usage)
	}
}

// run dispatches args and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return exitUsage
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(a, ctx, args[1:])
		return a.report(err)
	}
	fmt.Fprintf(a.errOut, "unknown command %q\n", args[0])
	a.usage()
	return exitUsage
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *app) report(err error) int {
	if err == nil {
		return exitOK
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(a.errOut, err)
		return exitUsage
	}

	kind := inquiry.ErrorKind(err)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		kind = "authentication"
	case errors.Is(err, auth.ErrInvalidCredentials):
		kind = "authentication"
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidRole):
		kind = "invalid"
	case errors.Is(err, auth.ErrDuplicateEmployee):
		kind = "conflict"
	case errors.Is(err, auth.ErrEmployeeNotFound):
		kind = "not_found"
	}
	_ = json.NewEncoder(a.errOut).Encode(errorBody{Error: kind, Message: err.Error()})
	if kind == "internal" {
		a.logger.Printf("internal error: %v", err)
		return exitInternal
	}
	return exitFailure
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parse reports flag errors as usage errors; flag has already printed them.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return usageError{err.Error()}
	}
	return nil
}

func (a *app) caller(token string) (inquiry.Caller, error) {
	if token == "" {
		return inquiry.Caller{}, usageError{"-token is required"}
	}
	id, role, err := a.auth.ResolveCaller(token)
	if err != nil {
		return inquiry.Caller{}, fmt.Errorf("%w: %v", inquiry.ErrAuthentication, err)
	}
	return inquiry.Caller{ID: id, Role: role}, nil
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type applyOutput struct {
	Inquiry *inquiry.InquiryRecord `json:"inquiry,omitempty"`
	From    inquiry.Label          `json:"from,omitempty"`
	Deleted bool                   `json:"deleted"`
}

func (a *app) cmdApply(ctx context.Context, args []string) error {
	fs := a.flags("apply")
	token := fs.String("token", "", "bearer token")
	file := fs.String("file", "", "path to the action JSON; stdin when empty")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *token == "" {
		return usageError{"-token is required"}
	}

	var (
		raw []byte
		err error
	)
	if *file == "" {
		raw, err = io.ReadAll(a.in)
	} else {
		raw, err = os.ReadFile(*file)
	}
	if err != nil {
		return fmt.Errorf("read action: %w", err)
	}

	action, err := inquiry.DecodeAction(raw)
	if err != nil {
		return err
	}
	res, err := a.svc.ApplyWithToken(ctx, *token, action)
	if err != nil {
		return err
	}

	out := applyOutput{From: res.From, Deleted: res.Deleted}
	if !res.Deleted {
		rec, err := inquiry.ToInquiryRecord(res.Inquiry)
		if err != nil {
			return err
		}
		out.Inquiry = &rec
	}
	return a.writeJSON(out)
}

func (a *app) cmdGet(ctx context.Context, args []string) error {
	fs := a.flags("get")
	token := fs.String("token", "", "bearer token")
	id := fs.Int64("id", 0, "inquiry id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return usageError{"-id is required"}
	}
	if _, err := a.caller(*token); err != nil {
		return err
	}

	inq, err := a.svc.Get(ctx, *id)
	if err != nil {
		return err
	}
	rec, err := inquiry.ToInquiryRecord(inq)
	if err != nil {
		return err
	}
	return a.writeJSON(rec)
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := a.flags("list")
	token := fs.String("token", "", "bearer token")
	rawLabel := fs.String("label", "", "status label")
	if err := parse(fs, args); err != nil {
		return err
	}
	label, err := inquiry.ParseLabel(*rawLabel)
	if err != nil {
		return usageError{err.Error()}
	}
	if _, err := a.caller(*token); err != nil {
		return err
	}

	list, err := a.svc.ListByStatus(ctx, label)
	if err != nil {
		return err
	}
	recs, err := records(list)
	if err != nil {
		return err
	}
	return a.writeJSON(recs)
}

type worklistOutput struct {
	Caller string                  `json:"caller"`
	Role   auth.Role               `json:"role"`
	Urgent []inquiry.InquiryRecord `json:"urgent"`
	Misc   []inquiry.InquiryRecord `json:"misc"`
}

func (a *app) cmdWorklist(ctx context.Context, args []string) error {
	fs := a.flags("worklist")
	token := fs.String("token", "", "bearer token")
	if err := parse(fs, args); err != nil {
		return err
	}
	caller, err := a.caller(*token)
	if err != nil {
		return err
	}

	wl, err := a.svc.Worklist(ctx, caller)
	if err != nil {
		return err
	}
	out := worklistOutput{Caller: caller.ID, Role: caller.Role}
	if out.Urgent, err = records(wl.Urgent); err != nil {
		return err
	}
	if out.Misc, err = records(wl.Misc); err != nil {
		return err
	}
	return a.writeJSON(out)
}

func (a *app) cmdSweep(ctx context.Context, args []string) error {
	fs := a.flags("sweep")
	if err := parse(fs, args); err != nil {
		return err
	}
	n, err := a.svc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	return a.writeJSON(map[string]int{"expired": n})
}

type loginOutput struct {
	Token      string    `json:"token"`
	EmployeeID string    `json:"employee_id"`
	Role       auth.Role `json:"role"`
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "employee email")
	password := fs.String("password", "", "employee password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if !a.employees {
		return usageError{"login needs DATABASE_URL for the employee directory"}
	}

	res, err := a.auth.Login(ctx, auth.LoginRequest{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	return a.writeJSON(loginOutput{Token: res.Token, EmployeeID: res.Employee.ID, Role: res.Employee.Role})
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := a.flags("register")
	token := fs.String("token", "", "admin bearer token")
	id := fs.String("id", "", "employee id (generated from the role prefix when empty)")
	email := fs.String("email", "", "employee email")
	password := fs.String("password", "", "initial password")
	name := fs.String("name", "", "full name")
	role := fs.String("role", "", "admin, coordinator or freelancer")
	if err := parse(fs, args); err != nil {
		return err
	}
	if !a.employees {
		return usageError{"register needs DATABASE_URL for the employee directory"}
	}
	caller, err := a.caller(*token)
	if err != nil {
		return err
	}
	if caller.Role != auth.RoleAdmin {
		return fmt.Errorf("%w: only admins register employees", inquiry.ErrAuthorization)
	}

	emp, err := a.auth.Register(ctx, auth.RegisterRequest{
		EmployeeID: *id,
		Email:      *email,
		Password:   *password,
		FullName:   *name,
		Role:       auth.Role(*role),
	})
	if err != nil {
		return err
	}
	a.logger.Printf("%s registered %s (%s)", caller.ID, emp.ID, emp.Role)
	return a.writeJSON(map[string]string{"employee_id": emp.ID, "role": string(emp.Role)})
}

type employeeOutput struct {
	ID        string    `json:"employee_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      auth.Role `json:"role"`
	Available bool      `json:"available"`
}

func toEmployeeOutput(e auth.Employee) employeeOutput {
	return employeeOutput{ID: e.ID, Email: e.Email, FullName: e.FullName, Role: e.Role, Available: e.Available}
}

// cmdEmployees looks employees up by role, by id or as the caller.
// Freelancers may only look themselves up.
func (a *app) cmdEmployees(ctx context.Context, args []string) error {
	fs := a.flags("employees")
	token := fs.String("token", "", "bearer token")
	rawRole := fs.String("role", "", "list every employee holding this role")
	id := fs.String("id", "", "show one employee")
	self := fs.Bool("self", false, "show the caller")
	if err := parse(fs, args); err != nil {
		return err
	}
	selectors := 0
	for _, set := range []bool{*rawRole != "", *id != "", *self} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return usageError{"exactly one of -role, -id or -self is required"}
	}
	if !a.employees {
		return usageError{"employees needs DATABASE_URL for the employee directory"}
	}
	caller, err := a.caller(*token)
	if err != nil {
		return err
	}

	if *self {
		*id = caller.ID
	}
	if caller.Role == auth.RoleFreelancer && (*rawRole != "" || *id != caller.ID) {
		return fmt.Errorf("%w: freelancers may only look themselves up", inquiry.ErrAuthorization)
	}

	if *rawRole != "" {
		role, ok := auth.ParseRole(*rawRole)
		if !ok {
			return usageError{fmt.Sprintf("unknown role %q", *rawRole)}
		}
		list, err := a.auth.ListByRole(ctx, role)
		if err != nil {
			return err
		}
		out := make([]employeeOutput, 0, len(list))
		for _, e := range list {
			out = append(out, toEmployeeOutput(e))
		}
		return a.writeJSON(out)
	}

	emp, err := a.auth.GetEmployeeByID(ctx, *id)
	if err != nil {
		return err
	}
	return a.writeJSON(toEmployeeOutput(*emp))
}

func (a *app) cmdAvailability(ctx context.Context, args []string) error {
	fs := a.flags("availability")
	token := fs.String("token", "", "bearer token")
	raw := fs.String("set", "", "true or false")
	if err := parse(fs, args); err != nil {
		return err
	}
	available, err := strconv.ParseBool(*raw)
	if err != nil {
		return usageError{"-set must be true or false"}
	}
	if !a.employees {
		return usageError{"availability needs DATABASE_URL for the employee directory"}
	}
	caller, err := a.caller(*token)
	if err != nil {
		return err
	}

	emp, err := a.auth.SetAvailability(ctx, caller.ID, available)
	if err != nil {
		return err
	}
	a.logger.Printf("%s available=%t", emp.ID, emp.Available)
	return a.writeJSON(toEmployeeOutput(*emp))
}

type eventOutput struct {
	Version    int64          `json:"version"`
	From       *inquiry.Label `json:"from"`
	To         *inquiry.Label `json:"to"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func (a *app) cmdTimeline(ctx context.Context, args []string) error {
	fs := a.flags("timeline")
	token := fs.String("token", "", "bearer token")
	id := fs.Int64("id", 0, "inquiry id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return usageError{"-id is required"}
	}
	if a.timeline == nil {
		return usageError{"timeline needs STORE_DRIVER=postgres"}
	}
	if _, err := a.caller(*token); err != nil {
		return err
	}

	events, err := a.timeline.Timeline(ctx, *id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%w: inquiry %d has no recorded transitions", inquiry.ErrNotFound, *id)
	}
	out := make([]eventOutput, 0, len(events))
	for _, ev := range events {
		out = append(out, eventOutput{Version: ev.Version, From: ev.FromLabel, To: ev.ToLabel, OccurredAt: ev.OccurredAt})
	}
	return a.writeJSON(out)
}

func records(list []inquiry.Inquiry) ([]inquiry.InquiryRecord, error) {
	out := make([]inquiry.InquiryRecord, 0, len(list))
	for _, inq := range list {
		rec, err := inquiry.ToInquiryRecord(inq)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
