package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "fiona@example.com",
		Password: "supersafe",
		FullName: "Fiona Freelancer",
		Role:     RoleFreelancer,
	}

	ctx := context.Background()
	emp, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if !strings.HasPrefix(emp.ID, PrefixFreelancer) {
		t.Fatalf("register: expected id with prefix %s got %s", PrefixFreelancer, emp.ID)
	}
	if emp.Role != RoleFreelancer {
		t.Fatalf("register: expected role %s got %s", RoleFreelancer, emp.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Employee.ID != emp.ID {
		t.Fatalf("login: expected employee id %q got %q", emp.ID, resp.Employee.ID)
	}

	id, role, err := svc.ResolveCaller(resp.Token)
	if err != nil {
		t.Fatalf("resolve caller: %v", err)
	}
	if id != emp.ID {
		t.Fatalf("resolve caller: expected %q got %q", emp.ID, id)
	}
	if role != RoleFreelancer {
		t.Fatalf("resolve caller: expected role %s got %s", RoleFreelancer, role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ada@example.com",
		Password: "short",
		FullName: "Ada Admin",
		Role:     RoleAdmin,
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Password: "strongpassword",
		Role:     RoleAdmin,
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "ada@example.com",
		Password: "strongpassword",
		FullName: "Ada Admin",
		Role:     "supervisor",
	}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole for unknown role, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		EmployeeID: "PB-FR0001",
		Email:      "ada@example.com",
		Password:   "strongpassword",
		FullName:   "Ada Admin",
		Role:       RoleAdmin,
	}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole for mismatched prefix, got %v", err)
	}
}

func TestService_RegisterKeepsExplicitEmployeeID(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	emp, err := svc.Register(context.Background(), RegisterRequest{
		EmployeeID: "pb-pc0042",
		Email:      "cora@example.com",
		Password:   "strongpassword",
		FullName:   "Cora Coordinator",
		Role:       RoleCoordinator,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if emp.ID != "PB-PC0042" {
		t.Fatalf("expected normalised id PB-PC0042, got %s", emp.ID)
	}
}

func TestService_DuplicateEmployee(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "cora@example.com",
		Password: "strongpassword",
		FullName: "Cora Coordinator",
		Role:     RoleCoordinator,
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmployee) {
		t.Fatalf("expected ErrDuplicateEmployee, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email: "ada@example.com", Password: "strongpassword", FullName: "Ada", Role: RoleAdmin,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = svc.Login(context.Background(), LoginRequest{Email: "ada@example.com", Password: "wrongpassword"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_ResolveCallerRejectsRoleMismatch(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	token, err := svc.IssueToken("PB-FR0001", RoleAdmin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("verify token should accept a well-formed token: %v", err)
	}
	if _, _, err := svc.ResolveCaller(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestService_ResolveCallerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewService(newFakeRepository(), "other-secret")
	token, err := issuer.IssueToken("PB-AM0001", RoleAdmin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	svc := NewService(newFakeRepository(), "test-secret")
	if _, _, err := svc.ResolveCaller(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, _, err := svc.ResolveCaller("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}

	issuedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := issuedAt
	svc.WithTokenTTL(time.Hour).WithClock(func() time.Time { return clock })
	token, err = svc.IssueToken("PB-AM0001", RoleAdmin)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, _, err := svc.ResolveCaller(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
	clock = issuedAt.Add(2 * time.Hour)
	if _, _, err := svc.ResolveCaller(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestService_ListByRole(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	ctx := context.Background()
	for _, req := range []RegisterRequest{
		{EmployeeID: "PB-FR0002", Email: "b@example.com", Password: "strongpassword", FullName: "B", Role: RoleFreelancer},
		{EmployeeID: "PB-FR0001", Email: "a@example.com", Password: "strongpassword", FullName: "A", Role: RoleFreelancer},
		{EmployeeID: "PB-PC0001", Email: "c@example.com", Password: "strongpassword", FullName: "C", Role: RoleCoordinator},
	} {
		if _, err := svc.Register(ctx, req); err != nil {
			t.Fatalf("register %s: %v", req.EmployeeID, err)
		}
	}

	freelancers, err := svc.ListByRole(ctx, RoleFreelancer)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(freelancers) != 2 || freelancers[0].ID != "PB-FR0001" || freelancers[1].ID != "PB-FR0002" {
		t.Fatalf("unexpected freelancers: %+v", freelancers)
	}
	if _, err := svc.ListByRole(ctx, "client"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestService_SetAvailability(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")
	ctx := context.Background()

	fr, err := svc.Register(ctx, RegisterRequest{Email: "fr@example.com", Password: "supersafe", FullName: "Fr", Role: RoleFreelancer})
	if err != nil {
		t.Fatalf("register freelancer: %v", err)
	}
	if fr.Available {
		t.Fatal("new employees start unavailable")
	}

	got, err := svc.SetAvailability(ctx, fr.ID, true)
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if !got.Available {
		t.Fatal("expected freelancer to be available")
	}
	stored, err := svc.GetEmployeeByID(ctx, fr.ID)
	if err != nil {
		t.Fatalf("get employee: %v", err)
	}
	if !stored.Available {
		t.Fatal("availability was not persisted")
	}

	if _, err := svc.SetAvailability(ctx, "PB-AM0001", true); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("admin availability: expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "PB-PC9999", true); !errors.Is(err, ErrEmployeeNotFound) {
		t.Fatalf("unknown coordinator: expected ErrEmployeeNotFound, got %v", err)
	}
}

func TestRoleFromEmployeeID(t *testing.T) {
	cases := map[string]Role{
		"PB-AM0001": RoleAdmin,
		"pb-pc0003": RoleCoordinator,
		"PB-FR9":    RoleFreelancer,
	}
	for id, want := range cases {
		got, ok := RoleFromEmployeeID(id)
		if !ok || got != want {
			t.Fatalf("RoleFromEmployeeID(%q) = %s, %v; want %s", id, got, ok, want)
		}
	}
	if _, ok := RoleFromEmployeeID("XX-0001"); ok {
		t.Fatal("expected unknown prefix to be rejected")
	}
}

type fakeRepository struct {
	byEmail map[string]Employee
	byID    map[string]Employee
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Employee),
		byID:    make(map[string]Employee),
	}
}

func (f *fakeRepository) CreateEmployee(ctx context.Context, params CreateEmployeeParams) (Employee, error) {
	if _, exists := f.byEmail[strings.ToLower(params.Email)]; exists {
		return Employee{}, ErrDuplicateEmployee
	}
	if _, exists := f.byID[params.ID]; exists {
		return Employee{}, ErrDuplicateEmployee
	}

	emp := Employee{
		ID:           params.ID,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.byEmail[strings.ToLower(emp.Email)] = emp
	f.byID[emp.ID] = emp
	return emp, nil
}

func (f *fakeRepository) GetEmployeeByEmail(ctx context.Context, email string) (Employee, error) {
	emp, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *fakeRepository) GetEmployeeByID(ctx context.Context, employeeID string) (Employee, error) {
	emp, ok := f.byID[employeeID]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *fakeRepository) ListByRole(ctx context.Context, role Role) ([]Employee, error) {
	var out []Employee
	for _, emp := range f.byID {
		if emp.Role == role {
			out = append(out, emp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepository) SetAvailability(ctx context.Context, employeeID string, available bool) (Employee, error) {
	emp, ok := f.byID[employeeID]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	emp.Available = available
	emp.UpdatedAt = time.Now().UTC()
	f.byID[emp.ID] = emp
	f.byEmail[strings.ToLower(emp.Email)] = emp
	return emp, nil
}
