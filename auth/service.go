package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidToken signals a token that cannot be resolved to a caller.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidRole signals an unknown role or a role that disagrees with the employee id.
	ErrInvalidRole = errors.New("auth: invalid role")
)

const defaultTokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// LoginResult bundles the token and employee returned after a successful login.
type LoginResult struct {
	Token    string
	Employee Employee
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  defaultTokenTTL,
		now:       time.Now,
	}
}

// WithTokenTTL overrides how long issued tokens stay valid.
func (s *Service) WithTokenTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
	return s
}

// WithClock overrides the clock used to stamp and check tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new employee account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Employee, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required")
	}

	role, ok := ParseRole(string(req.Role))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	employeeID := strings.ToUpper(strings.TrimSpace(req.EmployeeID))
	if employeeID == "" {
		employeeID = NewEmployeeID(role)
	} else if idRole, ok := RoleFromEmployeeID(employeeID); !ok || idRole != role {
		return nil, fmt.Errorf("%w: employee id %s does not carry the %s prefix %s", ErrInvalidRole, employeeID, role, role.Prefix())
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	emp, err := s.repo.CreateEmployee(ctx, CreateEmployeeParams{
		ID:           employeeID,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &emp, nil
}

// NewEmployeeID generates an id carrying role's prefix.
func NewEmployeeID(role Role) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return role.Prefix() + suffix
}

// Login authenticates an employee and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	emp, err := s.repo.GetEmployeeByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrEmployeeNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(emp.PasswordHash), []byte(req.Password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueToken(emp.ID, emp.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token:    token,
		Employee: emp,
	}, nil
}

// GetEmployeeByID retrieves employee information by ID.
func (s *Service) GetEmployeeByID(ctx context.Context, employeeID string) (*Employee, error) {
	emp, err := s.repo.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListByRole lists the employees holding role.
func (s *Service) ListByRole(ctx context.Context, role Role) ([]Employee, error) {
	if !isValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return s.repo.ListByRole(ctx, role)
}

// SetAvailability records whether a coordinator or freelancer takes new work.
func (s *Service) SetAvailability(ctx context.Context, employeeID string, available bool) (*Employee, error) {
	role, ok := RoleFromEmployeeID(employeeID)
	if !ok || !role.HasAvailability() {
		return nil, fmt.Errorf("%w: %s has no availability", ErrInvalidRole, employeeID)
	}
	emp, err := s.repo.SetAvailability(ctx, employeeID, available)
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// VerifyToken validates a JWT token and returns the employee id and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		employeeID, ok := claims["employee_id"].(string)
		if !ok || employeeID == "" {
			return "", "", fmt.Errorf("%w: missing employee_id", ErrInvalidToken)
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("%w: missing role", ErrInvalidToken)
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("%w: role %q", ErrInvalidToken, roleStr)
		}
		return employeeID, role, nil
	}

	return "", "", ErrInvalidToken
}

// ResolveCaller verifies the token and additionally requires the role
// claim to agree with the role encoded in the employee id prefix.
func (s *Service) ResolveCaller(tokenString string) (string, Role, error) {
	employeeID, role, err := s.VerifyToken(tokenString)
	if err != nil {
		return "", "", err
	}
	idRole, ok := RoleFromEmployeeID(employeeID)
	if !ok || idRole != role {
		return "", "", fmt.Errorf("%w: role %s does not match employee %s", ErrInvalidToken, role, employeeID)
	}
	return employeeID, role, nil
}

// IssueToken signs a token for employeeID acting as role.
func (s *Service) IssueToken(employeeID string, role Role) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"employee_id": employeeID,
		"role":        role,
		"exp":         now.Add(s.tokenTTL).Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleCoordinator, RoleFreelancer:
		return true
	default:
		return false
	}
}
