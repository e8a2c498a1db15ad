package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrEmployeeNotFound signals that the employee does not exist.
	ErrEmployeeNotFound = errors.New("auth: employee not found")
	// ErrDuplicateEmployee signals that the email or employee id is already registered.
	ErrDuplicateEmployee = errors.New("auth: employee already exists")
)

// Repository handles employee data access.
type Repository interface {
	CreateEmployee(ctx context.Context, params CreateEmployeeParams) (Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (Employee, error)
	GetEmployeeByID(ctx context.Context, employeeID string) (Employee, error)
	ListByRole(ctx context.Context, role Role) ([]Employee, error)
	SetAvailability(ctx context.Context, employeeID string, available bool) (Employee, error)
}

// CreateEmployeeParams contains write parameters for creating employees.
type CreateEmployeeParams struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed employee repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const employeeColumns = `id, email, full_name, password_hash, role, available, created_at, updated_at`

func (r *PGRepository) CreateEmployee(ctx context.Context, params CreateEmployeeParams) (Employee, error) {
	const insertSQL = `
		INSERT INTO employees (id, email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + employeeColumns

	emp, err := scanEmployee(r.pool.QueryRow(ctx, insertSQL, params.ID, params.Email, params.FullName, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Employee{}, ErrDuplicateEmployee
		}
		return Employee{}, fmt.Errorf("auth: create employee: %w", err)
	}
	return emp, nil
}

func (r *PGRepository) GetEmployeeByEmail(ctx context.Context, email string) (Employee, error) {
	const selectSQL = `SELECT ` + employeeColumns + ` FROM employees WHERE lower(email) = lower($1)`

	emp, err := scanEmployee(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, fmt.Errorf("auth: get employee by email: %w", err)
	}
	return emp, nil
}

func (r *PGRepository) GetEmployeeByID(ctx context.Context, employeeID string) (Employee, error) {
	const selectSQL = `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	emp, err := scanEmployee(r.pool.QueryRow(ctx, selectSQL, employeeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, fmt.Errorf("auth: get employee by id: %w", err)
	}
	return emp, nil
}

// ListByRole returns employees holding role ordered by id.
func (r *PGRepository) ListByRole(ctx context.Context, role Role) ([]Employee, error) {
	const selectSQL = `SELECT ` + employeeColumns + ` FROM employees WHERE role = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, selectSQL, role)
	if err != nil {
		return nil, fmt.Errorf("auth: list employees: %w", err)
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: scan employee: %w", err)
		}
		out = append(out, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: list employees: %w", err)
	}
	return out, nil
}

func (r *PGRepository) SetAvailability(ctx context.Context, employeeID string, available bool) (Employee, error) {
	const updateSQL = `
		UPDATE employees SET available = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + employeeColumns

	emp, err := scanEmployee(r.pool.QueryRow(ctx, updateSQL, employeeID, available))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, ErrEmployeeNotFound
		}
		return Employee{}, fmt.Errorf("auth: set availability: %w", err)
	}
	return emp, nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(
		&emp.ID,
		&emp.Email,
		&emp.FullName,
		&emp.PasswordHash,
		&emp.Role,
		&emp.Available,
		&emp.CreatedAt,
		&emp.UpdatedAt,
	)
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}
