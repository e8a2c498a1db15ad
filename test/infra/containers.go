package infra

import (
	"context"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres starts a throwaway Postgres 16 container and returns its DSN.
func StartPostgres(ctx context.Context) (*PGContainer, string, error) {
	pgC, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("inquiryflow"),
		postgres.WithUsername("inquiryflow"),
		postgres.WithPassword("inquiryflow"),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable", "application_name=inquiryflow-stress")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

// Terminate is a no-op for databases the harness did not start.
func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
