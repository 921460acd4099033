package infra

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Container wraps a disposable Postgres. The zero value stands for a database
// the test did not start and must not stop.
type Container struct {
	pg *postgres.PostgresContainer
}

// StartPostgres boots postgres:16-alpine and returns its DSN.
func StartPostgres(ctx context.Context) (*Container, string, error) {
	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lifetree"),
		postgres.WithUsername("lifetree"),
		postgres.WithPassword("lifetree"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve connection string: %w", err)
	}
	return &Container{pg: pg}, dsn, nil
}

func (c *Container) Terminate(ctx context.Context) error {
	if c == nil || c.pg == nil {
		return nil
	}
	return c.pg.Terminate(ctx)
}
