package helper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabase = "database"
	testUsername = "user"
	testPassword = "password"
	pgvectorImg  = "pgvector/pgvector:pg17"
)

// MustStartPostgresContainer starts a PostgreSQL container with the pgvector extension available.
// It returns the terminate function and the mapped host port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		pgvectorImg,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUsername),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("error getting mapped port: %w", err)
	}

	return pgContainer.Terminate, port.Port(), nil
}

// MustStartRedisContainer starts a redis container and returns the terminate function and its address.
func MustStartRedisContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	return startGenericContainer("redis:7-alpine", "6379/tcp", wait.ForLog("Ready to accept connections"))
}

// MustStartRabbitMQContainer starts a rabbitmq container and returns the terminate function and its amqp url.
func MustStartRabbitMQContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	terminate, addr, err := startGenericContainer("rabbitmq:3.13-alpine", "5672/tcp", wait.ForLog("Server startup complete"))
	if err != nil {
		return nil, "", err
	}
	return terminate, "amqp://guest:guest@" + addr + "/", nil
}

func startGenericContainer(image string, port string, strategy wait.Strategy) (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   strategy,
		},
		Started: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("error starting %s container: %w", image, err)
	}

	// Endpoint resolves the first exposed port, which is the only one requested.
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		return nil, "", fmt.Errorf("error getting container endpoint: %w", err)
	}

	return container.Terminate, endpoint, nil
}

// SetTestDatabaseConfigEnvs points the database configuration at the test container.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_DATABASE", testDatabase)
	t.Setenv("DB_USERNAME", testUsername)
	t.Setenv("DB_PASSWORD", testPassword)
	t.Setenv("DB_SCHEMA", "public")
	t.Setenv("DB_SSLMODE", "disable")
}
