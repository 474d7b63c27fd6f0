package test

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mediora-tech/mediora/core/client"
	"github.com/mediora-tech/mediora/core/csql"
	"github.com/mediora-tech/mediora/core/dispatch"
	"github.com/mediora-tech/mediora/services/mediora/catalog"
)

// IntegrationTestSuite runs the full catalog against a real Postgres
// instance in a container. It authenticates through injected principals,
// so no session store is needed.
type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer testcontainers.Container
	db                *csql.DB
	router            *mux.Router
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	s.Require().NoError(err)
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.db = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "mediora_test")
	s.db.ClearSchema()

	registry := catalog.NewRegistry()
	validator, err := catalog.NewValidator()
	s.Require().NoError(err)

	store, err := dispatch.NewPostgresStore(s.db, registry)
	s.Require().NoError(err)

	s.router = mux.NewRouter()
	dispatch.New(&dispatch.Builder{
		Registry:  registry,
		Validator: validator,
		Store:     store,
		Router:    s.router,
	})
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.db != nil {
		s.db.Close()
	}
	if s.postgresContainer != nil {
		err := s.postgresContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
}

// Client returns an in-process client with admin permissions.
func (s *IntegrationTestSuite) Client() client.Client {
	return client.NewWithRouter(s.router).WithAdminPrincipal()
}
