package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SQLServerImage is the SQL Server image used for integration tests.
const SQLServerImage = "mcr.microsoft.com/mssql/server:2022-latest"

const (
	testSAPassword = "Ekaya_Test_Passw0rd!"
	testDatabase   = "ReportsTest"
)

// TestSQLServer holds a shared SQL Server container seeded with a small
// Customers table.
type TestSQLServer struct {
	Container testcontainers.Container
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	DB        *sql.DB
}

var (
	sharedSQLServer     *TestSQLServer
	sharedSQLServerOnce sync.Once
	sharedSQLServerErr  error
)

// GetTestSQLServer returns a shared SQL Server container for integration tests.
// The container is created once and reused across all tests in the run.
// Skipped in short mode or when SKIP_MSSQL_TESTS is set.
func GetTestSQLServer(t *testing.T) *TestSQLServer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
	if os.Getenv("SKIP_MSSQL_TESTS") != "" {
		t.Skip("Skipping SQL Server integration test: SKIP_MSSQL_TESTS is set")
	}

	sharedSQLServerOnce.Do(func() {
		sharedSQLServer, sharedSQLServerErr = setupSQLServer()
	})

	if sharedSQLServerErr != nil {
		t.Fatalf("Failed to setup SQL Server: %v", sharedSQLServerErr)
	}

	return sharedSQLServer
}

func setupSQLServer() (*TestSQLServer, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        SQLServerImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": testSAPassword,
			"MSSQL_PID":         "Developer",
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, "1433")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	server := &TestSQLServer{
		Container: container,
		Host:      host,
		Port:      mapped.Int(),
		User:      "sa",
		Password:  testSAPassword,
		Database:  testDatabase,
	}

	master, err := sql.Open("sqlserver", server.connString("master"))
	if err != nil {
		return nil, fmt.Errorf("failed to open master connection: %w", err)
	}
	defer master.Close()

	// The log line can appear before logins are accepted.
	for i := 0; i < 20; i++ {
		if err = master.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("SQL Server did not accept connections: %w", err)
	}

	if _, err := master.ExecContext(ctx, "IF DB_ID('"+testDatabase+"') IS NULL CREATE DATABASE "+testDatabase); err != nil {
		return nil, fmt.Errorf("failed to create test database: %w", err)
	}

	db, err := sql.Open("sqlserver", server.connString(testDatabase))
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	seed := `
	IF OBJECT_ID('dbo.Customers') IS NULL
	BEGIN
		CREATE TABLE dbo.Customers (
			Id INT NOT NULL PRIMARY KEY,
			CreatedAt DATETIME2 NOT NULL,
			CustomerName NVARCHAR(200) NOT NULL,
			Region NVARCHAR(50) NULL,
			Balance DECIMAL(18, 2) NULL
		);
		INSERT INTO dbo.Customers (Id, CreatedAt, CustomerName, Region, Balance) VALUES
			(1, '2024-01-05', 'Contoso', 'West', 120.50),
			(2, '2024-02-11', 'Fabrikam', 'South', 75.00),
			(3, '2024-03-20', 'Northwind', 'West', NULL);
	END`
	if _, err := db.ExecContext(ctx, seed); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed test database: %w", err)
	}

	server.DB = db
	return server, nil
}

func (s *TestSQLServer) connString(database string) string {
	q := url.Values{}
	q.Add("database", database)
	q.Add("encrypt", "disable")
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(s.User, s.Password),
		Host:     fmt.Sprintf("%s:%d", s.Host, s.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}
