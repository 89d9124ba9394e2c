package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/eventpages/internal/config"
)

func TestResolveDriver(test *testing.T) {
	directory := test.TempDir()
	testCases := []struct {
		name       string
		dsn        string
		wantDriver string
		wantPath   string
	}{
		{name: "postgres", dsn: "postgres://user@localhost/eventpages", wantDriver: driverPostgres},
		{name: "postgresql", dsn: "postgresql://user@localhost/eventpages", wantDriver: driverPostgres},
		{name: "sqlite url", dsn: "sqlite://" + filepath.Join(directory, "a.db"), wantDriver: driverSQLite, wantPath: filepath.Join(directory, "a.db")},
		{name: "bare path", dsn: filepath.Join(directory, "nested", "b.db"), wantDriver: driverSQLite, wantPath: filepath.Join(directory, "nested", "b.db")},
		{name: "memory", dsn: ":memory:", wantDriver: driverSQLite, wantPath: ":memory:"},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			driver, path, err := resolveDriver(testCase.dsn)
			if err != nil {
				test.Fatalf("resolve: %v", err)
			}
			if driver != testCase.wantDriver || path != testCase.wantPath {
				test.Fatalf("got (%s, %s), want (%s, %s)", driver, path, testCase.wantDriver, testCase.wantPath)
			}
		})
	}
}

func TestNewApplicationWiresSQLite(test *testing.T) {
	cfg := config.Config{
		DatabaseURL:   "sqlite://" + filepath.Join(test.TempDir(), "app.db"),
		JWTSigningKey: "signing-key",
		WebhookSecret: "webhook-secret",
	}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	app, err := newApplication(context.Background(), cfg)
	if err != nil {
		test.Fatalf("new application: %v", err)
	}
	defer app.close()

	report, err := app.sweeper.Run(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if report.HasFindings() {
		test.Fatalf("expected an empty database to be consistent: %+v", report)
	}
}

func TestRootCommandRequiresSecrets(test *testing.T) {
	test.Setenv("EVENTPAGES_JWT_SIGNING_KEY", "")
	test.Setenv("EVENTPAGES_WEBHOOK_SECRET", "")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"reconcile", "--" + config.KeyDatabaseURL, "sqlite://" + filepath.Join(test.TempDir(), "c.db")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), config.KeyJWTSigningKey) {
		test.Fatalf("expected missing signing key error, got %v", err)
	}
}
