/*
Copyright © 2026 AVI COHEN
*/
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aviciot/queryscope/internal/qerror"
)

func writeQuery(t *testing.T, sql string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "query.sql")
	if err := os.WriteFile(path, []byte(sql), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// A statement rejected by the security phase must fail before any database
// is contacted: the DSN below points at a closed port, and a connection
// attempt would surface as ConnectionError (exit 3) instead of
// SecurityViolation (exit 2).
func TestAnalyze_SecurityRejectionBeforeConnect(t *testing.T) {
	path := writeQuery(t, "UPDATE orders SET status = 'open'")

	if err := analyzeCmd.Flags().Set("db", "postgres://127.0.0.1:1/orders_db"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = analyzeCmd.Flags().Set("db", "") }()

	err := analyzeCmd.RunE(analyzeCmd, []string{path})
	if !qerror.IsKind(err, qerror.SecurityViolation) {
		t.Fatalf("err = %v, want a security violation", err)
	}
	if code := qerror.ExitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestCompare_SecurityRejectionBeforeConnect(t *testing.T) {
	safe := writeQuery(t, "SELECT id FROM orders")
	forbidden := writeQuery(t, "DROP TABLE orders")

	if err := compareCmd.Flags().Set("db", "postgres://127.0.0.1:1/orders_db"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = compareCmd.Flags().Set("db", "") }()

	err := compareCmd.RunE(compareCmd, []string{safe, forbidden})
	if !qerror.IsKind(err, qerror.SecurityViolation) {
		t.Fatalf("err = %v, want a security violation", err)
	}
}
