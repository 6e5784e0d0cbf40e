package commands

import (
	"errors"
	"strings"
	"testing"
)

func TestCompileCommandJSON(t *testing.T) {
	stdout, _, err := run(t, "", "compile", "Invoice", `{"filter": {"status": "draft"}}`,
		"--dialect", "postgres", "--config", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	for _, want := range []string{
		"-- Invoice rows (postgres)",
		"WHERE invoices.status = $1",
		`-- $1 = "draft"`,
		"SELECT COUNT(*) FROM invoices WHERE invoices.status = $1",
		"-- includes: customer",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, stdout)
		}
	}
}

func TestCompileCommandQueryFlag(t *testing.T) {
	stdout, _, err := run(t, "", "compile", "Invoice", "--query", "?filter[status]=draft&sort=-total",
		"--config", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if !strings.Contains(stdout, "(sqlite)") {
		t.Errorf("Expected the configured driver's dialect, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "invoices.status = ?") {
		t.Errorf("Expected a sqlite placeholder, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "invoices.total DESC") {
		t.Errorf("Expected a descending sort, got:\n%s", stdout)
	}
}

func TestCompileCommandStdin(t *testing.T) {
	stdout, _, err := run(t, `{"page": {"size": 5}}`, "compile", "LineItem", "-", "--config", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	if !strings.Contains(stdout, "LIMIT 6") && !strings.Contains(stdout, "LIMIT 5") {
		t.Errorf("Expected the requested page size, got:\n%s", stdout)
	}
	if strings.Contains(stdout, "COUNT") {
		t.Errorf("Expected no count query for cursor pagination, got:\n%s", stdout)
	}
}

func TestCompileCommandIssues(t *testing.T) {
	_, stderr, err := run(t, "", "compile", "Invoice", `{"filter": {"notes": "x", "status": "bogus"}}`,
		"--config", writeConfig(t, ""))
	if !errors.Is(err, ErrQueryRejected) {
		t.Fatalf("Expected ErrQueryRejected, got %v", err)
	}

	for _, want := range []string{"2 issue(s)", "field_not_filterable at filter.notes", "invalid_enum_value at filter.status"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("Expected stderr to contain %q, got:\n%s", want, stderr)
		}
	}
}

func TestCompileCommandRoles(t *testing.T) {
	path := writeConfig(t, "")
	params := `{"filter": {"credit_note": {"null": true}}}`

	if _, _, err := run(t, "", "compile", "Customer", params, "--config", path); !errors.Is(err, ErrQueryRejected) {
		t.Errorf("Expected anonymous compile to be rejected, got %v", err)
	}
	if _, _, err := run(t, "", "compile", "Customer", params, "--role", "admin", "--config", path); err != nil {
		t.Errorf("Expected admin compile to succeed, got %v", err)
	}
}

func TestCompileCommandErrors(t *testing.T) {
	path := writeConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown dialect", []string{"compile", "Invoice", "--dialect", "oracle"}},
		{"malformed JSON", []string{"compile", "Invoice", "{"}},
		{"both forms", []string{"compile", "Invoice", "{}", "--query", "sort=id"}},
		{"malformed query", []string{"compile", "Invoice", "--query", "bogus=1"}},
		{"unknown resource", []string{"compile", "Payment"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", append(tt.args, "--config", path)...)
			if err == nil {
				t.Error("Expected an error")
			}
			if errors.Is(err, ErrQueryRejected) {
				t.Errorf("Expected a usage error, got %v", err)
			}
		})
	}
}
