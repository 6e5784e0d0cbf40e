package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a querykit.yml pointing at testdata/schema.yml and returns its path
func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "schema.yml"))
	if err != nil {
		t.Fatalf("failed to resolve schema path: %v", err)
	}

	dir := t.TempDir()
	content := fmt.Sprintf(`database:
  driver: sqlite3
  url: ":memory:"
schema:
  path: %q
%s`, schemaPath, extra)

	path := filepath.Join(dir, "querykit.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// run executes the root command and returns stdout and stderr
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color"}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "querykit" {
		t.Errorf("Expected Use to be 'querykit', got %q", cmd.Use)
	}
	if !cmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}
	if !cmd.SilenceErrors {
		t.Error("Expected SilenceErrors to be true")
	}

	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected persistent --config flag")
	}

	expected := []string{"version", "schema", "compile", "serve", "token"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected subcommand %q to be registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	for _, want := range []string{"querykit version: dev", "Git commit:", "Build date:", "Go version: go"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, stdout)
		}
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := run(t, "", "schema", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("Expected an error for a missing config file")
	}
}
