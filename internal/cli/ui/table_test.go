package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "NAME", "KIND", "FILTERABLE")
	table.AddRow("status", "enum", "yes")
	table.AddRow("due_on", "date")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), buf.String())
	}

	if lines[0] != "NAME    KIND  FILTERABLE" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "──────  ────") {
		t.Errorf("unexpected rule %q", lines[1])
	}
	if lines[2] != "status  enum  yes" {
		t.Errorf("unexpected row %q", lines[2])
	}
	// the last cell is not padded
	if lines[3] != "due_on  date  " {
		t.Errorf("unexpected row %q", lines[3])
	}
}

func TestTableDropsExtraCells(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, true, "A")
	table.AddRow("x", "y")
	table.Render()

	if strings.Contains(buf.String(), "y") {
		t.Errorf("extra cell rendered: %q", buf.String())
	}
}
