package main

import (
	"regexp"
	"strings"
	"testing"
)

func TestTodoCmd_Help(t *testing.T) {
	out, err := runCmd(t, "todo", "--help")
	if err != nil {
		t.Fatalf("todo --help failed: %v", err)
	}
	for _, sub := range []string{"add", "list", "show", "update", "delete", "counts"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q subcommand, got: %s", sub, out)
		}
	}
}

func TestNewTodoAddCmd(t *testing.T) {
	cmd := newTodoAddCmd()
	if cmd.Use != "add <title>" {
		t.Errorf("Use = %q", cmd.Use)
	}
	for _, name := range []string{"description", "url", "priority", "service", "config"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}

var todoIDRe = regexp.MustCompile(`td-[0-9a-f]{12}`)

func createTestTodo(t *testing.T, cfgPath, title string, extra ...string) string {
	t.Helper()
	args := append([]string{"todo", "add", title, "-c", cfgPath}, extra...)
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("todo add: %v", err)
	}
	id := todoIDRe.FindString(out)
	if id == "" {
		t.Fatalf("no todo ID in output: %s", out)
	}
	return id
}

func TestTodoAddAndList(t *testing.T) {
	cfgPath := writeTestConfig(t)

	id := createTestTodo(t, cfgPath, "Buy milk", "--priority", "high")

	out, err := runCmd(t, "todo", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Buy milk") {
		t.Errorf("list output = %s", out)
	}
	if !strings.Contains(out, "high") {
		t.Errorf("list output missing priority: %s", out)
	}
}

func TestTodoList_Empty(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "todo", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo list: %v", err)
	}
	if !strings.Contains(out, "No todos found.") {
		t.Errorf("output = %s", out)
	}
}

func TestTodoShow(t *testing.T) {
	cfgPath := writeTestConfig(t)
	id := createTestTodo(t, cfgPath, "Compare brokers", "--description", "latency matters")

	out, err := runCmd(t, "todo", "show", id, "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo show: %v", err)
	}
	if !strings.Contains(out, "Compare brokers") || !strings.Contains(out, "latency matters") {
		t.Errorf("show output = %s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("show output missing status: %s", out)
	}
}

func TestTodoShow_NotFound(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCmd(t, "todo", "show", "td-000000000000", "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo show: %v", err)
	}
	if !strings.Contains(out, "not found") {
		t.Errorf("output = %s", out)
	}
}

func TestTodoUpdate(t *testing.T) {
	cfgPath := writeTestConfig(t)
	id := createTestTodo(t, cfgPath, "Rename me")

	out, err := runCmd(t, "todo", "update", id, "--title", "Renamed", "--status", "done", "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo update: %v", err)
	}
	if !strings.Contains(out, "status: done") {
		t.Errorf("update output = %s", out)
	}

	out, _ = runCmd(t, "todo", "show", id, "-c", cfgPath)
	if !strings.Contains(out, "Renamed") || !strings.Contains(out, "Completed:") {
		t.Errorf("show after update = %s", out)
	}
}

func TestTodoDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	id := createTestTodo(t, cfgPath, "Doomed")

	out, err := runCmd(t, "todo", "delete", id, "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo delete: %v", err)
	}
	if !strings.Contains(out, "Deleted todo "+id) {
		t.Errorf("delete output = %s", out)
	}

	out, _ = runCmd(t, "todo", "delete", id, "-c", cfgPath)
	if !strings.Contains(out, "not found") {
		t.Errorf("second delete output = %s", out)
	}
}

func TestTodoCounts(t *testing.T) {
	cfgPath := writeTestConfig(t)
	createTestTodo(t, cfgPath, "One")
	createTestTodo(t, cfgPath, "Two")

	out, err := runCmd(t, "todo", "counts", "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo counts: %v", err)
	}
	if !strings.Contains(out, "pending") || !strings.Contains(out, "2") {
		t.Errorf("counts output = %s", out)
	}
}

func TestTodoUpdate_RejectsUnknownEnums(t *testing.T) {
	cfgPath := writeTestConfig(t)
	id := createTestTodo(t, cfgPath, "Strictly validated")

	if _, err := runCmd(t, "todo", "update", id, "--status", "bogus", "-c", cfgPath); err == nil {
		t.Error("unknown --status accepted, want error")
	}
	if _, err := runCmd(t, "todo", "update", id, "--priority", "urgent", "-c", cfgPath); err == nil {
		t.Error("unknown --priority accepted, want error")
	}

	// The rejected flags must not have changed the row.
	out, err := runCmd(t, "todo", "show", id, "-c", cfgPath)
	if err != nil {
		t.Fatalf("todo show: %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("show output = %s, want pending status", out)
	}
}

func TestTodoAdd_RejectsUnknownPriority(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCmd(t, "todo", "add", "x", "--priority", "urgent", "-c", cfgPath); err == nil {
		t.Error("unknown --priority accepted, want error")
	}
}

func TestTodoList_RejectsUnknownStatus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCmd(t, "todo", "list", "--status", "bogus", "-c", cfgPath); err == nil {
		t.Error("unknown --status accepted, want error")
	}
}
