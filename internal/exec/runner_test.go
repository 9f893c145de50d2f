package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecRunner_Run(t *testing.T) {
	r := NewRunner()
	out, err := r.Run(context.Background(), "", "echo", "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("expected hello, got %q", out)
	}
}

func TestExecRunner_RunShellWorkDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(WithEnv("HOLLON_TEST_VALUE=42"))
	out, err := r.RunShell(context.Background(), dir, "pwd; echo $HOLLON_TEST_VALUE")
	if err != nil {
		t.Fatalf("RunShell: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	got, _ := filepath.EvalSymlinks(lines[0])
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("expected dir %s, got %s", want, got)
	}
	if lines[1] != "42" {
		t.Errorf("expected env value 42, got %q", lines[1])
	}
}

func TestExecRunner_RunFailure(t *testing.T) {
	r := NewRunner()
	if _, err := r.RunShell(context.Background(), "", "exit 3"); err == nil {
		t.Error("expected error for non-zero exit")
	}
}

func TestExecRunner_Exists(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewRunner()
	ctx := context.Background()

	if !r.Exists(ctx, dir, "go.mod") {
		t.Error("expected relative go.mod to exist")
	}
	if !r.Exists(ctx, "", filepath.Join(dir, "go.mod")) {
		t.Error("expected absolute go.mod to exist")
	}
	if r.Exists(ctx, dir, "package.json") {
		t.Error("expected package.json to be missing")
	}
}
