package localexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsAllowed(t *testing.T) {
	exec := New("")

	tests := []struct {
		cmd     string
		args    []string
		allowed bool
	}{
		{"gofmt", []string{"-l", "tool.go"}, true},
		{"go", []string{"vet", "./..."}, false},     // verification is gofmt only
		{"gofmt", []string{"-w", "tool.go"}, false}, // rewrites files
		{"go", []string{"run", "."}, false},         // not in allowlist
		{"go", []string{}, false},                   // no subcommand
		{"rm", []string{"-rf", "/"}, false},         // not in allowlist
	}

	for _, tt := range tests {
		t.Run(tt.cmd+" "+strings.Join(tt.args, " "), func(t *testing.T) {
			got := exec.IsAllowed(tt.cmd, tt.args)
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s, %v) = %v, want %v", tt.cmd, tt.args, got, tt.allowed)
			}
		})
	}
}

func TestExecute_NotAllowed(t *testing.T) {
	_, err := New("").Execute(context.Background(), "rm", []string{"-rf", "/"})
	if err == nil {
		t.Error("Expected error for non-allowed command")
	}
}

func TestVerify(t *testing.T) {
	if _, err := exec.LookPath("gofmt"); err != nil {
		t.Skip("gofmt not on PATH")
	}

	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.go")
	messy := filepath.Join(dir, "messy.go")
	if err := os.WriteFile(clean, []byte("package tools\n\nfunc Check() bool { return true }\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(messy, []byte("package tools\nfunc Check( ) bool {return true}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(dir)
	res, err := l.Verify(context.Background(), clean)
	if err != nil {
		t.Fatalf("Verify clean: %v", err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) != "" {
		t.Errorf("clean file flagged: exit %d stdout %q", res.ExitCode, res.Stdout)
	}

	res, err = l.Verify(context.Background(), messy)
	if err != nil {
		t.Fatalf("Verify messy: %v", err)
	}
	if !strings.Contains(res.Stdout, "messy.go") {
		t.Errorf("messy file not listed: %q", res.Stdout)
	}
}
