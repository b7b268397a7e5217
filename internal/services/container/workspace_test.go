package container

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolvePath(t *testing.T) {
	root := filepath.Join("/data", "workspaces", "ws-1")

	tests := []struct {
		name    string
		rel     string
		want    string
		blocked bool
	}{
		{name: "plain file", rel: "main.go", want: filepath.Join(root, "main.go")},
		{name: "nested file", rel: "internal/app/app.go", want: filepath.Join(root, "internal", "app", "app.go")},
		{name: "empty resolves to root", rel: "", want: root},
		{name: "dot resolves to root", rel: ".", want: root},
		{name: "redundant segments cleaned", rel: "./a/./b", want: filepath.Join(root, "a", "b")},
		{name: "internal dotdot allowed", rel: "a/../b.txt", want: filepath.Join(root, "b.txt")},
		{name: "absolute path", rel: "/etc/passwd", blocked: true},
		{name: "parent escape", rel: "..", blocked: true},
		{name: "parent file escape", rel: "../secrets.txt", blocked: true},
		{name: "cleaned escape", rel: "a/../../secrets.txt", blocked: true},
		{name: "deep escape", rel: "a/b/../../../x", blocked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(root, tt.rel)
			if tt.blocked {
				if !errors.Is(err, ErrOutOfWorkspace) {
					t.Fatalf("expected ErrOutOfWorkspace for %q, got %v", tt.rel, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.rel, got, tt.want)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("src/main.go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePath("../escape"); !errors.Is(err, ErrOutOfWorkspace) {
		t.Fatalf("expected ErrOutOfWorkspace, got %v", err)
	}
	if err := ValidatePath("/abs"); !errors.Is(err, ErrOutOfWorkspace) {
		t.Fatalf("expected ErrOutOfWorkspace, got %v", err)
	}
}
