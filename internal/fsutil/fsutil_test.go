package fsutil_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/h3ow3d/loggy/internal/fsutil"
)

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := fsutil.EnsureDir(dir); err != nil {
		t.Fatalf("first EnsureDir: %v", err)
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		t.Fatalf("second EnsureDir: %v", err)
	}
	if !fsutil.IsDir(dir) {
		t.Errorf("%s is not a directory", dir)
	}
}

func TestCopyFilePreservesMode(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src", "entrypoint.sh")
	dst := filepath.Join(tmp, "dst", "nested", "entrypoint.sh")
	writeFile(t, src, "#!/bin/sh\necho hi\n", 0o750)

	if err := fsutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "#!/bin/sh\necho hi\n" {
		t.Errorf("content = %q", data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o750 {
		t.Errorf("mode = %o, want 750", info.Mode().Perm())
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	tmp := t.TempDir()
	if err := fsutil.CopyFile(filepath.Join(tmp, "nope"), filepath.Join(tmp, "out")); err == nil {
		t.Error("expected error for missing source, got nil")
	}
}

func TestMakeExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sh")
	writeFile(t, path, "#!/bin/sh\n", 0o644)

	if err := fsutil.MakeExecutable(path); err != nil {
		t.Fatalf("MakeExecutable: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %o, want 755", info.Mode().Perm())
	}
}

func TestTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "kibana")
	writeFile(t, filepath.Join(root, "config", "kibana.yml.j2"), "x", 0o644)
	writeFile(t, filepath.Join(root, "Dockerfile"), "x", 0o644)
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, dirs, err := fsutil.Tree(root)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	sort.Strings(files)
	sort.Strings(dirs)

	wantFiles := []string{"Dockerfile", filepath.Join("config", "kibana.yml.j2")}
	wantDirs := []string{"config", "empty"}
	if len(files) != len(wantFiles) || files[0] != wantFiles[0] || files[1] != wantFiles[1] {
		t.Errorf("files = %v, want %v", files, wantFiles)
	}
	if len(dirs) != len(wantDirs) || dirs[0] != wantDirs[0] || dirs[1] != wantDirs[1] {
		t.Errorf("dirs = %v, want %v", dirs, wantDirs)
	}
}

func TestForceRemoveAllReadOnlyTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deploy")
	locked := filepath.Join(root, "tls", "certs")
	writeFile(t, filepath.Join(locked, "ca.crt"), "cert", 0o400)
	if err := os.Chmod(locked, 0o500); err != nil {
		t.Fatal(err)
	}

	if err := fsutil.ForceRemoveAll(root); err != nil {
		t.Fatalf("ForceRemoveAll: %v", err)
	}
	if fsutil.Exists(root) {
		t.Errorf("%s still exists", root)
	}
}

func TestForceRemoveAllMissing(t *testing.T) {
	if err := fsutil.ForceRemoveAll(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("ForceRemoveAll on missing path: %v", err)
	}
}

func TestWriteFileKeepsExistingMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kibana.yml")
	writeFile(t, path, "old", 0o640)

	if err := fsutil.WriteFile(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %o, want 640", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %q", data)
	}
}
