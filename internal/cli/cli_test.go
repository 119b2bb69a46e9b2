package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestLibrary(t *testing.T) string {
	t.Helper()
	const library = `[
		{"id": "course", "kind": "course"},
		{"id": "course::lesson", "kind": "lesson", "parent_course": "course"},
		{"id": "course::lesson::e1", "kind": "exercise", "parent_lesson": "course::lesson"}
	]`
	path := filepath.Join(t.TempDir(), "library.json")
	if err := os.WriteFile(path, []byte(library), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func runRootWithArgs(t *testing.T, args []string) (string, error) {
	t.Helper()
	libraryFlag = ""
	configFlag = filepath.Join(t.TempDir(), "unused.toml")
	rootCmd.SetArgs(args)
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestBatchCommandPrintsExercises(t *testing.T) {
	library := writeTestLibrary(t)
	out, err := runRootWithArgs(t, []string{"batch", "--library", library})
	if err != nil {
		t.Fatalf("batch: %v, output: %s", err, out)
	}
	if out == "" {
		t.Fatal("expected non-empty batch output")
	}
}

func TestTrialCommandRecordsTrial(t *testing.T) {
	library := writeTestLibrary(t)
	if _, err := runRootWithArgs(t, []string{"trial", "course::lesson::e1", "--score", "5", "--library", library}); err != nil {
		t.Fatalf("trial: %v", err)
	}
}

func TestMissingLibraryFlagErrors(t *testing.T) {
	if _, err := runRootWithArgs(t, []string{"batch"}); err == nil {
		t.Fatal("expected an error when --library is omitted")
	}
}
