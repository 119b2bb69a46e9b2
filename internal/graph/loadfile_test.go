package graph

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileParsesLibraryJSON(t *testing.T) {
	const library = `[
		{"id": "music", "kind": "course"},
		{"id": "music::guitar", "kind": "lesson", "parent_course": "music"},
		{"id": "music::guitar::c_major", "kind": "exercise", "parent_lesson": "music::guitar", "exercise_type": "procedural"}
	]`
	path := filepath.Join(t.TempDir(), "library.json")
	if err := os.WriteFile(path, []byte(library), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g, warnings, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
	course, ok := g.Interner().Lookup("music")
	if !ok {
		t.Fatal("expected course to be interned")
	}
	lessons := g.GetLessons(course)
	if len(lessons) != 1 {
		t.Fatalf("len(lessons) = %d, want 1", len(lessons))
	}
}

func TestLoadFileRejectsUnknownKind(t *testing.T) {
	const library = `[{"id": "x", "kind": "bogus"}]`
	path := filepath.Join(t.TempDir(), "library.json")
	if err := os.WriteFile(path, []byte(library), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := LoadFile(path); err == nil {
		t.Fatal("expected an error for an unknown unit kind")
	}
}
