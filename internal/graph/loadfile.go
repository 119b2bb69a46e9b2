package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/trane-project/trane/internal/domain"
)

// fileUnitSpec is the JSON wire shape for a unit library file: human-
// readable kind/exercise-type strings in place of domain's integer enums.
type fileUnitSpec struct {
	ID                string              `json:"id"`
	Kind              string              `json:"kind"` // "course", "lesson", "exercise"
	Dependencies      []string            `json:"dependencies,omitempty"`
	DependencyWeights map[string]uint32   `json:"dependency_weights,omitempty"`
	Superseded        []string            `json:"superseded,omitempty"`
	ParentCourse      string              `json:"parent_course,omitempty"`
	ParentLesson      string              `json:"parent_lesson,omitempty"`
	Metadata          map[string][]string `json:"metadata,omitempty"`
	ExerciseType      string              `json:"exercise_type,omitempty"` // "declarative" (default) or "procedural"
}

// LoadFile reads a unit library as a JSON array of unit descriptions and
// returns the resulting Graph. Course-library authoring and manifest
// content are out of scope; this is the narrow bridge from a serialized
// unit list to the in-memory dependency graph.
func LoadFile(path string) (*Graph, []LoadWarning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("graph: read library %s: %w", path, err)
	}

	var fileSpecs []fileUnitSpec
	if err := json.Unmarshal(data, &fileSpecs); err != nil {
		return nil, nil, fmt.Errorf("graph: parse library %s: %w", path, err)
	}

	specs := make([]UnitSpec, 0, len(fileSpecs))
	for _, fs := range fileSpecs {
		kind, err := parseKind(fs.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("graph: unit %q: %w", fs.ID, err)
		}
		etype := domain.Declarative
		if fs.ExerciseType == "procedural" {
			etype = domain.Procedural
		}
		specs = append(specs, UnitSpec{
			ID:                fs.ID,
			Kind:              kind,
			Dependencies:      fs.Dependencies,
			DependencyWeights: fs.DependencyWeights,
			Superseded:        fs.Superseded,
			ParentCourse:      fs.ParentCourse,
			ParentLesson:      fs.ParentLesson,
			Metadata:          fs.Metadata,
			ExerciseType:      etype,
		})
	}

	return Load(specs)
}

func parseKind(s string) (domain.Kind, error) {
	switch s {
	case "course":
		return domain.KindCourse, nil
	case "lesson":
		return domain.KindLesson, nil
	case "exercise":
		return domain.KindExercise, nil
	default:
		return 0, fmt.Errorf("unknown unit kind %q", s)
	}
}
