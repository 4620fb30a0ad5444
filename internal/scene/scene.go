package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultMaxElements caps the element collection accepted at the boundary.
const DefaultMaxElements = 5000

var (
	ErrTooManyElements  = errors.New("scene has too many elements")
	ErrInvalidViewState = errors.New("view state must be an object")
	ErrMissingElementID = errors.New("element without id")
	ErrDuplicateElement = errors.New("duplicate element id")
)

// Scene is what the canvas editor renders: the element list plus the
// collaborator-local view state (zoom, scroll, active tool).
type Scene struct {
	Elements  []Element       `json:"elements"`
	ViewState json.RawMessage `json:"viewState,omitempty"`
}

// Board is the durable board record as the synchronization engine sees it.
type Board struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	OwnerID  string `json:"owner_id,omitempty"`
	IsPublic bool   `json:"is_public"`
	Version  int64  `json:"version"`
	Scene
}

// Empty returns a fresh scene with no elements and no view state.
func Empty() Scene {
	return Scene{Elements: []Element{}}
}

// Clone deep-copies the scene.
func (s Scene) Clone() Scene {
	return Scene{
		Elements:  CloneElements(s.Elements),
		ViewState: append(json.RawMessage(nil), s.ViewState...),
	}
}

// Validate checks a scene before it is handed to the canvas editor or
// persisted. maxElements <= 0 means DefaultMaxElements.
func Validate(s Scene, maxElements int) error {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	if len(s.Elements) > maxElements {
		return fmt.Errorf("%w: %d > %d", ErrTooManyElements, len(s.Elements), maxElements)
	}
	if err := ValidateViewState(s.ViewState); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Elements))
	for i, e := range s.Elements {
		if e.ID == "" {
			return fmt.Errorf("%w at index %d", ErrMissingElementID, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateElement, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// ValidateViewState accepts an absent/null view state or a JSON object.
func ValidateViewState(raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return ErrInvalidViewState
	}
	return nil
}
