package scene

import (
	"encoding/json"
)

// Element is a single drawing element on a board.
//
// Known fields are typed; anything else the canvas editor stores on an element
// (bindings, group ids, render seeds, ...) is carried in Extra so that it
// round-trips through the backend untouched.
type Element struct {
	ID              string       `json:"id"`
	Type            string       `json:"type"`
	X               float64      `json:"x"`
	Y               float64      `json:"y"`
	Width           float64      `json:"width"`
	Height          float64      `json:"height"`
	Angle           float64      `json:"angle"`
	Points          [][2]float64 `json:"points,omitempty"`
	Text            string       `json:"text,omitempty"`
	StrokeColor     string       `json:"strokeColor,omitempty"`
	BackgroundColor string       `json:"backgroundColor,omitempty"`
	FillStyle       string       `json:"fillStyle,omitempty"`
	StrokeWidth     float64      `json:"strokeWidth,omitempty"`
	StrokeStyle     string       `json:"strokeStyle,omitempty"`
	Opacity         float64      `json:"opacity,omitempty"`
	Version         int64        `json:"version"`
	VersionNonce    int64        `json:"versionNonce,omitempty"`
	IsDeleted       bool         `json:"isDeleted"`
	Updated         int64        `json:"updated,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// element is Element without its methods, used to avoid recursion in the
// custom JSON codec.
type element Element

var knownFields = map[string]struct{}{
	"id": {}, "type": {}, "x": {}, "y": {}, "width": {}, "height": {}, "angle": {},
	"points": {}, "text": {}, "strokeColor": {}, "backgroundColor": {}, "fillStyle": {},
	"strokeWidth": {}, "strokeStyle": {}, "opacity": {}, "version": {}, "versionNonce": {},
	"isDeleted": {}, "updated": {},
}

func (e *Element) UnmarshalJSON(data []byte) error {
	var known element
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range knownFields {
		delete(all, k)
	}
	if len(all) > 0 {
		known.Extra = all
	}
	*e = Element(known)
	return nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(element(e))
	if err != nil || len(e.Extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, ok := knownFields[k]; ok {
			continue
		}
		all[k] = v
	}
	return json.Marshal(all)
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	c := e
	if e.Points != nil {
		c.Points = make([][2]float64, len(e.Points))
		copy(c.Points, e.Points)
	}
	if e.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(e.Extra))
		for k, v := range e.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// CloneElements deep-copies a slice of elements. A nil input yields an empty,
// non-nil slice so callers can serialize it as [].
func CloneElements(elements []Element) []Element {
	out := make([]Element, len(elements))
	for i, e := range elements {
		out[i] = e.Clone()
	}
	return out
}

// Live filters out tombstoned elements.
func Live(elements []Element) []Element {
	out := make([]Element, 0, len(elements))
	for _, e := range elements {
		if !e.IsDeleted {
			out = append(out, e)
		}
	}
	return out
}
