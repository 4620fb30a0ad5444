package scene

import (
	"bytes"
	"encoding/json"
)

// projection is the part of an element that counts as drawing content.
// Version counters, nonces, timestamps and editor bookkeeping in Extra are
// left out: they change without the drawing changing.
type projection struct {
	ID              string       `json:"id"`
	Type            string       `json:"type"`
	X               float64      `json:"x"`
	Y               float64      `json:"y"`
	Width           float64      `json:"w"`
	Height          float64      `json:"h"`
	Angle           float64      `json:"a"`
	Points          [][2]float64 `json:"p"`
	Text            string       `json:"t"`
	StrokeColor     string       `json:"sc"`
	BackgroundColor string       `json:"bg"`
	FillStyle       string       `json:"fs"`
	StrokeWidth     float64      `json:"sw"`
	StrokeStyle     string       `json:"ss"`
	Opacity         float64      `json:"o"`
	IsDeleted       bool         `json:"d"`
}

func project(e Element) projection {
	return projection{
		ID:              e.ID,
		Type:            e.Type,
		X:               e.X,
		Y:               e.Y,
		Width:           e.Width,
		Height:          e.Height,
		Angle:           e.Angle,
		Points:          e.Points,
		Text:            e.Text,
		StrokeColor:     e.StrokeColor,
		BackgroundColor: e.BackgroundColor,
		FillStyle:       e.FillStyle,
		StrokeWidth:     e.StrokeWidth,
		StrokeStyle:     e.StrokeStyle,
		Opacity:         e.Opacity,
		IsDeleted:       e.IsDeleted,
	}
}

func fingerprint(elements []Element) ([]byte, error) {
	ps := make([]projection, len(elements))
	for i, e := range elements {
		ps[i] = project(e)
	}
	return json.Marshal(ps)
}

// ContentChanged reports whether next differs from baseline in drawing
// content. View state is never part of the comparison. If either side cannot
// be projected (e.g. NaN geometry) the change is reported, so a save is never
// dropped on the floor.
func ContentChanged(next, baseline []Element) bool {
	if len(next) != len(baseline) {
		return true
	}
	a, err := fingerprint(next)
	if err != nil {
		return true
	}
	b, err := fingerprint(baseline)
	if err != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

// ElementChanged is ContentChanged for a single element.
func ElementChanged(next, prev Element) bool {
	return ContentChanged([]Element{next}, []Element{prev})
}
