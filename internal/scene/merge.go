package scene

import (
	"github.com/samber/lo"
)

// MergeResult is the outcome of reconciling a local and a remote element list.
type MergeResult struct {
	Elements []Element
	// LocalAhead counts elements kept from the local side that the remote side
	// either lacks or holds at an older version.
	LocalAhead int
	// Ahead lists the ids of those local elements.
	Ahead []string
	// RemoteWins counts local elements replaced by a newer remote version.
	RemoteWins int
	// RemoteAdded counts remote elements the local side had never seen.
	RemoteAdded int
}

// Merge reconciles local and remote with per-element last-write-wins on
// Version. Ties keep the local element. Local elements without a remote
// counterpart are kept; deletions travel as tombstones (IsDeleted) instead.
func Merge(local, remote []Element) []Element {
	return MergeDetailed(local, remote).Elements
}

// MergeDetailed is Merge plus bookkeeping the engine uses to decide whether
// the merged result still carries unsaved local content.
func MergeDetailed(local, remote []Element) MergeResult {
	pending := lo.KeyBy(remote, func(e Element) string { return e.ID })

	res := MergeResult{Elements: make([]Element, 0, len(local)+len(remote))}
	for _, l := range local {
		r, ok := pending[l.ID]
		if !ok {
			res.LocalAhead++
			res.Ahead = append(res.Ahead, l.ID)
			res.Elements = append(res.Elements, l.Clone())
			continue
		}
		delete(pending, l.ID)
		switch {
		case r.Version > l.Version:
			res.RemoteWins++
			res.Elements = append(res.Elements, r.Clone())
		case l.Version > r.Version:
			res.LocalAhead++
			res.Ahead = append(res.Ahead, l.ID)
			res.Elements = append(res.Elements, l.Clone())
		default:
			res.Elements = append(res.Elements, l.Clone())
		}
	}

	for _, r := range remote {
		if _, ok := pending[r.ID]; !ok {
			continue
		}
		// duplicate remote ids: first occurrence wins the slot, latest value is
		// what KeyBy kept
		res.Elements = append(res.Elements, pending[r.ID].Clone())
		delete(pending, r.ID)
		res.RemoteAdded++
	}
	return res
}

// VersionsDiffer reports whether two element lists of the same content carry
// different version counters, which still requires handing the merged list to
// the canvas so its next local edit bumps from the right base.
func VersionsDiffer(a, b []Element) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Version != b[i].Version {
			return true
		}
	}
	return false
}
