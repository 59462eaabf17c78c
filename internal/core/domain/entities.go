package domain

import (
	"path/filepath"
	"strings"
)

// SourceDescriptor identifies one agency dataset and its declared coverage.
type SourceDescriptor struct {
	Handle string      `json:"handle"` // file name relative to the data root
	Label  string      `json:"label"`
	Box    BoundingBox `json:"box"`
}

// LabelFromHandle derives the display label of a source: the handle with its
// extension stripped, upper-cased ("la_metro.txt" -> "LA_METRO").
func LabelFromHandle(handle string) string {
	base := filepath.Base(strings.TrimSpace(handle))
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Matches reports whether name refers to this source by handle or label.
func (s SourceDescriptor) Matches(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(s.Handle, name) || strings.EqualFold(s.Label, name)
}

// EntranceRecord is one physical access point to a station.
type EntranceRecord struct {
	StationName string  `json:"station_name"`
	Identifier  string  `json:"identifier,omitempty"` // line/route tag, may be empty
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// MatchResult is one output row of an entrance query.
type MatchResult struct {
	StationName string  `json:"stationName"`
	Source      string  `json:"source"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Score       int     `json:"score,omitempty"` // fuzzy score, zero for unranked dumps
}
