// internal/models/query_types.go
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EndpointKind names one of the backend data categories for a child.
type EndpointKind string

const (
	EndpointConceptPerformance  EndpointKind = "concept-performance"
	EndpointPerformanceTimeline EndpointKind = "performance-timeline"
	EndpointOverallStatistics   EndpointKind = "overall-statistics"
)

// KnownEndpointKinds lists the kinds the aggregator may dispatch.
var KnownEndpointKinds = []EndpointKind{
	EndpointConceptPerformance,
	EndpointPerformanceTimeline,
	EndpointOverallStatistics,
}

func IsKnownEndpointKind(kind string) bool {
	for _, k := range KnownEndpointKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

// Themes is the controlled vocabulary of financial-literacy themes.
var Themes = []string{
	"Menabung", "Berbagi", "Kebutuhan vs Keinginan", "Instrumen Keuangan", "Kejujuran",
	"Kerja Keras", "Tanggung Jawab", "Perencanaan Keuangan", "Nilai Uang", "Konsep Dasar Uang",
	"Donasi", "Berbelanja dengan Bijak", "Kewirausahaan", "Gotong Royong", "Amanah", "Investasi",
}

func IsKnownTheme(theme string) bool {
	for _, t := range Themes {
		if t == theme {
			return true
		}
	}
	return false
}

// FilterThemes splits themes into vocabulary members and noise, keeping input order.
func FilterThemes(themes []string) (known []string, dropped []string) {
	for _, t := range themes {
		t = strings.TrimSpace(t)
		if IsKnownTheme(t) {
			known = append(known, t)
		} else if t != "" {
			dropped = append(dropped, t)
		}
	}
	return known, dropped
}

type TimeUnit string

const (
	TimeUnitDay   TimeUnit = "day"
	TimeUnitWeek  TimeUnit = "week"
	TimeUnitMonth TimeUnit = "month"
)

func (u TimeUnit) Valid() bool {
	switch u {
	case TimeUnitDay, TimeUnitWeek, TimeUnitMonth:
		return true
	}
	return false
}

// DateLayout is the wire format of start_date / end_date.
const DateLayout = "2006-01-02"

func ValidDate(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// StringList decodes from a JSON string, an array of strings or null.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []*string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if it != nil && strings.TrimSpace(*it) != "" {
				out = append(out, strings.TrimSpace(*it))
			}
		}
		*l = out
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	single = strings.TrimSpace(single)
	if single == "" {
		*l = nil
		return nil
	}
	*l = StringList{single}
	return nil
}

// APICallDetail describes which backend data to fetch for a child.
type APICallDetail struct {
	ChildID    string     `json:"child_id"`
	APITypes   StringList `json:"api_type"`
	Themes     StringList `json:"themes"`
	TimeUnit   TimeUnit   `json:"time_unit,omitempty"`
	NumPeriods *int       `json:"num_periods,omitempty"`
	StartDate  string     `json:"start_date,omitempty"`
	EndDate    string     `json:"end_date,omitempty"`
	Reason     string     `json:"api_call_reason,omitempty"`
}
