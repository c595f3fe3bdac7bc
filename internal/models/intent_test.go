package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentEnvelope_RoundTrip(t *testing.T) {
	periods := 3
	perf := PerformanceIntent{Detail: APICallDetail{
		ChildID:    "adi_123",
		APITypes:   StringList{"concept-performance"},
		Themes:     StringList{"Menabung"},
		TimeUnit:   TimeUnitWeek,
		NumPeriods: &periods,
	}}

	decoded := EncodeIntent(perf).Decode()
	got, ok := decoded.(PerformanceIntent)
	require.True(t, ok)
	assert.Equal(t, "adi_123", got.Detail.ChildID)
	assert.Equal(t, IntentTagPerformanceData, got.Tag())

	general := EncodeIntent(GeneralIntent{Reason: "Default fallback."}).Decode()
	assert.Equal(t, GeneralIntent{Reason: "Default fallback."}, general)
}

func TestIntentEnvelope_DecodeDegradesToGeneral(t *testing.T) {
	tests := []struct {
		name     string
		envelope IntentEnvelope
	}{
		{name: "unknown tag", envelope: IntentEnvelope{Intent: "small_talk"}},
		{name: "performance without details", envelope: IntentEnvelope{Intent: IntentTagPerformanceData}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.envelope.Decode().(GeneralIntent)
			assert.True(t, ok)
		})
	}
}

func TestStringList_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw  string
		want StringList
	}{
		{raw: `"concept-performance"`, want: StringList{"concept-performance"}},
		{raw: `["overall-statistics", "performance-timeline"]`, want: StringList{"overall-statistics", "performance-timeline"}},
		{raw: `null`, want: nil},
		{raw: `""`, want: nil},
		{raw: `["", null, " Menabung "]`, want: StringList{"Menabung"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var got StringList
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterThemes(t *testing.T) {
	known, dropped := FilterThemes([]string{"Menabung", "Crypto", " Kejujuran", ""})
	assert.Equal(t, []string{"Menabung", "Kejujuran"}, known)
	assert.Equal(t, []string{"Crypto"}, dropped)
	assert.Len(t, Themes, 16)
}

func TestValidDate(t *testing.T) {
	assert.True(t, ValidDate("2024-02-29"))
	assert.False(t, ValidDate("2024-13-01"))
	assert.False(t, ValidDate("01/02/2024"))
	assert.False(t, ValidDate(""))
}
