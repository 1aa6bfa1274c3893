package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestScheduleUnmarshalLegacy(t *testing.T) {
	// written by earlier releases as JSON with string fields and no enabled key
	doc := `[{"id": "sch_1700000000_0", "type": "weekly", "time": "02:15", "day_of_week": "1", "switch_index": 3, "created_at": "2024-01-02 10:00:00"}]`

	var got []Schedule
	require.NoError(t, yaml.Unmarshal([]byte(doc), &got))
	require.Len(t, got, 1)

	assert.True(t, got[0].Enabled)
	assert.Equal(t, Weekly, got[0].Kind)
	require.NotNil(t, got[0].DayOfWeek)
	assert.Equal(t, FlexInt(1), *got[0].DayOfWeek)
	require.NotNil(t, got[0].LegacyIndex)
	assert.Equal(t, FlexInt(3), *got[0].LegacyIndex)
	assert.Equal(t, "Weekly on Monday at 02:15", got[0].Describe())
}

func TestScheduleUnmarshalDisabled(t *testing.T) {
	var got Schedule
	require.NoError(t, yaml.Unmarshal([]byte("id: a\ntype: daily\ntime: \"10:00\"\nenabled: false\n"), &got))
	assert.False(t, got.Enabled)
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"daily", Schedule{Kind: Daily, Time: "14:30"}, false},
		{"bad time", Schedule{Kind: Daily, Time: "25:99"}, true},
		{"once", Schedule{Kind: Once, Time: "08:00", Date: "2026-12-24"}, false},
		{"once without date", Schedule{Kind: Once, Time: "08:00"}, true},
		{"weekly sunday", Schedule{Kind: Weekly, Time: "08:00", DayOfWeek: IntPtr(0)}, false},
		{"weekly out of range", Schedule{Kind: Weekly, Time: "08:00", DayOfWeek: IntPtr(7)}, true},
		{"monthly", Schedule{Kind: Monthly, Time: "08:00", Day: IntPtr(31)}, false},
		{"monthly missing day", Schedule{Kind: Monthly, Time: "08:00"}, true},
		{"yearly", Schedule{Kind: Yearly, Time: "08:00", Month: IntPtr(2), Day: IntPtr(29)}, false},
		{"yearly bad month", Schedule{Kind: Yearly, Time: "08:00", Month: IntPtr(13), Day: IntPtr(1)}, true},
		{"unknown kind", Schedule{Kind: "hourly", Time: "08:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfiguration)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindAuthentication, Classify(ErrAuthentication))
	assert.Equal(t, KindTimeout, Classify(ErrTimeout))
	assert.Equal(t, KindStorage, Classify(ErrPathViolation))
	assert.Equal(t, KindAllMethodsFailed, Classify(assert.AnError))
}
