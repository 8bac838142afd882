package domain

import (
	"testing"
	"time"

	"github.com/lessonworks/billing/internal/period"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestClassifyState(t *testing.T) {
	cases := []struct {
		raw  string
		want State
	}{
		{"completed", StateCompleted},
		{"Completed", StateCompleted},
		{" realizada ", StateCompleted},
		{"scheduled", StateScheduled},
		{"Programada", StateScheduled},
		{"cancelled", StateCancelled},
		{"canceled", StateCancelled},
		{"Cancelada", StateCancelled},
		{"cancelled-by-staff", StateCancelledByStaff},
		{"cancelled_by_staff", StateCancelledByStaff},
		{"something else", StateUnknown},
		{"", StateUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyState(tc.raw), tc.raw)
	}

	assert.True(t, StateCancelled.IsCancellationState())
	assert.True(t, StateCancelledByStaff.IsCancellationState())
	assert.False(t, StateCompleted.IsCancellationState())
	assert.True(t, StateCompleted.IsBillable())
	assert.True(t, StateScheduled.IsBillable())
	assert.False(t, StateUnknown.IsBillable())
}

func TestClassifyCategory(t *testing.T) {
	cases := []struct {
		raw  string
		want Category
	}{
		{"solo", CategorySolo},
		{"Individual", CategorySolo},
		{"duo", CategoryDuo},
		{"Pareja", CategoryDuo},
		{"group", CategoryGroup},
		{" grupal ", CategoryGroup},
		{"mystery", CategoryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyCategory(tc.raw), tc.raw)
	}
}

func TestInPeriod(t *testing.T) {
	p, err := period.Parse("2026-03")
	assert.NoError(t, err)

	// Explicit tag wins over the timestamp.
	tagged := Session{Period: "2026-03", StartsAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, tagged.InPeriod(p))

	mismatched := Session{Period: "2026-04", StartsAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}
	assert.False(t, mismatched.InPeriod(p))

	// No tag: fall back to the timestamp.
	untagged := Session{StartsAt: time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)}
	assert.True(t, untagged.InPeriod(p))

	outside := Session{StartsAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, outside.InPeriod(p))
}

func TestBelongsTo(t *testing.T) {
	s := Session{CustomerIDs: datatypes.JSONSlice[string]{"cus_1", "cus_2"}}
	assert.True(t, s.BelongsTo("cus_1"))
	assert.True(t, s.BelongsTo("cus_2"))
	assert.False(t, s.BelongsTo("cus_3"))
}
