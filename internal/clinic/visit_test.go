package clinic

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitDuration(t *testing.T) {
	assert.Equal(t, 60*time.Minute, VisitDuration(true), "new patient gets a 60 minute visit")
	assert.Equal(t, 30*time.Minute, VisitDuration(false), "returning patient gets a 30 minute visit")
}

func TestBuildReminders_CountAndOrdering(t *testing.T) {
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	apptID := uuid.New()

	reminders := BuildReminders(apptID, start, 9)
	require.Len(t, reminders, 3)

	// Strictly ordered: 7-day < 3-day < 1-day before the visit.
	require.True(t, reminders[0].SendAt.Before(reminders[1].SendAt))
	require.True(t, reminders[1].SendAt.Before(reminders[2].SendAt))

	for _, r := range reminders {
		assert.Equal(t, apptID, r.AppointmentID)
		assert.Equal(t, ReminderPending, r.Status)
		assert.True(t, r.SendAt.Before(start))
	}
}

func TestBuildReminders_SendDates(t *testing.T) {
	// Visit on 2024-06-10 at 10:00 → reminders on 06-03, 06-07, 06-09 at 09:00.
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	reminders := BuildReminders(uuid.New(), start, 9)
	require.Len(t, reminders, 3)

	assert.Equal(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), reminders[0].SendAt)
	assert.Equal(t, time.Date(2024, 6, 7, 9, 0, 0, 0, time.UTC), reminders[1].SendAt)
	assert.Equal(t, time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC), reminders[2].SendAt)
}

func TestBuildReminders_Kinds(t *testing.T) {
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

	reminders := BuildReminders(uuid.New(), start, 9)
	require.Len(t, reminders, 3)

	assert.Equal(t, ReminderConfirmationRequest, reminders[0].Kind)
	assert.Equal(t, ReminderFormCheck, reminders[1].Kind)
	assert.Equal(t, ReminderConfirmationRequest, reminders[2].Kind)
}

func TestBuildIntakeForms(t *testing.T) {
	patientID := uuid.New()
	apptID := uuid.New()

	forms := BuildIntakeForms(patientID, apptID)
	require.Len(t, forms, len(IntakeFormTypes))

	seen := map[string]bool{}
	for _, f := range forms {
		assert.Equal(t, patientID, f.PatientID)
		assert.Equal(t, apptID, f.AppointmentID)
		assert.Equal(t, FormPending, f.Status)
		seen[f.FormType] = true
	}
	for _, ft := range IntakeFormTypes {
		assert.True(t, seen[ft], "missing form type %s", ft)
	}
}
