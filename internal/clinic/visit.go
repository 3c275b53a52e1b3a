package clinic

import (
	"time"

	"github.com/google/uuid"
)

const (
	// New patients get a longer first visit.
	NewPatientVisit       = 60 * time.Minute
	ReturningPatientVisit = 30 * time.Minute
)

// VisitDuration is the slot-duration rule: 60 minutes for a new patient,
// 30 for a returning one. Pure, no side effects.
func VisitDuration(isNew bool) time.Duration {
	if isNew {
		return NewPatientVisit
	}
	return ReturningPatientVisit
}

// reminderOffsets is ordered furthest-out first; send times come out
// strictly ascending.
var reminderOffsets = []struct {
	Days int
	Kind ReminderKind
}{
	{Days: 7, Kind: ReminderConfirmationRequest},
	{Days: 3, Kind: ReminderFormCheck},
	{Days: 1, Kind: ReminderConfirmationRequest},
}

// BuildReminders computes the 7/3/1-day reminder batch for an appointment
// starting at start. Each reminder goes out at sendHour local time on the
// offset day.
func BuildReminders(appointmentID uuid.UUID, start time.Time, sendHour int) []Reminder {
	reminders := make([]Reminder, 0, len(reminderOffsets))

	for _, off := range reminderOffsets {
		day := start.AddDate(0, 0, -off.Days)
		sendAt := time.Date(day.Year(), day.Month(), day.Day(), sendHour, 0, 0, 0, start.Location())

		reminders = append(reminders, Reminder{
			ID:            uuid.New(),
			AppointmentID: appointmentID,
			Kind:          off.Kind,
			SendAt:        sendAt,
			Status:        ReminderPending,
		})
	}

	return reminders
}

// BuildIntakeForms creates the standard pre-visit form packet.
func BuildIntakeForms(patientID, appointmentID uuid.UUID) []IntakeForm {
	forms := make([]IntakeForm, 0, len(IntakeFormTypes))
	for _, ft := range IntakeFormTypes {
		forms = append(forms, IntakeForm{
			ID:            uuid.New(),
			PatientID:     patientID,
			AppointmentID: appointmentID,
			FormType:      ft,
			Status:        FormPending,
		})
	}
	return forms
}
