package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrReminderNotFound    = errors.New("reminder not found")

	// ErrSlotTaken is the conflict outcome of a claim that lost the race.
	ErrSlotTaken = errors.New("slot already booked")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Patient directory
	FindPatientByName(ctx context.Context, firstName, lastName, dateOfBirth string) (*Patient, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p Patient) (*Patient, error)
	UpdatePatientContact(ctx context.Context, id uuid.UUID, email, phone, address *string) (*Patient, error)

	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Availability source
	OpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, minDuration time.Duration) ([]Slot, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ClaimSlot flips the booked flag if and only if it is currently unset.
	// Returns ErrSlotTaken when another appointment holds the slot.
	ClaimSlot(ctx context.Context, id uuid.UUID) error
	ReleaseSlot(ctx context.Context, id uuid.UUID) error

	// Appointments
	CreatePendingAppointment(ctx context.Context, slotID, patientID uuid.UUID, durationMinutes int) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	SetAppointmentInsurance(ctx context.Context, id, insuranceID uuid.UUID) error

	// Insurance is upserted per patient, corrections overwrite.
	SaveInsurance(ctx context.Context, ins Insurance) (*Insurance, error)

	// Reminders
	CreateReminders(ctx context.Context, reminders []Reminder) error
	RemindersByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reminder, error)
	DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	RecordReminderFailure(ctx context.Context, id uuid.UUID, abandon bool) error

	// Intake forms
	CreateForms(ctx context.Context, forms []IntakeForm) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
