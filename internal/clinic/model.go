package clinic

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

type ReminderKind string

const (
	ReminderFormCheck           ReminderKind = "form_check"
	ReminderConfirmationRequest ReminderKind = "confirmation_request"
)

type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderAbandoned ReminderStatus = "abandoned"
)

type FormStatus string

const (
	FormPending FormStatus = "pending"
	FormSent    FormStatus = "sent"
)

// Intake form packet sent ahead of every confirmed visit.
var IntakeFormTypes = []string{
	"patient_information",
	"medical_history",
	"insurance_verification",
}

type Patient struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
	Email       *string
	Phone       *string
	Address     *string
	IsNew       bool // drafted during this scheduling flow, no prior visit
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Booked    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Slot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

type Appointment struct {
	ID              uuid.UUID
	SlotID          uuid.UUID
	PatientID       uuid.UUID
	DurationMinutes int
	Status          AppointmentStatus
	InsuranceID     *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Insurance struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Carrier   string
	MemberID  string
	GroupID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Reminder struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Kind          ReminderKind
	SendAt        time.Time
	Status        ReminderStatus
	Attempts      int
	SentAt        *time.Time
	CreatedAt     time.Time
}

type IntakeForm struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	AppointmentID uuid.UUID
	FormType      string
	Status        FormStatus
	SentAt        *time.Time
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Slot      *Slot
	Patient   *Patient
	Doctor    *Doctor
	Insurance *Insurance
}
