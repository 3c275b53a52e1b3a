// Package flow implements the step-gated scheduling conversation: a finite
// state machine that collects patient identity, offers open slots, books one,
// collects insurance, confirms, and hands off to the notification dispatcher.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
)

type State string

const (
	StateGreeting         State = "greeting"
	StateLookup           State = "lookup"
	StateDurationDecision State = "duration_decision"
	StateOfferSlots       State = "offer_slots"
	StateAwaitSelection   State = "await_selection"
	StateCollectInsurance State = "collect_insurance"
	StateConfirm          State = "confirm"
	StateNotifyAndExport  State = "notify_and_export"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var (
	// ErrInvalidInput rejects an input that is malformed or not valid for
	// the current state; the session does not advance.
	ErrInvalidInput = errors.New("input not valid for current state")

	// ErrSessionFinished rejects input to a terminal session.
	ErrSessionFinished = errors.New("session already finished")
)

// Directory is the patient-store capability.
type Directory interface {
	LookupPatient(ctx context.Context, firstName, lastName, dateOfBirth string) (*clinic.Patient, error)
	RegisterPatient(ctx context.Context, draft clinic.PatientDraft) (*clinic.Patient, error)
	UpdatePatientContact(ctx context.Context, id uuid.UUID, email, phone, address *string) (*clinic.Patient, error)
}

// Scheduler is the availability/booking capability.
type Scheduler interface {
	OfferSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, duration time.Duration) ([]clinic.Slot, error)
	Book(ctx context.Context, slotID, patientID uuid.UUID, duration time.Duration) (*clinic.Appointment, error)
	AttachInsurance(ctx context.Context, appointmentID uuid.UUID, carrier, memberID string, groupID *string) (*clinic.Insurance, error)
	Confirm(ctx context.Context, appointmentID uuid.UUID) (*clinic.Appointment, error)
	Cancel(ctx context.Context, appointmentID uuid.UUID) (*clinic.Appointment, error)
}

// Notifier is the post-confirmation fan-out capability. Best-effort: the
// flow never blocks on delivery and never fails because of it.
type Notifier interface {
	Dispatch(ctx context.Context, appointmentID uuid.UUID) error
}

// Session is one patient conversation. Single-threaded: the store serializes
// Advance calls per session.
type Session struct {
	ID        uuid.UUID
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time

	Patient  *clinic.Patient
	Duration time.Duration

	DoctorID uuid.UUID
	Day      time.Time
	Offered  []clinic.Slot

	Appointment *clinic.Appointment
}

func (s *Session) offeredContains(slotID uuid.UUID) bool {
	for _, slot := range s.Offered {
		if slot.ID == slotID {
			return true
		}
	}
	return false
}

// Reply is what the conversational layer renders back to the patient.
type Reply struct {
	State           State
	Message         string
	Patient         *clinic.Patient
	DurationMinutes int
	Slots           []clinic.Slot
	Appointment     *clinic.Appointment
}

type Machine struct {
	directory Directory
	scheduler Scheduler
	notifier  Notifier
}

func NewMachine(directory Directory, scheduler Scheduler, notifier Notifier) *Machine {
	return &Machine{
		directory: directory,
		scheduler: scheduler,
		notifier:  notifier,
	}
}

// Advance feeds one input to the session. On error the session state is
// unchanged and the caller re-prompts.
func (m *Machine) Advance(ctx context.Context, s *Session, in Input) (*Reply, error) {
	if s.State.Terminal() {
		return nil, ErrSessionFinished
	}

	if abort, ok := in.(Abort); ok {
		return m.abort(ctx, s, abort.Reason)
	}

	var (
		reply *Reply
		err   error
	)

	switch s.State {
	case StateGreeting:
		reply, err = m.handleGreeting(ctx, s, in)
	case StateOfferSlots:
		reply, err = m.handleOfferSlots(ctx, s, in)
	case StateAwaitSelection:
		reply, err = m.handleSelection(ctx, s, in)
	case StateCollectInsurance:
		reply, err = m.handleInsurance(ctx, s, in)
	case StateConfirm:
		reply, err = m.handleDecision(ctx, s, in)
	default:
		return nil, fmt.Errorf("session %s in unexpected state %s", s.ID, s.State)
	}

	if err != nil {
		return nil, err
	}

	s.UpdatedAt = time.Now()
	return reply, nil
}

// handleGreeting runs Lookup and DurationDecision in one step: identity
// comes in, a patient record and visit length come out.
func (m *Machine) handleGreeting(ctx context.Context, s *Session, in Input) (*Reply, error) {
	id, ok := in.(Identify)
	if !ok {
		return nil, ErrInvalidInput
	}

	patient, err := m.directory.LookupPatient(ctx, id.FirstName, id.LastName, id.DateOfBirth)
	switch {
	case err == nil:
		// Returning patient; apply any contact corrections that came in
		// with the greeting.
		if id.Email != nil || id.Phone != nil || id.Address != nil {
			updated, uerr := m.directory.UpdatePatientContact(ctx, patient.ID, id.Email, id.Phone, id.Address)
			if uerr != nil {
				log.Printf("session %s update contact for patient %s: %v", s.ID, patient.ID, uerr)
			} else {
				patient = updated
			}
		}
	case errors.Is(err, clinic.ErrPatientNotFound):
		patient, err = m.directory.RegisterPatient(ctx, clinic.PatientDraft{
			FirstName:   id.FirstName,
			LastName:    id.LastName,
			DateOfBirth: id.DateOfBirth,
			Email:       id.Email,
			Phone:       id.Phone,
			Address:     id.Address,
		})
		if err != nil {
			if errors.Is(err, clinic.ErrInvalidPatient) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return nil, err
		}
	case errors.Is(err, clinic.ErrInvalidPatient):
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		// Unrecoverable lookup failure aborts the session.
		s.State = StateAborted
		return nil, err
	}

	s.Patient = patient
	s.Duration = clinic.VisitDuration(patient.IsNew)
	s.State = StateOfferSlots

	kind := "returning"
	if patient.IsNew {
		kind = "new"
	}

	return &Reply{
		State:           s.State,
		Message:         fmt.Sprintf("Welcome %s. As a %s patient your visit will be %d minutes. Which doctor and day work for you?", patient.FullName(), kind, int(s.Duration.Minutes())),
		Patient:         patient,
		DurationMinutes: int(s.Duration.Minutes()),
	}, nil
}

func (m *Machine) handleOfferSlots(ctx context.Context, s *Session, in Input) (*Reply, error) {
	c, ok := in.(Constraints)
	if !ok {
		return nil, ErrInvalidInput
	}

	slots, err := m.scheduler.OfferSlots(ctx, c.DoctorID, c.Day, s.Duration)
	if err != nil {
		if errors.Is(err, clinic.ErrDoctorNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	s.DoctorID = c.DoctorID
	s.Day = c.Day

	// No availability is not an error; the flow re-prompts for different
	// constraints.
	if len(slots) == 0 {
		s.Offered = nil
		return &Reply{
			State:   s.State,
			Message: "No open slots match; please try another doctor or day.",
		}, nil
	}

	s.Offered = slots
	s.State = StateAwaitSelection

	return &Reply{
		State:   s.State,
		Message: fmt.Sprintf("%d slots are open; pick one.", len(slots)),
		Slots:   slots,
	}, nil
}

func (m *Machine) handleSelection(ctx context.Context, s *Session, in Input) (*Reply, error) {
	sel, ok := in.(SelectSlot)
	if !ok {
		return nil, ErrInvalidInput
	}

	if !s.offeredContains(sel.SlotID) {
		return nil, fmt.Errorf("%w: slot is not among the offered set", ErrInvalidInput)
	}

	appt, err := m.scheduler.Book(ctx, sel.SlotID, s.Patient.ID, s.Duration)
	if err != nil {
		if errors.Is(err, clinic.ErrSlotTaken) || errors.Is(err, clinic.ErrSlotBusy) {
			return m.reoffer(ctx, s, sel.SlotID)
		}
		return nil, err
	}

	s.Appointment = appt
	s.State = StateCollectInsurance

	return &Reply{
		State:       s.State,
		Message:     "Slot reserved. Please provide your insurance carrier and member ID.",
		Appointment: appt,
	}, nil
}

// reoffer refreshes availability after a lost claim race, excluding the
// contested slot, and keeps the session in a choosing state.
func (m *Machine) reoffer(ctx context.Context, s *Session, contested uuid.UUID) (*Reply, error) {
	slots, err := m.scheduler.OfferSlots(ctx, s.DoctorID, s.Day, s.Duration)
	if err != nil {
		return nil, err
	}

	refreshed := slots[:0]
	for _, slot := range slots {
		if slot.ID != contested {
			refreshed = append(refreshed, slot)
		}
	}

	if len(refreshed) == 0 {
		s.Offered = nil
		s.State = StateOfferSlots
		return &Reply{
			State:   s.State,
			Message: "That slot was just taken and no others are open that day; please try another doctor or day.",
		}, nil
	}

	s.Offered = refreshed
	s.State = StateAwaitSelection

	return &Reply{
		State:   s.State,
		Message: "That slot was just taken by another patient; here is the updated availability.",
		Slots:   refreshed,
	}, nil
}

func (m *Machine) handleInsurance(ctx context.Context, s *Session, in Input) (*Reply, error) {
	ins, ok := in.(InsuranceDetails)
	if !ok {
		return nil, ErrInvalidInput
	}

	_, err := m.scheduler.AttachInsurance(ctx, s.Appointment.ID, ins.Carrier, ins.MemberID, ins.GroupID)
	if err != nil {
		if errors.Is(err, clinic.ErrInvalidInsurance) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	s.State = StateConfirm

	return &Reply{
		State:       s.State,
		Message:     "Insurance recorded. Shall I confirm the appointment?",
		Appointment: s.Appointment,
	}, nil
}

func (m *Machine) handleDecision(ctx context.Context, s *Session, in Input) (*Reply, error) {
	dec, ok := in.(Decision)
	if !ok {
		return nil, ErrInvalidInput
	}

	if !dec.Accept {
		return m.abort(ctx, s, "declined at confirmation")
	}

	appt, err := m.scheduler.Confirm(ctx, s.Appointment.ID)
	if err != nil {
		return nil, err
	}
	s.Appointment = appt

	// NotifyAndExport: best-effort fan-out. The confirmed appointment is
	// the durable fact of record regardless of delivery outcomes.
	s.State = StateNotifyAndExport
	if err := m.notifier.Dispatch(ctx, appt.ID); err != nil {
		log.Printf("session %s dispatch for appointment %s: %v", s.ID, appt.ID, err)
	}
	s.State = StateDone

	return &Reply{
		State:       s.State,
		Message:     "Your appointment is confirmed. A confirmation and intake forms are on the way.",
		Appointment: appt,
	}, nil
}

func (m *Machine) abort(ctx context.Context, s *Session, reason string) (*Reply, error) {
	if s.Appointment != nil && s.Appointment.Status != clinic.StatusCancelled {
		if _, err := m.scheduler.Cancel(ctx, s.Appointment.ID); err != nil && !errors.Is(err, clinic.ErrInvalidStatusTransition) {
			log.Printf("session %s cancel appointment %s on abort: %v", s.ID, s.Appointment.ID, err)
		}
	}

	s.State = StateAborted
	s.UpdatedAt = time.Now()

	msg := "Session cancelled."
	if reason != "" {
		msg = fmt.Sprintf("Session cancelled: %s.", reason)
	}

	return &Reply{State: s.State, Message: msg}, nil
}
