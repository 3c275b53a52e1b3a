package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/config"
	"github.com/clinicdesk/scheduling-assistant/internal/redisclient"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventRemindersScheduled   = "REMINDERS_SCHEDULED"
	EventReminderSent         = "REMINDER_SENT"
	EventReminderFailed       = "REMINDER_FAILED"
	EventReminderAbandoned    = "REMINDER_ABANDONED"
)

var (
	ErrSlotBusy                = errors.New("slot is currently being booked, please retry")
	ErrInvalidPatient          = errors.New("patient name and date of birth are required")
	ErrInvalidInsurance        = errors.New("insurance carrier and member id are required")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// PatientDraft carries the identity details collected during the flow before
// a record exists.
type PatientDraft struct {
	FirstName   string
	LastName    string
	DateOfBirth string
	Email       *string
	Phone       *string
	Address     *string
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
	}
}

// LookupPatient finds an existing record by name and date of birth.
// A miss surfaces as ErrPatientNotFound; callers fall into the draft path.
func (s *Service) LookupPatient(ctx context.Context, firstName, lastName, dateOfBirth string) (*Patient, error) {
	if firstName == "" || lastName == "" || dateOfBirth == "" {
		return nil, ErrInvalidPatient
	}
	return s.repo.FindPatientByName(ctx, firstName, lastName, dateOfBirth)
}

// RegisterPatient creates a draft record for a patient with no prior visit.
func (s *Service) RegisterPatient(ctx context.Context, draft PatientDraft) (*Patient, error) {
	if draft.FirstName == "" || draft.LastName == "" || draft.DateOfBirth == "" {
		return nil, ErrInvalidPatient
	}

	p := Patient{
		FirstName:   draft.FirstName,
		LastName:    draft.LastName,
		DateOfBirth: draft.DateOfBirth,
		Email:       draft.Email,
		Phone:       draft.Phone,
		Address:     draft.Address,
		IsNew:       true,
	}

	created, err := s.repo.CreatePatient(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	return created, nil
}

// UpdatePatientContact corrects contact info only; identity fields are
// immutable once the record exists.
func (s *Service) UpdatePatientContact(ctx context.Context, id uuid.UUID, email, phone, address *string) (*Patient, error) {
	return s.repo.UpdatePatientContact(ctx, id, email, phone, address)
}

// OfferSlots returns the open slots for a doctor on a given day that are
// long enough for the decided visit duration, ordered by start time.
// An empty result is not an error.
func (s *Service) OfferSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, duration time.Duration) ([]Slot, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	slots, err := s.repo.OpenSlots(ctx, doctorID, from, to, duration)
	if err != nil {
		return nil, fmt.Errorf("open slots: %w", err)
	}
	return slots, nil
}

// Book claims a slot for a patient and creates the pending appointment.
// It uses a distributed lock so that concurrent requests for the same slot
// cannot interleave the claim; the claim itself is still a conditional
// update, so exactly one of two racing sessions wins.
func (s *Service) Book(ctx context.Context, slotID, patientID uuid.UUID, duration time.Duration) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Booked {
		return nil, ErrSlotTaken
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		if err := s.repo.ClaimSlot(lockCtx, slotID); err != nil {
			return err
		}

		appt, err := s.repo.CreatePendingAppointment(lockCtx, slotID, patientID, int(duration.Minutes()))
		if err != nil {
			// The claim is durable but the appointment row failed; put the
			// slot back so it is offerable again.
			if relErr := s.repo.ReleaseSlot(lockCtx, slotID); relErr != nil {
				log.Printf("release slot %s after failed booking: %v", slotID, relErr)
			}
			return fmt.Errorf("create pending appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"slot_id":          slotID.String(),
			"patient_id":       patientID.String(),
			"duration_minutes": int(duration.Minutes()),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBusy
		}
		return nil, err
	}

	return created, nil
}

// AttachInsurance validates and stores insurance details for the booked
// appointment's patient.
func (s *Service) AttachInsurance(ctx context.Context, appointmentID uuid.UUID, carrier, memberID string, groupID *string) (*Insurance, error) {
	if carrier == "" || memberID == "" {
		return nil, ErrInvalidInsurance
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.SaveInsurance(ctx, Insurance{
		PatientID: appt.PatientID,
		Carrier:   carrier,
		MemberID:  memberID,
		GroupID:   groupID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetAppointmentInsurance(ctx, appt.ID, saved.ID); err != nil {
		return nil, err
	}

	return saved, nil
}

// Confirm moves a pending appointment to confirmed. Transitions are
// monotonic: confirmed and cancelled appointments never go back to pending.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// Cancel is reachable from pending or confirmed; the slot goes back to the
// open pool either way.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status == StatusCancelled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.repo.ReleaseSlot(ctx, appt.SlotID); err != nil {
		log.Printf("release slot %s for cancelled appointment %s: %v", appt.SlotID, appt.ID, err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"slot_id": appt.SlotID.String(),
	})

	return updated, nil
}

// ScheduleReminders creates the 7/3/1-day reminder batch for a confirmed
// appointment. Scheduling twice is a no-op returning the existing batch.
func (s *Service) ScheduleReminders(ctx context.Context, appointmentID uuid.UUID) ([]Reminder, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if detail.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	existing, err := s.repo.RemindersByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	reminders := BuildReminders(appointmentID, detail.Slot.StartTime, s.cfg.ReminderSendHour)
	if err := s.repo.CreateReminders(ctx, reminders); err != nil {
		return nil, err
	}

	s.logEvent(ctx, appointmentID, EventRemindersScheduled, map[string]any{
		"count": len(reminders),
	})

	return reminders, nil
}

// CreateIntakeForms records the pre-visit form packet for an appointment.
func (s *Service) CreateIntakeForms(ctx context.Context, appointmentID uuid.UUID) ([]IntakeForm, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	forms := BuildIntakeForms(appt.PatientID, appt.ID)
	if err := s.repo.CreateForms(ctx, forms); err != nil {
		return nil, err
	}
	return forms, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

// ReminderSender delivers one due reminder; implemented by the notification
// dispatcher.
type ReminderSender interface {
	SendReminder(ctx context.Context, rem Reminder, detail *AppointmentDetail) error
}

// ProcessDueReminders is called periodically by the reminder worker. A send
// failure leaves the reminder pending for the next tick until the attempt
// budget runs out, then the reminder is abandoned with an audit event.
func (s *Service) ProcessDueReminders(ctx context.Context, sender ReminderSender) (int, error) {
	due, err := s.repo.DueReminders(ctx, time.Now(), 100)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, rem := range due {
		detail, err := s.repo.GetAppointmentDetail(ctx, rem.AppointmentID)
		if err != nil {
			log.Printf("load appointment %s for reminder %s: %v", rem.AppointmentID, rem.ID, err)
			continue
		}

		if detail.Status == StatusCancelled {
			if err := s.repo.RecordReminderFailure(ctx, rem.ID, true); err != nil {
				log.Printf("abandon reminder %s: %v", rem.ID, err)
			}
			s.logEvent(ctx, rem.AppointmentID, EventReminderAbandoned, map[string]any{
				"reminder_id": rem.ID.String(),
				"reason":      "appointment_cancelled",
			})
			continue
		}

		if err := sender.SendReminder(ctx, rem, detail); err != nil {
			abandon := rem.Attempts+1 >= s.cfg.ReminderMaxAttempts
			if markErr := s.repo.RecordReminderFailure(ctx, rem.ID, abandon); markErr != nil {
				log.Printf("record reminder failure %s: %v", rem.ID, markErr)
			}

			event := EventReminderFailed
			if abandon {
				event = EventReminderAbandoned
			}
			s.logEvent(ctx, rem.AppointmentID, event, map[string]any{
				"reminder_id": rem.ID.String(),
				"attempts":    rem.Attempts + 1,
				"error":       err.Error(),
			})
			continue
		}

		if err := s.repo.MarkReminderSent(ctx, rem.ID, time.Now()); err != nil {
			log.Printf("mark reminder %s sent: %v", rem.ID, err)
			continue
		}

		s.logEvent(ctx, rem.AppointmentID, EventReminderSent, map[string]any{
			"reminder_id": rem.ID.String(),
			"kind":        string(rem.Kind),
		})
		sent++
	}

	return sent, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
