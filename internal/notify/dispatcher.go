// Package notify fans confirmed bookings out to the patient-facing channels:
// confirmation email/SMS, intake forms, scheduled reminders, and the
// administrative export. Every action is best-effort — a delivery failure is
// recorded and reported, never rolled back into the booking.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
	"github.com/clinicdesk/scheduling-assistant/internal/export"
)

const (
	ActionSendConfirmation  = "send_confirmation"
	ActionSendForms         = "send_forms"
	ActionScheduleReminders = "schedule_reminders"
	ActionExportRecord      = "export_record"

	EventDispatchOutcome = "DISPATCH_OUTCOME"
)

// Outcome is the locally recorded result of one dispatcher action.
type Outcome struct {
	Action string
	OK     bool
	Err    string
	At     time.Time
}

// Backend is the slice of the scheduling service the dispatcher drives.
type Backend interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*clinic.AppointmentDetail, error)
	ScheduleReminders(ctx context.Context, appointmentID uuid.UUID) ([]clinic.Reminder, error)
	CreateIntakeForms(ctx context.Context, appointmentID uuid.UUID) ([]clinic.IntakeForm, error)
}

// EventSink records dispatch outcomes for audit.
type EventSink interface {
	InsertEvent(ctx context.Context, ev clinic.EventLog) error
}

type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	backend Backend
	events  EventSink
	sink    export.Sink
	metrics *DeliveryMetrics
}

func NewDispatcher(email EmailSender, sms SMSSender, backend Backend, events EventSink, sink export.Sink, metrics *DeliveryMetrics) *Dispatcher {
	if email == nil {
		email = SimulatedEmailSender{}
	}
	return &Dispatcher{
		email:   email,
		sms:     sms,
		backend: backend,
		events:  events,
		sink:    sink,
		metrics: metrics,
	}
}

// Dispatch runs the four post-confirmation actions for an appointment.
// It only fails when the appointment itself cannot be loaded; individual
// action failures are recorded outcomes, not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, appointmentID uuid.UUID) error {
	detail, err := d.backend.GetAppointment(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment for dispatch: %w", err)
	}
	d.DispatchAll(ctx, detail)
	return nil
}

// DispatchAll runs the four actions independently and concurrently and
// returns their recorded outcomes in a fixed order.
func (d *Dispatcher) DispatchAll(ctx context.Context, detail *clinic.AppointmentDetail) []Outcome {
	actions := []struct {
		name string
		run  func(context.Context, *clinic.AppointmentDetail) error
	}{
		{ActionSendConfirmation, d.sendConfirmation},
		{ActionSendForms, d.sendForms},
		{ActionScheduleReminders, d.scheduleReminders},
		{ActionExportRecord, d.exportRecord},
	}

	outcomes := make([]Outcome, len(actions))

	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, name string, run func(context.Context, *clinic.AppointmentDetail) error) {
			defer wg.Done()

			out := Outcome{Action: name, OK: true, At: time.Now()}
			if err := run(ctx, detail); err != nil {
				out.OK = false
				out.Err = err.Error()
				log.Printf("dispatch action=%s appointment=%s failed: %v", name, detail.ID, err)
			}
			outcomes[i] = out
			d.record(ctx, detail.ID, out)
		}(i, action.name, action.run)
	}
	wg.Wait()

	return outcomes
}

func (d *Dispatcher) sendConfirmation(ctx context.Context, detail *clinic.AppointmentDetail) error {
	var errs []string

	if err := d.email.Send(ctx, confirmationEmail(detail)); err != nil {
		errs = append(errs, fmt.Sprintf("email: %v", err))
	}

	if d.sms != nil {
		if phone := phoneOf(detail.Patient); phone != "" {
			if err := d.sms.SendSMS(ctx, phone, confirmationSMS(detail)); err != nil {
				errs = append(errs, fmt.Sprintf("sms: %v", err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("send confirmation: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (d *Dispatcher) sendForms(ctx context.Context, detail *clinic.AppointmentDetail) error {
	forms, err := d.backend.CreateIntakeForms(ctx, detail.ID)
	if err != nil {
		return fmt.Errorf("create intake forms: %w", err)
	}

	if err := d.email.Send(ctx, intakeFormsEmail(detail, forms)); err != nil {
		return fmt.Errorf("send intake forms: %w", err)
	}
	return nil
}

func (d *Dispatcher) scheduleReminders(ctx context.Context, detail *clinic.AppointmentDetail) error {
	if _, err := d.backend.ScheduleReminders(ctx, detail.ID); err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	return nil
}

func (d *Dispatcher) exportRecord(ctx context.Context, detail *clinic.AppointmentDetail) error {
	if d.sink == nil {
		return fmt.Errorf("export sink not configured")
	}
	if err := d.sink.Export(ctx, export.FromDetail(detail, time.Now())); err != nil {
		return fmt.Errorf("export record: %w", err)
	}
	return nil
}

// SendReminder delivers one due reminder; called by the reminder worker
// through clinic.ReminderSender.
func (d *Dispatcher) SendReminder(ctx context.Context, rem clinic.Reminder, detail *clinic.AppointmentDetail) error {
	err := d.email.Send(ctx, reminderEmail(rem, detail))
	if err == nil && d.sms != nil {
		if phone := phoneOf(detail.Patient); phone != "" {
			// SMS is a companion channel; its failure alone does not fail
			// the reminder.
			if smsErr := d.sms.SendSMS(ctx, phone, reminderSMS(rem, detail)); smsErr != nil {
				log.Printf("reminder sms appointment=%s: %v", detail.ID, smsErr)
			}
		}
	}

	d.metrics.ObserveReminder(string(rem.Kind), err == nil)
	return err
}

func (d *Dispatcher) record(ctx context.Context, appointmentID uuid.UUID, out Outcome) {
	d.metrics.ObserveOutcome(out.Action, out.OK)

	if d.events == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"action": out.Action,
		"ok":     out.OK,
		"error":  out.Err,
	})
	if err != nil {
		payload = nil
	}

	apptID := appointmentID
	ev := clinic.EventLog{
		EventType:     EventDispatchOutcome,
		AppointmentID: &apptID,
		Payload:       payload,
		CreatedAt:     out.At,
	}
	if err := d.events.InsertEvent(ctx, ev); err != nil {
		log.Printf("record dispatch outcome action=%s appointment=%s: %v", out.Action, appointmentID, err)
	}
}
