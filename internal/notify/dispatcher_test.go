package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
	"github.com/clinicdesk/scheduling-assistant/internal/export"
)

type recorderEmail struct {
	mu   sync.Mutex
	fail bool
	sent []EmailMessage
}

func (r *recorderEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recorderSMS struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (r *recorderSMS) SendSMS(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("gateway unavailable")
	}
	r.sent = append(r.sent, body)
	return nil
}

type fakeBackend struct {
	mu             sync.Mutex
	detail         *clinic.AppointmentDetail
	remindersErr   error
	scheduledCount int
	formsCreated   int
}

func (f *fakeBackend) GetAppointment(ctx context.Context, id uuid.UUID) (*clinic.AppointmentDetail, error) {
	if f.detail == nil {
		return nil, clinic.ErrAppointmentNotFound
	}
	return f.detail, nil
}

func (f *fakeBackend) ScheduleReminders(ctx context.Context, appointmentID uuid.UUID) ([]clinic.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remindersErr != nil {
		return nil, f.remindersErr
	}
	f.scheduledCount++
	return clinic.BuildReminders(appointmentID, f.detail.Slot.StartTime, 9), nil
}

func (f *fakeBackend) CreateIntakeForms(ctx context.Context, appointmentID uuid.UUID) ([]clinic.IntakeForm, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formsCreated++
	return clinic.BuildIntakeForms(f.detail.PatientID, appointmentID), nil
}

type memEvents struct {
	mu     sync.Mutex
	events []clinic.EventLog
}

func (m *memEvents) InsertEvent(ctx context.Context, ev clinic.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func testDetail() *clinic.AppointmentDetail {
	email := "jane@example.com"
	phone := "+15550123456"
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	doctorID := uuid.New()

	return &clinic.AppointmentDetail{
		Appointment: clinic.Appointment{
			ID:              uuid.New(),
			SlotID:          uuid.New(),
			PatientID:       uuid.New(),
			DurationMinutes: 60,
			Status:          clinic.StatusConfirmed,
		},
		Slot: &clinic.Slot{
			DoctorID:  doctorID,
			StartTime: start,
			EndTime:   start.Add(time.Hour),
			Booked:    true,
		},
		Patient: &clinic.Patient{
			ID:        uuid.New(),
			FirstName: "Jane",
			LastName:  "Doe",
			Email:     &email,
			Phone:     &phone,
		},
		Doctor: &clinic.Doctor{ID: doctorID, Name: "Sarah Smith"},
	}
}

func newTestDispatcher(backend *fakeBackend) (*Dispatcher, *recorderEmail, *recorderSMS, *memEvents, *bytes.Buffer) {
	email := &recorderEmail{}
	sms := &recorderSMS{}
	events := &memEvents{}
	var buf bytes.Buffer

	d := NewDispatcher(
		email,
		sms,
		backend,
		events,
		export.NewWriterSink(&buf),
		NewDeliveryMetrics(prometheus.NewRegistry()),
	)
	return d, email, sms, events, &buf
}

func TestDispatchAll_AllActionsSucceed(t *testing.T) {
	backend := &fakeBackend{detail: testDetail()}
	d, email, sms, events, buf := newTestDispatcher(backend)

	outcomes := d.DispatchAll(context.Background(), backend.detail)
	require.Len(t, outcomes, 4)
	for _, out := range outcomes {
		assert.True(t, out.OK, "action %s should succeed", out.Action)
		assert.Empty(t, out.Err)
	}

	// Confirmation and forms both went out by email, plus an SMS.
	assert.Len(t, email.sent, 2)
	assert.Len(t, sms.sent, 1)

	// Reminder batch scheduled once, forms created once.
	assert.Equal(t, 1, backend.scheduledCount)
	assert.Equal(t, 1, backend.formsCreated)

	// Export sink holds exactly one record for the appointment.
	records, err := export.ReadRecords(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, backend.detail.ID, records[0].AppointmentID)

	// Every outcome is recorded for audit.
	assert.Len(t, events.events, 4)
}

func TestDispatchAll_FailuresAreIndependent(t *testing.T) {
	backend := &fakeBackend{detail: testDetail(), remindersErr: errors.New("db down")}
	d, email, _, _, buf := newTestDispatcher(backend)

	outcomes := d.DispatchAll(context.Background(), backend.detail)
	require.Len(t, outcomes, 4)

	byAction := map[string]Outcome{}
	for _, out := range outcomes {
		byAction[out.Action] = out
	}

	assert.False(t, byAction[ActionScheduleReminders].OK)
	assert.NotEmpty(t, byAction[ActionScheduleReminders].Err)

	// The other three actions still ran and succeeded.
	assert.True(t, byAction[ActionSendConfirmation].OK)
	assert.True(t, byAction[ActionSendForms].OK)
	assert.True(t, byAction[ActionExportRecord].OK)

	assert.Len(t, email.sent, 2)
	records, err := export.ReadRecords(buf)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDispatch_LoadsDetail(t *testing.T) {
	backend := &fakeBackend{detail: testDetail()}
	d, _, _, _, _ := newTestDispatcher(backend)

	err := d.Dispatch(context.Background(), backend.detail.ID)
	require.NoError(t, err)
}

func TestDispatch_MissingAppointment(t *testing.T) {
	backend := &fakeBackend{}
	d, _, _, _, _ := newTestDispatcher(backend)

	err := d.Dispatch(context.Background(), uuid.New())
	require.ErrorIs(t, err, clinic.ErrAppointmentNotFound)
}

func TestSendReminder_EmailFailureFails(t *testing.T) {
	backend := &fakeBackend{detail: testDetail()}
	d, email, _, _, _ := newTestDispatcher(backend)
	email.fail = true

	rem := clinic.BuildReminders(backend.detail.ID, backend.detail.Slot.StartTime, 9)[0]
	err := d.SendReminder(context.Background(), rem, backend.detail)
	require.Error(t, err)
}

func TestSendReminder_SMSFailureDoesNot(t *testing.T) {
	backend := &fakeBackend{detail: testDetail()}
	d, _, sms, _, _ := newTestDispatcher(backend)
	sms.fail = true

	rem := clinic.BuildReminders(backend.detail.ID, backend.detail.Slot.StartTime, 9)[0]
	err := d.SendReminder(context.Background(), rem, backend.detail)
	require.NoError(t, err)
}

func TestSendReminder_FormCheckCopy(t *testing.T) {
	backend := &fakeBackend{detail: testDetail()}
	d, email, _, _, _ := newTestDispatcher(backend)

	reminders := clinic.BuildReminders(backend.detail.ID, backend.detail.Slot.StartTime, 9)
	formCheck := reminders[1]
	require.Equal(t, clinic.ReminderFormCheck, formCheck.Kind)

	require.NoError(t, d.SendReminder(context.Background(), formCheck, backend.detail))
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Subject, "forms")
}
