package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the repository uses, so tests can
// substitute a mock pool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pool DB
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithDB(db DB) *PgRepository {
	return &PgRepository{pool: db}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.DateOfBirth,
		&p.Email,
		&p.Phone,
		&p.Address,
		&p.IsNew,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Booked,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.DurationMinutes,
		&a.Status,
		&a.InsuranceID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanReminder(row pgx.Row) (*Reminder, error) {
	var r Reminder

	err := row.Scan(
		&r.ID,
		&r.AppointmentID,
		&r.Kind,
		&r.SendAt,
		&r.Status,
		&r.Attempts,
		&r.SentAt,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}

	return &r, nil
}

// Patient directory

func (r *PgRepository) FindPatientByName(ctx context.Context, firstName, lastName, dateOfBirth string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, date_of_birth, email, phone, address, is_new, created_at, updated_at
		FROM patients
		WHERE LOWER(first_name) = LOWER($1)
		  AND LOWER(last_name) = LOWER($2)
		  AND date_of_birth = $3
	`, firstName, lastName, dateOfBirth)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, date_of_birth, email, phone, address, is_new, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p Patient) (*Patient, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, date_of_birth, email, phone, address, is_new, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING id, first_name, last_name, date_of_birth, email, phone, address, is_new, created_at, updated_at
	`, id, p.FirstName, p.LastName, p.DateOfBirth, p.Email, p.Phone, p.Address, p.IsNew)

	return scanPatient(row)
}

func (r *PgRepository) UpdatePatientContact(ctx context.Context, id uuid.UUID, email, phone, address *string) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET email = COALESCE($2, email),
		    phone = COALESCE($3, phone),
		    address = COALESCE($4, address),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, first_name, last_name, date_of_birth, email, phone, address, is_new, created_at, updated_at
	`, id, email, phone, address)

	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

// Availability source

func (r *PgRepository) OpenSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, minDuration time.Duration) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, booked, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1
		  AND booked = false
		  AND start_time >= $2
		  AND start_time < $3
		  AND end_time - start_time >= $4
		ORDER BY start_time ASC
	`, doctorID, from, to, minDuration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, booked, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// ClaimSlot is a single conditional UPDATE: the row is only touched while
// the booked flag is still false, so exactly one concurrent claim wins.
func (r *PgRepository) ClaimSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND booked = false
	`, id)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetSlotByID(ctx, id); err != nil {
			return err
		}
		return ErrSlotTaken
	}

	return nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET booked = false,
		    updated_at = now()
		WHERE id = $1
		  AND booked = true
	`, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := r.GetSlotByID(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// Appointments

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, slotID, patientID uuid.UUID, durationMinutes int) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, duration_minutes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', now(), now())
		RETURNING id, slot_id, patient_id, duration_minutes, status, insurance_id, created_at, updated_at
	`, id, slotID, patientID, durationMinutes)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, slot_id, patient_id, duration_minutes, status, insurance_id, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	slot, err := r.GetSlotByID(ctx, appt.SlotID)
	if err != nil {
		return nil, err
	}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, err
	}

	doctor, err := r.GetDoctorByID(ctx, slot.DoctorID)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{
		Appointment: *appt,
		Slot:        slot,
		Patient:     patient,
		Doctor:      doctor,
	}

	if appt.InsuranceID != nil {
		row := r.pool.QueryRow(ctx, `
			SELECT id, patient_id, carrier, member_id, group_id, created_at, updated_at
			FROM insurance
			WHERE id = $1
		`, *appt.InsuranceID)

		var ins Insurance
		err := row.Scan(&ins.ID, &ins.PatientID, &ins.Carrier, &ins.MemberID, &ins.GroupID, &ins.CreatedAt, &ins.UpdatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			detail.Insurance = &ins
		}
	}

	return detail, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, slot_id, patient_id, duration_minutes, status, insurance_id, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) SetAppointmentInsurance(ctx context.Context, id, insuranceID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET insurance_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, insuranceID)
	if err != nil {
		return fmt.Errorf("set appointment insurance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) SaveInsurance(ctx context.Context, ins Insurance) (*Insurance, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO insurance (id, patient_id, carrier, member_id, group_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (patient_id) DO UPDATE
		SET carrier = EXCLUDED.carrier,
		    member_id = EXCLUDED.member_id,
		    group_id = EXCLUDED.group_id,
		    updated_at = now()
		RETURNING id, patient_id, carrier, member_id, group_id, created_at, updated_at
	`, id, ins.PatientID, ins.Carrier, ins.MemberID, ins.GroupID)

	var saved Insurance
	err := row.Scan(&saved.ID, &saved.PatientID, &saved.Carrier, &saved.MemberID, &saved.GroupID, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save insurance: %w", err)
	}

	return &saved, nil
}

// Reminders

func (r *PgRepository) CreateReminders(ctx context.Context, reminders []Reminder) error {
	for _, rem := range reminders {
		id := rem.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		_, err := r.pool.Exec(ctx, `
			INSERT INTO reminders (id, appointment_id, kind, send_at, status, attempts, created_at)
			VALUES ($1, $2, $3, $4, 'pending', 0, now())
		`, id, rem.AppointmentID, rem.Kind, rem.SendAt)
		if err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
	}
	return nil
}

func (r *PgRepository) RemindersByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, kind, send_at, status, attempts, sent_at, created_at
		FROM reminders
		WHERE appointment_id = $1
		ORDER BY send_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rem)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) DueReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, kind, send_at, status, attempts, sent_at, created_at
		FROM reminders
		WHERE status = 'pending'
		  AND send_at <= $1
		ORDER BY send_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rem)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET status = 'sent',
		    sent_at = $2,
		    attempts = attempts + 1
		WHERE id = $1
		  AND status = 'pending'
	`, id, sentAt)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (r *PgRepository) RecordReminderFailure(ctx context.Context, id uuid.UUID, abandon bool) error {
	status := "pending"
	if abandon {
		status = "abandoned"
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET attempts = attempts + 1,
		    status = $2
		WHERE id = $1
		  AND status = 'pending'
	`, id, status)
	if err != nil {
		return fmt.Errorf("record reminder failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// Intake forms

func (r *PgRepository) CreateForms(ctx context.Context, forms []IntakeForm) error {
	for _, f := range forms {
		id := f.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		_, err := r.pool.Exec(ctx, `
			INSERT INTO forms (id, patient_id, appointment_id, form_type, status, created_at)
			VALUES ($1, $2, $3, $4, 'pending', now())
		`, id, f.PatientID, f.AppointmentID, f.FormType)
		if err != nil {
			return fmt.Errorf("create form: %w", err)
		}
	}
	return nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
