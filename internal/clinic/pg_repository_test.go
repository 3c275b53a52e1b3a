package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return newPgRepositoryWithDB(mock), mock
}

func TestClaimSlot_Wins(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectExec("UPDATE slots").
		WithArgs(slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ClaimSlot(context.Background(), slotID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSlot_AlreadyBooked(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()
	now := time.Now()

	// Conditional update touches no rows, and the follow-up read shows the
	// slot exists: that is a lost race, not a missing slot.
	mock.ExpectExec("UPDATE slots").
		WithArgs(slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, doctor_id, start_time, end_time, booked").
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "doctor_id", "start_time", "end_time", "booked", "created_at", "updated_at",
		}).AddRow(slotID, uuid.New(), now, now.Add(30*time.Minute), true, now, now))

	err := repo.ClaimSlot(context.Background(), slotID)
	require.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSlot_MissingSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()

	mock.ExpectExec("UPDATE slots").
		WithArgs(slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, doctor_id, start_time, end_time, booked").
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "doctor_id", "start_time", "end_time", "booked", "created_at", "updated_at",
		}))

	err := repo.ClaimSlot(context.Background(), slotID)
	require.ErrorIs(t, err, ErrSlotNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPatientByName_Miss(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, first_name, last_name").
		WithArgs("Jane", "Doe", "1990-01-01").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "first_name", "last_name", "date_of_birth", "email", "phone", "address", "is_new", "created_at", "updated_at",
		}))

	_, err := repo.FindPatientByName(context.Background(), "Jane", "Doe", "1990-01-01")
	require.ErrorIs(t, err, ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	slotID := uuid.New()
	patientID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), slotID, patientID, 30).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "slot_id", "patient_id", "duration_minutes", "status", "insurance_id", "created_at", "updated_at",
		}).AddRow(uuid.New(), slotID, patientID, 30, StatusPending, nil, now, now))

	appt, err := repo.CreatePendingAppointment(context.Background(), slotID, patientID, 30)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, 30, appt.DurationMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentStatus_GuardsTransition(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	// CAS misses when the appointment is no longer in the expected state.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "slot_id", "patient_id", "duration_minutes", "status", "insurance_id", "created_at", "updated_at",
		}))

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusPending, StatusConfirmed)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSlots_OrderedScan(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "doctor_id", "start_time", "end_time", "booked", "created_at", "updated_at",
	})
	for _, hour := range []int{9, 10, 11} {
		start := day.Add(time.Duration(hour) * time.Hour)
		rows.AddRow(uuid.New(), doctorID, start, start.Add(time.Hour), false, day, day)
	}

	mock.ExpectQuery("SELECT id, doctor_id, start_time, end_time, booked").
		WithArgs(doctorID, day, day.AddDate(0, 0, 1), 60*time.Minute).
		WillReturnRows(rows)

	slots, err := repo.OpenSlots(context.Background(), doctorID, day, day.AddDate(0, 0, 1), 60*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, 9, slots[0].StartTime.Hour())
	require.NoError(t, mock.ExpectationsWereMet())
}
