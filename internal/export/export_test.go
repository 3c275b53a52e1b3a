package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
)

func sampleRecord() Record {
	return Record{
		AppointmentID:    uuid.New(),
		PatientID:        uuid.New(),
		SlotID:           uuid.New(),
		DoctorID:         uuid.New(),
		PatientName:      "Jane Doe",
		DoctorName:       "Sarah Smith",
		StartTime:        time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC),
		DurationMinutes:  60,
		Status:           "confirmed",
		InsuranceCarrier: "Aetna",
		ExportedAt:       time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestRoundTrip_WriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	want := sampleRecord()
	require.NoError(t, sink.Export(context.Background(), want))

	records, err := ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, want, records[0], "re-imported record equals the original in all fields")
}

func TestRoundTrip_FileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	sink := NewFileSink(path)

	first := sampleRecord()
	second := sampleRecord()
	second.Status = "cancelled"
	second.InsuranceCarrier = ""

	require.NoError(t, sink.Export(context.Background(), first))
	require.NoError(t, sink.Export(context.Background(), second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := ReadRecords(f)
	require.NoError(t, err)
	require.Len(t, records, 2, "sink is append-only")
	assert.Equal(t, first, records[0])
	assert.Equal(t, second, records[1])
}

func TestFromDetail(t *testing.T) {
	doctorID := uuid.New()
	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	detail := &clinic.AppointmentDetail{
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
		},
		Patient: &clinic.Patient{FirstName: "Jane", LastName: "Doe"},
		Doctor:  &clinic.Doctor{ID: doctorID, Name: "Sarah Smith"},
		Insurance: &clinic.Insurance{
			Carrier: "Aetna",
		},
	}

	rec := FromDetail(detail, at)
	assert.Equal(t, detail.ID, rec.AppointmentID)
	assert.Equal(t, "Jane Doe", rec.PatientName)
	assert.Equal(t, "Sarah Smith", rec.DoctorName)
	assert.Equal(t, doctorID, rec.DoctorID)
	assert.Equal(t, start, rec.StartTime)
	assert.Equal(t, 60, rec.DurationMinutes)
	assert.Equal(t, "confirmed", rec.Status)
	assert.Equal(t, "Aetna", rec.InsuranceCarrier)
	assert.Equal(t, at, rec.ExportedAt)
}

func TestReadRecords_SkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	require.NoError(t, sink.Export(context.Background(), sampleRecord()))
	buf.WriteString("\n")
	require.NoError(t, sink.Export(context.Background(), sampleRecord()))

	records, err := ReadRecords(&buf)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
