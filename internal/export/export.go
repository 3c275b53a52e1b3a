// Package export serializes appointment records into an append-only sink
// consumed by an external administrative-review process.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
)

// Record is the flattened appointment shape handed to administrative review.
type Record struct {
	AppointmentID    uuid.UUID `json:"appointment_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	SlotID           uuid.UUID `json:"slot_id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	PatientName      string    `json:"patient_name"`
	DoctorName       string    `json:"doctor_name"`
	StartTime        time.Time `json:"start_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	Status           string    `json:"status"`
	InsuranceCarrier string    `json:"insurance_carrier,omitempty"`
	ExportedAt       time.Time `json:"exported_at"`
}

// Sink is an append-only destination for exported records.
type Sink interface {
	Export(ctx context.Context, rec Record) error
}

// FromDetail flattens a hydrated appointment into its export shape.
func FromDetail(d *clinic.AppointmentDetail, at time.Time) Record {
	rec := Record{
		AppointmentID:   d.ID,
		PatientID:       d.PatientID,
		SlotID:          d.SlotID,
		DoctorID:        d.Slot.DoctorID,
		PatientName:     d.Patient.FullName(),
		DoctorName:      d.Doctor.Name,
		StartTime:       d.Slot.StartTime,
		DurationMinutes: d.DurationMinutes,
		Status:          string(d.Status),
		ExportedAt:      at,
	}
	if d.Insurance != nil {
		rec.InsuranceCarrier = d.Insurance.Carrier
	}
	return rec
}

// WriterSink appends one JSON line per record to an io.Writer.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

func (s *WriterSink) Export(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("export record: %w", err)
	}
	return nil
}

// FileSink appends records to a JSONL file, opening it per write so the file
// can be rotated or inspected while the service runs.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Export(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("export record: %w", err)
	}
	return nil
}

// ReadRecords parses a JSONL export stream back into records, for audit
// tooling and round-trip checks.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse export line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
