package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
)

type LookupPatientRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

type CreatePatientRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth string  `json:"date_of_birth"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Address     *string `json:"address,omitempty"`
}

type UpdateContactRequest struct {
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

type PatientResponse struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Address     *string   `json:"address,omitempty"`
	IsNew       bool      `json:"is_new"`
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Booked    bool      `json:"booked"`
}

type BookAppointmentRequest struct {
	SlotID          string `json:"slot_id"`
	PatientID       string `json:"patient_id"`
	DurationMinutes int    `json:"duration_minutes"`
}

type AttachInsuranceRequest struct {
	Carrier  string  `json:"carrier"`
	MemberID string  `json:"member_id"`
	GroupID  *string `json:"group_id,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	SlotID          uuid.UUID  `json:"slot_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	InsuranceID     *uuid.UUID `json:"insurance_id,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Patient *PatientResponse `json:"patient,omitempty"`
	Slot    *SlotResponse    `json:"slot,omitempty"`
	Doctor  string           `json:"doctor,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func patientResponse(p *clinic.Patient) *PatientResponse {
	if p == nil {
		return nil
	}
	return &PatientResponse{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		DateOfBirth: p.DateOfBirth,
		Email:       p.Email,
		Phone:       p.Phone,
		Address:     p.Address,
		IsNew:       p.IsNew,
	}
}

func slotResponse(s clinic.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Booked:    s.Booked,
	}
}

func slotResponses(slots []clinic.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse(s))
	}
	return out
}

func appointmentResponse(a *clinic.Appointment) *AppointmentResponse {
	if a == nil {
		return nil
	}
	return &AppointmentResponse{
		ID:              a.ID,
		SlotID:          a.SlotID,
		PatientID:       a.PatientID,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		InsuranceID:     a.InsuranceID,
	}
}

func appointmentDetailResponse(d *clinic.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: *appointmentResponse(&d.Appointment),
		Patient:             patientResponse(d.Patient),
	}
	if d.Slot != nil {
		slot := slotResponse(*d.Slot)
		resp.Slot = &slot
	}
	if d.Doctor != nil {
		resp.Doctor = d.Doctor.Name
	}
	return resp
}
