package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/scheduling-assistant/internal/flow"
)

// SessionInputRequest is a tagged union: "type" selects the input variant
// and the remaining fields belong to that variant.
type SessionInputRequest struct {
	Type string `json:"type"`

	// identify
	FirstName   string  `json:"first_name,omitempty"`
	LastName    string  `json:"last_name,omitempty"`
	DateOfBirth string  `json:"date_of_birth,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Address     *string `json:"address,omitempty"`

	// constraints
	DoctorID string `json:"doctor_id,omitempty"`
	Day      string `json:"day,omitempty"`

	// select_slot
	SlotID string `json:"slot_id,omitempty"`

	// insurance
	Carrier  string  `json:"carrier,omitempty"`
	MemberID string  `json:"member_id,omitempty"`
	GroupID  *string `json:"group_id,omitempty"`

	// decision
	Accept *bool `json:"accept,omitempty"`

	// abort
	Reason string `json:"reason,omitempty"`
}

type SessionResponse struct {
	ID              uuid.UUID            `json:"id"`
	State           string               `json:"state"`
	Message         string               `json:"message,omitempty"`
	Patient         *PatientResponse     `json:"patient,omitempty"`
	DurationMinutes int                  `json:"duration_minutes,omitempty"`
	Slots           []SlotResponse       `json:"slots,omitempty"`
	Appointment     *AppointmentResponse `json:"appointment,omitempty"`
}

func (req SessionInputRequest) toInput() (flow.Input, error) {
	switch req.Type {
	case "identify":
		return flow.Identify{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			DateOfBirth: req.DateOfBirth,
			Email:       req.Email,
			Phone:       req.Phone,
			Address:     req.Address,
		}, nil
	case "constraints":
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("doctor_id must be a valid UUID")
		}
		day, err := time.Parse("2006-01-02", req.Day)
		if err != nil {
			return nil, fmt.Errorf("day must be YYYY-MM-DD")
		}
		return flow.Constraints{DoctorID: doctorID, Day: day}, nil
	case "select_slot":
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			return nil, fmt.Errorf("slot_id must be a valid UUID")
		}
		return flow.SelectSlot{SlotID: slotID}, nil
	case "insurance":
		return flow.InsuranceDetails{
			Carrier:  req.Carrier,
			MemberID: req.MemberID,
			GroupID:  req.GroupID,
		}, nil
	case "decision":
		if req.Accept == nil {
			return nil, fmt.Errorf("decision requires accept")
		}
		return flow.Decision{Accept: *req.Accept}, nil
	case "abort":
		return flow.Abort{Reason: req.Reason}, nil
	default:
		return nil, fmt.Errorf("unknown input type %q", req.Type)
	}
}

func createSessionHandler(store *flow.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := store.Create()
		writeJSON(w, http.StatusCreated, SessionResponse{ID: s.ID, State: string(s.State)})
	}
}

func getSessionHandler(store *flow.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		s, err := store.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}

		resp := SessionResponse{
			ID:          s.ID,
			State:       string(s.State),
			Patient:     patientResponse(s.Patient),
			Slots:       slotResponses(s.Offered),
			Appointment: appointmentResponse(s.Appointment),
		}
		if s.Duration > 0 {
			resp.DurationMinutes = int(s.Duration.Minutes())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func sessionInputHandler(store *flow.SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		var req SessionInputRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}

		reply, err := store.Advance(r.Context(), id, in)
		if err != nil {
			handleSessionError(w, err)
			return
		}

		resp := SessionResponse{
			ID:              id,
			State:           string(reply.State),
			Message:         reply.Message,
			Patient:         patientResponse(reply.Patient),
			DurationMinutes: reply.DurationMinutes,
			Slots:           slotResponses(reply.Slots),
			Appointment:     appointmentResponse(reply.Appointment),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, flow.ErrInvalidInput):
		// The session did not advance; the caller should re-prompt.
		writeError(w, http.StatusUnprocessableEntity, "invalid_input_for_state", err.Error())
	case errors.Is(err, flow.ErrSessionFinished):
		writeError(w, http.StatusConflict, "session_finished", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
