package flow

import (
	"time"

	"github.com/google/uuid"
)

// Input is the typed message a session consumes; exactly one variant is
// valid for each awaiting state.
type Input interface {
	isInput()
}

// Identify carries the patient identity collected at greeting.
type Identify struct {
	FirstName   string
	LastName    string
	DateOfBirth string // YYYY-MM-DD
	Email       *string
	Phone       *string
	Address     *string
}

// Constraints narrows the slot search to a doctor and day.
type Constraints struct {
	DoctorID uuid.UUID
	Day      time.Time
}

// SelectSlot picks one of the offered slots.
type SelectSlot struct {
	SlotID uuid.UUID
}

// InsuranceDetails carries the patient's coverage information.
type InsuranceDetails struct {
	Carrier  string
	MemberID string
	GroupID  *string
}

// Decision accepts or declines the final confirmation.
type Decision struct {
	Accept bool
}

// Abort cancels the session from any non-terminal state.
type Abort struct {
	Reason string
}

func (Identify) isInput()         {}
func (Constraints) isInput()      {}
func (SelectSlot) isInput()       {}
func (InsuranceDetails) isInput() {}
func (Decision) isInput()         {}
func (Abort) isInput()            {}
