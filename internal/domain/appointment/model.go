package appointment

import (
	"fmt"
	"strings"
	"time"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCheckedIn Status = "Checked-In"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "No-Show"
)

var allStatuses = []Status{StatusScheduled, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow}

// transitions is the legal status graph. Statuses without an entry are terminal.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted},
}

// ParseStatus matches s exactly against the known statuses.
func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is legal. Re-applying
// the current status is accepted as a no-op.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// HoldsSlot reports whether an appointment in this status occupies its slot.
func (s Status) HoldsSlot() bool {
	return s != StatusCancelled
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// NormalizeDate checks s is a calendar date in YYYY-MM-DD form.
func NormalizeDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d.Format(DateLayout), nil
}

// NormalizeClock accepts HH:MM, or HH:MM:SS with zero seconds, and returns HH:MM.
func NormalizeClock(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(ClockLayout, s); err == nil {
		return t.Format(ClockLayout), nil
	}
	if t, err := time.Parse("15:04:05", s); err == nil && t.Second() == 0 {
		return t.Format(ClockLayout), nil
	}
	return "", fmt.Errorf("invalid time %q, expected HH:MM", s)
}

// Slot is a doctor's calendar position. At most one non-cancelled
// appointment may hold a slot.
type Slot struct {
	DoctorID int64
	Date     string
	Time     string
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID            int64     `json:"appointmentId"`
	StaffID       *int64    `json:"staffId,omitempty"`
	PatientIC     string    `json:"patientIC"`
	DoctorID      int64     `json:"doctorId"`
	RoomID        *int64    `json:"roomId,omitempty"`
	Date          string    `json:"appointmentDate"`
	Time          string    `json:"appointmentTime"`
	ReasonToVisit *string   `json:"reasonToVisit,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (a *Appointment) Slot() Slot {
	return Slot{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// Detail is an appointment joined with the names the front desk shows.
type Detail struct {
	Appointment
	PatientName  string  `json:"patientName"`
	PatientPhone *string `json:"patientPhone,omitempty"`
	DoctorName   string  `json:"doctorName"`
	StaffName    *string `json:"staffName,omitempty"`
	RoomType     *string `json:"roomType,omitempty"`
}

// BookRequest is the body of POST /api/appointments.
type BookRequest struct {
	StaffID         *int64  `json:"staffId"`
	PatientIC       string  `json:"patientIC" validate:"required"`
	DoctorID        int64   `json:"doctorId" validate:"required"`
	RoomID          *int64  `json:"roomId"`
	AppointmentDate string  `json:"appointmentDate" validate:"required"`
	AppointmentTime string  `json:"appointmentTime" validate:"required"`
	ReasonToVisit   *string `json:"reasonToVisit"`
}

func (r *BookRequest) missingFields() []string {
	var missing []string
	if strings.TrimSpace(r.PatientIC) == "" {
		missing = append(missing, "patientIC")
	}
	if r.DoctorID == 0 {
		missing = append(missing, "doctorId")
	}
	if strings.TrimSpace(r.AppointmentDate) == "" {
		missing = append(missing, "appointmentDate")
	}
	if strings.TrimSpace(r.AppointmentTime) == "" {
		missing = append(missing, "appointmentTime")
	}
	return missing
}

// UpdateRequest is the body of PUT /api/appointments/:id. Status is optional
// and keeps the current value when omitted.
type UpdateRequest struct {
	BookRequest
	Status *string `json:"status"`
}

// StatusRequest is the body of PATCH /api/appointments/:id/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListFilter narrows the joined listing. Zero values mean no filter.
type ListFilter struct {
	DoctorID  int64
	PatientIC string
	Status    Status
	Date      string
}
