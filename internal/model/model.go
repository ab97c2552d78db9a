package model

import "time"

type AppointmentStatus string

const (
	StatusProposed      AppointmentStatus = "proposed"
	StatusConfirmed     AppointmentStatus = "confirmed"
	StatusInProgress    AppointmentStatus = "in_progress"
	StatusCompleted     AppointmentStatus = "completed"
	StatusCancelled     AppointmentStatus = "cancelled"
	StatusCancelledLate AppointmentStatus = "cancelled_late"
)

// ValidStatus reports whether s is one of the six legal appointment statuses.
func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusProposed, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusCancelledLate:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusCancelledLate:
		return true
	}
	return false
}

// Cancelled covers both cancellation statuses; cancelled appointments never
// block a slot or count toward conflicts.
func (s AppointmentStatus) Cancelled() bool {
	return s == StatusCancelled || s == StatusCancelledLate
}

type Role string

const (
	RoleClient       Role = "client"
	RolePractitioner Role = "practitioner"
	RoleAdmin        Role = "admin"
)

// Staff reports whether the role acts on behalf of the clinic.
func (r Role) Staff() bool {
	return r == RolePractitioner || r == RoleAdmin
}

// Actor is the already-resolved caller identity; authentication happens
// upstream.
type Actor struct {
	ID   string
	Role Role
}

type Appointment struct {
	ID                string
	PractitionerID    string
	PetID             string
	ScheduledAt       time.Time
	DurationMinutes   int
	Status            AppointmentStatus
	VaccinationTypeID string // empty unless the visit reason is a vaccination
	Reason            string
	FeeCents          *int64 // late-cancellation fee, nil unless assessed
	FeePaid           bool
	FeeNote           string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type Practitioner struct {
	ID       string
	Name     string
	Role     Role
	IsActive bool
}

type Pet struct {
	ID      string
	OwnerID string
	Name    string
}

// Client is a pet owner's billing-facing profile.
type Client struct {
	ID               string
	Name             string
	Email            string
	StripeCustomerID string
}

// WorkingHours is the default recurring open interval for one practitioner
// on one weekday. Minutes are counted from midnight.
type WorkingHours struct {
	PractitionerID string
	Weekday        time.Weekday
	IsWorking      bool
	StartMinute    int
	EndMinute      int
}

type OverrideStatus string

const (
	OverridePending  OverrideStatus = "pending"
	OverrideApproved OverrideStatus = "approved"
	OverrideRejected OverrideStatus = "rejected"
)

// ScheduleOverride is a date-specific exception to working hours. An
// approved (0,0) interval is the day-off sentinel.
type ScheduleOverride struct {
	ID             string
	PractitionerID string
	Date           time.Time // midnight UTC of the affected day
	StartMinute    int
	EndMinute      int
	Status         OverrideStatus
}

func (o ScheduleOverride) DayOff() bool {
	return o.StartMinute == 0 && o.EndMinute == 0
}

type RescheduleStatus string

const (
	ReschedulePending   RescheduleStatus = "pending"
	RescheduleApproved  RescheduleStatus = "approved"
	RescheduleRejected  RescheduleStatus = "rejected"
	RescheduleCancelled RescheduleStatus = "cancelled"
)

type RescheduleRequest struct {
	ID              string
	AppointmentID   string
	OldScheduledAt  time.Time
	NewScheduledAt  time.Time
	RequestedBy     string
	Note            string
	Status          RescheduleStatus
	ReviewedBy      string
	ReviewedAt      *time.Time
	RejectionReason string
	CreatedAt       time.Time
}

// Slot is a transient availability grid cell; it is computed fresh per
// query and never persisted.
type Slot struct {
	Time      string `json:"time"` // "HH:MM"
	Available bool   `json:"available"`
}

type VaccinationType struct {
	ID   string
	Name string
}

type VaccinationRecord struct {
	ID                string
	PetID             string
	VaccinationTypeID string
	AdministeredOn    time.Time
	Source            string
}

// RecordSourceAppointment marks records generated automatically when a
// vaccination appointment completes.
const RecordSourceAppointment = "from_appointment"

type MedicalRecord struct {
	ID            string
	PetID         string
	AppointmentID string
	Note          string
	CreatedAt     time.Time
}

type Penalty struct {
	ID            string
	AppointmentID string
	ClientID      string
	AmountCents   int64
	Reason        string
	CreatedAt     time.Time
}

type ClinicService struct {
	ID              string
	Name            string
	PriceCents      int64
	DurationMinutes int
}

// ServiceItem is a billed line item attached to an appointment; items are
// deleted together with the appointment.
type ServiceItem struct {
	ID            string
	AppointmentID string
	ServiceID     string
	Quantity      int
	PriceCents    int64
}
