package model

import "time"

// RegistrationStatus is the seat state of a registration.
type RegistrationStatus string

const (
	StatusEnrolled   RegistrationStatus = "Enrolled"
	StatusWaitlisted RegistrationStatus = "Waitlisted"
)

// Registration is a user's hold on a seat (or waitlist place) in a class.
// WaitlistOrder is 1-based and only meaningful while Waitlisted.
type Registration struct {
	ID            RegistrationID     `json:"id"`
	UserID        UserID             `json:"userId"`
	ClassID       ClassID            `json:"classId"`
	Status        RegistrationStatus `json:"status"`
	WaitlistOrder int                `json:"waitlistOrder,omitempty"`
	Attended      bool               `json:"attended"`
	Completed     bool               `json:"completed"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Counts is the capacity triple shown everywhere as enrolled/waitlisted/capacity.
type Counts struct {
	ClassID    ClassID `json:"classId"`
	Enrolled   int     `json:"enrolled"`
	Waitlisted int     `json:"waitlisted"`
	Capacity   int     `json:"capacity"`
}

// SeatOp is the kind of persisted change a seat transaction produces.
type SeatOp string

const (
	SeatInsert SeatOp = "insert"
	SeatUpdate SeatOp = "update"
	SeatDelete SeatOp = "delete"
)

// SeatReason explains why a seat change happened.
type SeatReason string

const (
	ReasonAdmit   SeatReason = "admit"
	ReasonPromote SeatReason = "promote"
	ReasonDemote  SeatReason = "demote"
	ReasonReorder SeatReason = "reorder"
	ReasonRelease SeatReason = "release"
)

// SeatChange is one row-level effect of a committed seat transaction.
type SeatChange struct {
	Op           SeatOp       `json:"op"`
	Reason       SeatReason   `json:"reason"`
	Registration Registration `json:"registration"`
}

// Policy selects which precondition set applies to a registration request.
type Policy int

const (
	SelfService Policy = iota
	Administrative
)

func (p Policy) String() string {
	if p == Administrative {
		return "administrative"
	}
	return "self-service"
}

// Conflict is the decision payload returned when the user already holds a
// registration in the same timeslot.
type Conflict struct {
	Conflict               bool           `json:"conflict"`
	ConflictClassID        ClassID        `json:"conflictClassId"`
	ConflictClassName      string         `json:"conflictClassName"`
	ConflictRegistrationID RegistrationID `json:"conflictRegistrationId"`
	TimeslotID             TimeslotID     `json:"timeslotId"`
}

// RegisterResult is the outcome of Register/AdminAdd. Exactly one of
// Conflict and Registrations is populated.
type RegisterResult struct {
	Status        RegistrationStatus `json:"status,omitempty"`
	Registrations []Registration     `json:"registrations,omitempty"`
	Conflict      *Conflict          `json:"conflict,omitempty"`
}

// RosterEntry is a registration joined with its user for display.
type RosterEntry struct {
	Registration
	Name          string `json:"name"`
	CheckInNumber *int64 `json:"checkInNumber,omitempty"`
}

// Roster lists a class's seats. Enrolled is ordered by name, Waitlisted by
// WaitlistOrder.
type Roster struct {
	Class      Class         `json:"class"`
	Counts     Counts        `json:"counts"`
	Enrolled   []RosterEntry `json:"enrolled"`
	Waitlisted []RosterEntry `json:"waitlisted"`
}

// ScheduleEntry is one line of a user's personal schedule.
type ScheduleEntry struct {
	Registration Registration `json:"registration"`
	Class        Class        `json:"class"`
	Timeslot     Timeslot     `json:"timeslot"`
}

// ClassListing is a student-facing catalog line.
type ClassListing struct {
	Class  Class  `json:"class"`
	Counts Counts `json:"counts"`
}
