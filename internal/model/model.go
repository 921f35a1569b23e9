// Package model defines the core domain types for the honors festival
// registration service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Identities are opaque typed integers. Conversions from strings happen only
// at the API boundary.
type (
	EventID        int64
	ClubID         int64
	UserID         int64
	LocationID     int64
	TimeslotID     int64
	HonorID        int64
	ClassID        int64
	SessionGroupID int64
	RegistrationID int64
)

// EventStatus gates self-service registration.
type EventStatus string

const (
	EventLive   EventStatus = "Live"
	EventClosed EventStatus = "Closed"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	return s == EventLive || s == EventClosed
}

// Event is a festival: a date range with its own timeslots, locations and classes.
type Event struct {
	ID          EventID     `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Active      bool        `json:"active"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// SetActive toggles visibility. Hiding an event force-closes registration;
// showing it again leaves Status alone.
func (e *Event) SetActive(active bool) {
	e.Active = active
	if !active {
		e.Status = EventClosed
	}
}

// Club is a local group of students led by an optional director.
type Club struct {
	ID         ClubID  `json:"id"`
	Name       string  `json:"name"`
	DirectorID *UserID `json:"directorId,omitempty"`
	Church     string  `json:"church,omitempty"`
}

// Role is the capability set a user holds.
type Role string

const (
	RoleAdmin        Role = "Admin"
	RoleEventAdmin   Role = "EventAdmin"
	RoleClubDirector Role = "ClubDirector"
	RoleTeacher      Role = "Teacher"
	RoleStudent      Role = "Student"
	RoleStaff        Role = "Staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEventAdmin, RoleClubDirector, RoleTeacher, RoleStudent, RoleStaff:
		return true
	}
	return false
}

// InvestitureLevel is an ordered proficiency tier.
type InvestitureLevel int

const (
	LevelNone InvestitureLevel = iota
	LevelFriend
	LevelCompanion
	LevelExplorer
	LevelRanger
	LevelVoyager
	LevelGuide
	LevelMasterGuide
)

var levelNames = []string{
	"None", "Friend", "Companion", "Explorer", "Ranger", "Voyager", "Guide", "MasterGuide",
}

func (l InvestitureLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("InvestitureLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseInvestitureLevel accepts the level name case-insensitively. The empty
// string maps to LevelNone.
func ParseInvestitureLevel(s string) (InvestitureLevel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LevelNone, nil
	}
	compact := strings.ReplaceAll(s, " ", "")
	for i, name := range levelNames {
		if strings.EqualFold(name, compact) {
			return InvestitureLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown investiture level %q", s)
}

func (l InvestitureLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *InvestitureLevel) UnmarshalText(b []byte) error {
	parsed, err := ParseInvestitureLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// User is anyone who signs in: staff, teachers, directors and students.
type User struct {
	ID               UserID           `json:"id"`
	FirstName        string           `json:"firstName"`
	LastName         string           `json:"lastName"`
	Email            string           `json:"email,omitempty"`
	Role             Role             `json:"role"`
	EventID          *EventID         `json:"eventId,omitempty"`
	ClubID           *ClubID          `json:"clubId,omitempty"`
	InvestitureLevel InvestitureLevel `json:"investitureLevel"`
	Active           bool             `json:"active"`
	CheckInNumber    *int64           `json:"checkInNumber,omitempty"`
}

// FullName is used for roster ordering.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Location is a room with a fixed number of seats.
type Location struct {
	ID          LocationID `json:"id"`
	EventID     EventID    `json:"eventId"`
	Name        string     `json:"name"`
	MaxCapacity int        `json:"maxCapacity"`
}

// Timeslot is a date plus start/end block within an event. Times use the
// 24h "15:04" layout and Date uses "2006-01-02".
type Timeslot struct {
	ID        TimeslotID `json:"id"`
	EventID   EventID    `json:"eventId"`
	Date      string     `json:"date"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Validate checks the date and that StartTime precedes EndTime.
func (t *Timeslot) Validate() error {
	if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return fmt.Errorf("date %q: want YYYY-MM-DD", t.Date)
	}
	start, err := time.Parse(TimeLayout, t.StartTime)
	if err != nil {
		return fmt.Errorf("start time %q: want HH:MM", t.StartTime)
	}
	end, err := time.Parse(TimeLayout, t.EndTime)
	if err != nil {
		return fmt.Errorf("end time %q: want HH:MM", t.EndTime)
	}
	if !start.Before(end) {
		return fmt.Errorf("start time %s must be before end time %s", t.StartTime, t.EndTime)
	}
	return nil
}

// Honor is an immutable catalog entry taught by classes.
type Honor struct {
	ID       HonorID `json:"id"`
	Category string  `json:"category"`
	Name     string  `json:"name"`
}

// Class is one offering of an honor in one timeslot.
type Class struct {
	ID                 ClassID           `json:"id"`
	EventID            EventID           `json:"eventId"`
	HonorID            HonorID           `json:"honorId"`
	Name               string            `json:"name"`
	TeacherID          *UserID           `json:"teacherId,omitempty"`
	LocationID         *LocationID       `json:"locationId,omitempty"`
	TimeslotID         TimeslotID        `json:"timeslotId"`
	TeacherMaxStudents int               `json:"teacherMaxStudents"`
	ActualMaxCapacity  int               `json:"actualMaxCapacity"`
	MinimumLevel       *InvestitureLevel `json:"minimumLevel,omitempty"`
	Active             bool              `json:"active"`
	SessionGroupID     *SessionGroupID   `json:"sessionGroupId,omitempty"`
	SessionNumber      int               `json:"sessionNumber,omitempty"`
	TotalSessions      int               `json:"totalSessions,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// MultiSession reports whether the class belongs to a session group.
func (c *Class) MultiSession() bool {
	return c.SessionGroupID != nil && c.TotalSessions > 1
}

// EffectiveCapacity computes the seat limit for the given location. A class
// without a location has no seats.
func EffectiveCapacity(teacherMax int, loc *Location) int {
	if loc == nil {
		return 0
	}
	if teacherMax < 0 {
		teacherMax = 0
	}
	return min(teacherMax, loc.MaxCapacity)
}
