package model

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	StartDate   string `json:"startDate" yaml:"startDate"`
	EndDate     string `json:"endDate" yaml:"endDate"`
	Active      bool   `json:"active" yaml:"active"`
	Live        bool   `json:"live" yaml:"live"`
}

// UpdateEventRequest toggles event visibility and registration.
type UpdateEventRequest struct {
	Active *bool        `json:"active,omitempty"`
	Status *EventStatus `json:"status,omitempty"`
}

// CreateClubRequest is the payload for creating a club.
type CreateClubRequest struct {
	Name       string  `json:"name" yaml:"name"`
	Church     string  `json:"church" yaml:"church"`
	DirectorID *UserID `json:"directorId,omitempty" yaml:"directorId"`
}

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	FirstName        string           `json:"firstName" yaml:"firstName"`
	LastName         string           `json:"lastName" yaml:"lastName"`
	Email            string           `json:"email" yaml:"email"`
	Role             Role             `json:"role" yaml:"role"`
	EventID          *EventID         `json:"eventId,omitempty" yaml:"eventId"`
	ClubID           *ClubID          `json:"clubId,omitempty" yaml:"clubId"`
	InvestitureLevel InvestitureLevel `json:"investitureLevel" yaml:"investitureLevel"`
}

// UpdateUserRequest changes the active flag and club of a user. ClearClub
// removes the club and cannot be combined with ClubID.
type UpdateUserRequest struct {
	Active    *bool   `json:"active,omitempty"`
	ClubID    *ClubID `json:"clubId,omitempty"`
	ClearClub bool    `json:"clearClub,omitempty"`
}

// CreateLocationRequest is the payload for creating a location.
type CreateLocationRequest struct {
	EventID     EventID `json:"eventId" yaml:"eventId"`
	Name        string  `json:"name" yaml:"name"`
	MaxCapacity int     `json:"maxCapacity" yaml:"maxCapacity"`
}

// CreateTimeslotRequest is the payload for creating a timeslot.
type CreateTimeslotRequest struct {
	EventID   EventID `json:"eventId" yaml:"eventId"`
	Date      string  `json:"date" yaml:"date"`
	StartTime string  `json:"startTime" yaml:"startTime"`
	EndTime   string  `json:"endTime" yaml:"endTime"`
}

// CreateHonorRequest is the payload for creating an honor.
type CreateHonorRequest struct {
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name" yaml:"name"`
}

// CreateClassRequest is the payload for creating a single-session class.
type CreateClassRequest struct {
	EventID            EventID           `json:"eventId" yaml:"eventId"`
	HonorID            HonorID           `json:"honorId" yaml:"honorId"`
	Name               string            `json:"name" yaml:"name"`
	TeacherID          *UserID           `json:"teacherId,omitempty" yaml:"teacherId"`
	LocationID         *LocationID       `json:"locationId,omitempty" yaml:"locationId"`
	TimeslotID         TimeslotID        `json:"timeslotId" yaml:"timeslotId"`
	TeacherMaxStudents int               `json:"teacherMaxStudents" yaml:"teacherMaxStudents"`
	MinimumLevel       *InvestitureLevel `json:"minimumLevel,omitempty" yaml:"minimumLevel"`
}

// CreateSessionGroupRequest creates one class per timeslot sharing a group id.
type CreateSessionGroupRequest struct {
	EventID            EventID           `json:"eventId" yaml:"eventId"`
	HonorID            HonorID           `json:"honorId" yaml:"honorId"`
	Name               string            `json:"name" yaml:"name"`
	TeacherID          *UserID           `json:"teacherId,omitempty" yaml:"teacherId"`
	LocationID         *LocationID       `json:"locationId,omitempty" yaml:"locationId"`
	TimeslotIDs        []TimeslotID      `json:"timeslotIds" yaml:"timeslotIds"`
	TeacherMaxStudents int               `json:"teacherMaxStudents" yaml:"teacherMaxStudents"`
	MinimumLevel       *InvestitureLevel `json:"minimumLevel,omitempty" yaml:"minimumLevel"`
}

// CapacityInputsRequest updates the inputs of ActualMaxCapacity.
type CapacityInputsRequest struct {
	TeacherMaxStudents *int        `json:"teacherMaxStudents,omitempty"`
	LocationID         *LocationID `json:"locationId,omitempty"`
	ClearLocation      bool        `json:"clearLocation,omitempty"`
}

// RegisterRequest is the payload for registering a user for a class.
type RegisterRequest struct {
	UserID UserID `json:"userId"`
}

// ResolveConflictRequest asks to move a user out of a conflicting class.
type ResolveConflictRequest struct {
	UserID                 UserID         `json:"userId"`
	ConflictRegistrationID RegistrationID `json:"conflictRegistrationId"`
}

// AttendanceRequest sets the post-hoc teacher flags.
type AttendanceRequest struct {
	Attended  bool `json:"attended"`
	Completed bool `json:"completed"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// PartialFailureResponse reports a conflict resolution that withdrew the old
// registration but could not place the new one.
type PartialFailureResponse struct {
	PartialFailure          bool           `json:"partialFailure"`
	WithdrawnRegistrationID RegistrationID `json:"withdrawnRegistrationId"`
	Error                   string         `json:"error"`
}
