package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// CatalogService validates catalog writes and delegates them to the store.
// Writes that move seats go through the Engine.
type CatalogService struct {
	store  repository.Store
	engine *Engine
}

// NewCatalogService constructs a CatalogService with its dependencies.
func NewCatalogService(store repository.Store, engine *Engine) *CatalogService {
	return &CatalogService{store: store, engine: engine}
}

// CreateEvent validates the request and delegates to the store.
func (s *CatalogService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid(CodeInvalidInput, "event name is required")
	}
	start, err := time.Parse(model.DateLayout, req.StartDate)
	if err != nil {
		return nil, invalid(CodeInvalidInput, "startDate %q: want YYYY-MM-DD", req.StartDate)
	}
	end, err := time.Parse(model.DateLayout, req.EndDate)
	if err != nil {
		return nil, invalid(CodeInvalidInput, "endDate %q: want YYYY-MM-DD", req.EndDate)
	}
	if end.Before(start) {
		return nil, invalid(CodeInvalidInput, "endDate must not precede startDate")
	}
	event := &model.Event{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Active:      req.Active,
		Status:      model.EventClosed,
	}
	if req.Live && req.Active {
		event.Status = model.EventLive
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events.
func (s *CatalogService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.store.ListEvents(ctx)
}

// GetEvent returns a single event by ID.
func (s *CatalogService) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, notFound("event", id, err)
	}
	return event, nil
}

// UpdateEvent toggles visibility and registration status. Hiding an event
// closes it; a hidden event cannot be opened.
func (s *CatalogService) UpdateEvent(ctx context.Context, id model.EventID, req model.UpdateEventRequest) (*model.Event, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Active != nil {
		event.SetActive(*req.Active)
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, invalid(CodeInvalidInput, "unknown event status %q", *req.Status)
		}
		if *req.Status == model.EventLive && !event.Active {
			return nil, invalid(CodeInvalidInput, "an inactive event cannot be opened for registration")
		}
		event.Status = *req.Status
	}
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, notFound("event", id, err)
	}
	return event, nil
}

// CreateClub validates the request and delegates to the store.
func (s *CatalogService) CreateClub(ctx context.Context, req model.CreateClubRequest) (*model.Club, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid(CodeInvalidInput, "club name is required")
	}
	if req.DirectorID != nil {
		if _, err := s.store.GetUser(ctx, *req.DirectorID); err != nil {
			return nil, notFound("user", *req.DirectorID, err)
		}
	}
	club := &model.Club{Name: req.Name, Church: strings.TrimSpace(req.Church), DirectorID: req.DirectorID}
	if err := s.store.CreateClub(ctx, club); err != nil {
		return nil, fmt.Errorf("create club: %w", err)
	}
	return club, nil
}

// AssignClub attends a club at an event.
func (s *CatalogService) AssignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return err
	}
	if _, err := s.store.GetClub(ctx, clubID); err != nil {
		return notFound("club", clubID, err)
	}
	if err := s.store.AssignClub(ctx, eventID, clubID); err != nil {
		return fmt.Errorf("assign club %d to event %d: %w", clubID, eventID, err)
	}
	return nil
}

// UnassignClub removes a club from an event.
func (s *CatalogService) UnassignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error {
	if err := s.store.UnassignClub(ctx, eventID, clubID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Kind: "event club", ID: int64(clubID)}
		}
		return fmt.Errorf("unassign club %d from event %d: %w", clubID, eventID, err)
	}
	return nil
}

// ListEventClubs returns the clubs attending an event.
func (s *CatalogService) ListEventClubs(ctx context.Context, eventID model.EventID) ([]model.Club, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListEventClubs(ctx, eventID)
}

// CreateUser validates the request and delegates to the store. New users are
// active; an empty role means Student.
func (s *CatalogService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.FirstName == "" || req.LastName == "" {
		return nil, invalid(CodeInvalidInput, "firstName and lastName are required")
	}
	if req.Email != "" && !isValidEmail(req.Email) {
		return nil, invalid(CodeInvalidInput, "email %q is not a valid email address", req.Email)
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		return nil, invalid(CodeInvalidInput, "unknown role %q", req.Role)
	}
	if req.EventID != nil {
		if _, err := s.GetEvent(ctx, *req.EventID); err != nil {
			return nil, err
		}
	}
	if req.ClubID != nil {
		if _, err := s.store.GetClub(ctx, *req.ClubID); err != nil {
			return nil, notFound("club", *req.ClubID, err)
		}
	}
	user := &model.User{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Role:             req.Role,
		EventID:          req.EventID,
		ClubID:           req.ClubID,
		InvestitureLevel: req.InvestitureLevel,
		Active:           true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalid(CodeInvalidInput, "email %q is already in use", req.Email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser returns a single user by ID.
func (s *CatalogService) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return user, nil
}

// UpdateUser sets the active flag and club of a user. Existing
// registrations are kept; the flags only gate new self-service requests.
func (s *CatalogService) UpdateUser(ctx context.Context, id model.UserID, req model.UpdateUserRequest) (*model.User, error) {
	if req.ClearClub && req.ClubID != nil {
		return nil, invalid(CodeInvalidInput, "clubId and clearClub are mutually exclusive")
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.ClubID != nil {
		if _, err := s.store.GetClub(ctx, *req.ClubID); err != nil {
			return nil, notFound("club", *req.ClubID, err)
		}
		user.ClubID = req.ClubID
	}
	if req.ClearClub {
		user.ClubID = nil
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, notFound("user", id, err)
	}
	return user, nil
}

// AssignCheckInNumber gives the user a check-in number unless it has one.
func (s *CatalogService) AssignCheckInNumber(ctx context.Context, id model.UserID) (*model.User, error) {
	if _, err := s.store.AssignCheckInNumber(ctx, id); err != nil {
		return nil, notFound("user", id, err)
	}
	return s.GetUser(ctx, id)
}

// CreateLocation validates the request and delegates to the store.
func (s *CatalogService) CreateLocation(ctx context.Context, req model.CreateLocationRequest) (*model.Location, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, invalid(CodeInvalidInput, "location name is required")
	}
	if req.MaxCapacity < 0 {
		return nil, invalid(CodeInvalidInput, "maxCapacity must not be negative")
	}
	if _, err := s.GetEvent(ctx, req.EventID); err != nil {
		return nil, err
	}
	loc := &model.Location{EventID: req.EventID, Name: req.Name, MaxCapacity: req.MaxCapacity}
	if err := s.store.CreateLocation(ctx, loc); err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	return loc, nil
}

// DeleteLocation removes a location and resizes every class held in it.
func (s *CatalogService) DeleteLocation(ctx context.Context, id model.LocationID) error {
	return s.engine.DeleteLocation(ctx, id)
}

// CreateTimeslot validates the request and delegates to the store.
func (s *CatalogService) CreateTimeslot(ctx context.Context, req model.CreateTimeslotRequest) (*model.Timeslot, error) {
	ts := &model.Timeslot{EventID: req.EventID, Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime}
	if err := ts.Validate(); err != nil {
		return nil, invalid(CodeInvalidInput, "%v", err)
	}
	if _, err := s.GetEvent(ctx, req.EventID); err != nil {
		return nil, err
	}
	if err := s.store.CreateTimeslot(ctx, ts); err != nil {
		return nil, fmt.Errorf("create timeslot: %w", err)
	}
	return ts, nil
}

// ListTimeslots returns the timeslots of an event.
func (s *CatalogService) ListTimeslots(ctx context.Context, eventID model.EventID) ([]model.Timeslot, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListTimeslots(ctx, eventID)
}

// CreateHonor validates the request and delegates to the store.
func (s *CatalogService) CreateHonor(ctx context.Context, req model.CreateHonorRequest) (*model.Honor, error) {
	honor := &model.Honor{Category: strings.TrimSpace(req.Category), Name: strings.TrimSpace(req.Name)}
	if honor.Category == "" || honor.Name == "" {
		return nil, invalid(CodeInvalidInput, "honor category and name are required")
	}
	if err := s.store.CreateHonor(ctx, honor); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalid(CodeInvalidInput, "honor %s/%s already exists", honor.Category, honor.Name)
		}
		return nil, fmt.Errorf("create honor: %w", err)
	}
	return honor, nil
}

// GetClass returns a single class by ID.
func (s *CatalogService) GetClass(ctx context.Context, id model.ClassID) (*model.Class, error) {
	class, err := s.store.GetClass(ctx, id)
	if err != nil {
		return nil, notFound("class", id, err)
	}
	return class, nil
}

// CreateClass validates a single-session class and starts its seat book.
func (s *CatalogService) CreateClass(ctx context.Context, req model.CreateClassRequest) (*model.Class, error) {
	s.engine.locMu.RLock()
	defer s.engine.locMu.RUnlock()
	tmpl, err := s.classTemplate(ctx, req.EventID, req.HonorID, req.Name, req.TeacherID, req.LocationID, req.TeacherMaxStudents, req.MinimumLevel)
	if err != nil {
		return nil, err
	}
	if err := s.checkTimeslot(ctx, req.EventID, req.TimeslotID); err != nil {
		return nil, err
	}
	class := tmpl
	class.TimeslotID = req.TimeslotID
	if err := s.store.CreateClass(ctx, &class); err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}
	if err := s.engine.TrackClass(ctx, &class); err != nil {
		return nil, err
	}
	return &class, nil
}

// CreateSessionGroup creates one class per timeslot, numbered in the given
// order, sharing a new session group id.
func (s *CatalogService) CreateSessionGroup(ctx context.Context, req model.CreateSessionGroupRequest) ([]model.Class, error) {
	s.engine.locMu.RLock()
	defer s.engine.locMu.RUnlock()
	if len(req.TimeslotIDs) < 2 {
		return nil, invalid(CodeInvalidInput, "a session group needs at least two timeslots")
	}
	if len(slices.Compact(slices.Sorted(slices.Values(req.TimeslotIDs)))) != len(req.TimeslotIDs) {
		return nil, invalid(CodeInvalidInput, "session group timeslots must be distinct")
	}
	tmpl, err := s.classTemplate(ctx, req.EventID, req.HonorID, req.Name, req.TeacherID, req.LocationID, req.TeacherMaxStudents, req.MinimumLevel)
	if err != nil {
		return nil, err
	}
	classes := make([]*model.Class, len(req.TimeslotIDs))
	for i, tsID := range req.TimeslotIDs {
		if err := s.checkTimeslot(ctx, req.EventID, tsID); err != nil {
			return nil, err
		}
		c := tmpl
		c.TimeslotID = tsID
		c.SessionNumber = i + 1
		c.TotalSessions = len(req.TimeslotIDs)
		classes[i] = &c
	}
	if _, err := s.store.CreateSessionGroup(ctx, classes); err != nil {
		return nil, fmt.Errorf("create session group: %w", err)
	}
	out := make([]model.Class, len(classes))
	for i, c := range classes {
		if err := s.engine.TrackClass(ctx, c); err != nil {
			return nil, err
		}
		out[i] = *c
	}
	return out, nil
}

// classTemplate validates the inputs shared by every class of a request.
func (s *CatalogService) classTemplate(ctx context.Context, eventID model.EventID, honorID model.HonorID, name string,
	teacherID *model.UserID, locationID *model.LocationID, teacherMax int, minLevel *model.InvestitureLevel,
) (model.Class, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return model.Class{}, err
	}
	honor, err := s.store.GetHonor(ctx, honorID)
	if err != nil {
		return model.Class{}, notFound("honor", honorID, err)
	}
	if teacherMax < 0 {
		return model.Class{}, invalid(CodeInvalidInput, "teacherMaxStudents must not be negative")
	}
	if teacherID != nil {
		if _, err := s.GetUser(ctx, *teacherID); err != nil {
			return model.Class{}, err
		}
	}
	var loc *model.Location
	if locationID != nil {
		loc, err = s.store.GetLocation(ctx, *locationID)
		if err != nil {
			return model.Class{}, notFound("location", *locationID, err)
		}
		if loc.EventID != eventID {
			return model.Class{}, invalid(CodeInvalidInput, "location %d belongs to another event", loc.ID)
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = honor.Name
	}
	return model.Class{
		EventID:            eventID,
		HonorID:            honorID,
		Name:               name,
		TeacherID:          teacherID,
		LocationID:         locationID,
		TeacherMaxStudents: teacherMax,
		ActualMaxCapacity:  model.EffectiveCapacity(teacherMax, loc),
		MinimumLevel:       minLevel,
		Active:             true,
	}, nil
}

func (s *CatalogService) checkTimeslot(ctx context.Context, eventID model.EventID, id model.TimeslotID) error {
	ts, err := s.store.GetTimeslot(ctx, id)
	if err != nil {
		return notFound("timeslot", id, err)
	}
	if ts.EventID != eventID {
		return invalid(CodeInvalidInput, "timeslot %d belongs to another event", id)
	}
	return nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
