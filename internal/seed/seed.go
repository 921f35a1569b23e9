// Package seed loads a catalog fixture from YAML and applies it through the
// catalog service and registration engine. Fixture entries refer to each
// other by key since store ids are only known after creation.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/service"
)

// Fixture is the top-level document of a seed file.
type Fixture struct {
	Events        []Event        `yaml:"events"`
	Clubs         []Club         `yaml:"clubs"`
	Honors        []Honor        `yaml:"honors"`
	Locations     []Location     `yaml:"locations"`
	Timeslots     []Timeslot     `yaml:"timeslots"`
	Users         []User         `yaml:"users"`
	Classes       []Class        `yaml:"classes"`
	Registrations []Registration `yaml:"registrations"`
}

type Event struct {
	Key                      string `yaml:"key"`
	model.CreateEventRequest `yaml:",inline"`
}

type Club struct {
	Key    string   `yaml:"key"`
	Name   string   `yaml:"name"`
	Church string   `yaml:"church,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

type Honor struct {
	Key                      string `yaml:"key"`
	model.CreateHonorRequest `yaml:",inline"`
}

type Location struct {
	Key         string `yaml:"key"`
	Event       string `yaml:"event"`
	Name        string `yaml:"name"`
	MaxCapacity int    `yaml:"maxCapacity"`
}

type Timeslot struct {
	Key       string `yaml:"key"`
	Event     string `yaml:"event"`
	Date      string `yaml:"date"`
	StartTime string `yaml:"startTime"`
	EndTime   string `yaml:"endTime"`
}

type User struct {
	Key              string                 `yaml:"key"`
	FirstName        string                 `yaml:"firstName"`
	LastName         string                 `yaml:"lastName"`
	Email            string                 `yaml:"email,omitempty"`
	Role             model.Role             `yaml:"role,omitempty"`
	Event            string                 `yaml:"event,omitempty"`
	Club             string                 `yaml:"club,omitempty"`
	InvestitureLevel model.InvestitureLevel `yaml:"investitureLevel,omitempty"`
	Inactive         bool                   `yaml:"inactive,omitempty"`
}

// Class with more than one timeslot becomes a session group.
type Class struct {
	Key                string                  `yaml:"key"`
	Event              string                  `yaml:"event"`
	Honor              string                  `yaml:"honor"`
	Name               string                  `yaml:"name,omitempty"`
	Teacher            string                  `yaml:"teacher,omitempty"`
	Location           string                  `yaml:"location,omitempty"`
	Timeslots          []string                `yaml:"timeslots"`
	TeacherMaxStudents int                     `yaml:"teacherMaxStudents"`
	MinimumLevel       *model.InvestitureLevel `yaml:"minimumLevel,omitempty"`
}

// Registration is applied with the administrative policy.
type Registration struct {
	User  string `yaml:"user"`
	Class string `yaml:"class"`
}

// Result maps fixture keys to the ids the store assigned. A session group
// class key maps to the first member.
type Result struct {
	Events        map[string]model.EventID
	Clubs         map[string]model.ClubID
	Honors        map[string]model.HonorID
	Locations     map[string]model.LocationID
	Timeslots     map[string]model.TimeslotID
	Users         map[string]model.UserID
	Classes       map[string]model.ClassID
	Registrations int
	Waitlisted    int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a fixture, rejecting unknown fields, and checks that every
// key is unique and every reference resolves.
func Parse(r io.Reader) (*Fixture, error) {
	var fx Fixture
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &fx, nil
}

type keySet map[string]struct{}

func (s keySet) add(kind, key string) error {
	if key == "" {
		return fmt.Errorf("%s key is required", kind)
	}
	if _, dup := s[key]; dup {
		return fmt.Errorf("duplicate %s key %q", kind, key)
	}
	s[key] = struct{}{}
	return nil
}

func (s keySet) ref(kind, key string, optional bool) error {
	if key == "" && optional {
		return nil
	}
	if _, ok := s[key]; !ok {
		return fmt.Errorf("unknown %s %q", kind, key)
	}
	return nil
}

func (fx *Fixture) validate() error {
	events, clubs, honors, locs, slots, users, classes :=
		keySet{}, keySet{}, keySet{}, keySet{}, keySet{}, keySet{}, keySet{}

	for _, e := range fx.Events {
		if err := events.add("event", e.Key); err != nil {
			return err
		}
	}
	for _, c := range fx.Clubs {
		if err := clubs.add("club", c.Key); err != nil {
			return err
		}
		for _, e := range c.Events {
			if err := events.ref("event", e, false); err != nil {
				return fmt.Errorf("club %q: %w", c.Key, err)
			}
		}
	}
	for _, h := range fx.Honors {
		if err := honors.add("honor", h.Key); err != nil {
			return err
		}
	}
	for _, l := range fx.Locations {
		if err := locs.add("location", l.Key); err != nil {
			return err
		}
		if err := events.ref("event", l.Event, false); err != nil {
			return fmt.Errorf("location %q: %w", l.Key, err)
		}
	}
	for _, t := range fx.Timeslots {
		if err := slots.add("timeslot", t.Key); err != nil {
			return err
		}
		if err := events.ref("event", t.Event, false); err != nil {
			return fmt.Errorf("timeslot %q: %w", t.Key, err)
		}
	}
	for _, u := range fx.Users {
		if err := users.add("user", u.Key); err != nil {
			return err
		}
		if err := events.ref("event", u.Event, true); err != nil {
			return fmt.Errorf("user %q: %w", u.Key, err)
		}
		if err := clubs.ref("club", u.Club, true); err != nil {
			return fmt.Errorf("user %q: %w", u.Key, err)
		}
	}
	for _, c := range fx.Classes {
		if err := classes.add("class", c.Key); err != nil {
			return err
		}
		checks := []error{
			events.ref("event", c.Event, false),
			honors.ref("honor", c.Honor, false),
			users.ref("teacher", c.Teacher, true),
			locs.ref("location", c.Location, true),
		}
		if len(c.Timeslots) == 0 {
			checks = append(checks, fmt.Errorf("at least one timeslot is required"))
		}
		for _, t := range c.Timeslots {
			checks = append(checks, slots.ref("timeslot", t, false))
		}
		for _, err := range checks {
			if err != nil {
				return fmt.Errorf("class %q: %w", c.Key, err)
			}
		}
	}
	for i, r := range fx.Registrations {
		if err := users.ref("user", r.User, false); err != nil {
			return fmt.Errorf("registration %d: %w", i+1, err)
		}
		if err := classes.ref("class", r.Class, false); err != nil {
			return fmt.Errorf("registration %d: %w", i+1, err)
		}
	}
	return nil
}

// Apply creates the fixture in dependency order. It stops at the first
// failure; whatever was created before stays.
func Apply(ctx context.Context, catalog *service.CatalogService, engine *service.Engine, fx *Fixture) (*Result, error) {
	res := &Result{
		Events:    make(map[string]model.EventID),
		Clubs:     make(map[string]model.ClubID),
		Honors:    make(map[string]model.HonorID),
		Locations: make(map[string]model.LocationID),
		Timeslots: make(map[string]model.TimeslotID),
		Users:     make(map[string]model.UserID),
		Classes:   make(map[string]model.ClassID),
	}

	for _, e := range fx.Events {
		event, err := catalog.CreateEvent(ctx, e.CreateEventRequest)
		if err != nil {
			return res, fmt.Errorf("event %q: %w", e.Key, err)
		}
		res.Events[e.Key] = event.ID
	}
	for _, c := range fx.Clubs {
		club, err := catalog.CreateClub(ctx, model.CreateClubRequest{Name: c.Name, Church: c.Church})
		if err != nil {
			return res, fmt.Errorf("club %q: %w", c.Key, err)
		}
		res.Clubs[c.Key] = club.ID
		for _, e := range c.Events {
			if err := catalog.AssignClub(ctx, res.Events[e], club.ID); err != nil {
				return res, fmt.Errorf("club %q: assign to %q: %w", c.Key, e, err)
			}
		}
	}
	for _, h := range fx.Honors {
		honor, err := catalog.CreateHonor(ctx, h.CreateHonorRequest)
		if err != nil {
			return res, fmt.Errorf("honor %q: %w", h.Key, err)
		}
		res.Honors[h.Key] = honor.ID
	}
	for _, l := range fx.Locations {
		loc, err := catalog.CreateLocation(ctx, model.CreateLocationRequest{
			EventID: res.Events[l.Event], Name: l.Name, MaxCapacity: l.MaxCapacity,
		})
		if err != nil {
			return res, fmt.Errorf("location %q: %w", l.Key, err)
		}
		res.Locations[l.Key] = loc.ID
	}
	for _, t := range fx.Timeslots {
		ts, err := catalog.CreateTimeslot(ctx, model.CreateTimeslotRequest{
			EventID: res.Events[t.Event], Date: t.Date, StartTime: t.StartTime, EndTime: t.EndTime,
		})
		if err != nil {
			return res, fmt.Errorf("timeslot %q: %w", t.Key, err)
		}
		res.Timeslots[t.Key] = ts.ID
	}
	for _, u := range fx.Users {
		req := model.CreateUserRequest{
			FirstName: u.FirstName, LastName: u.LastName, Email: u.Email,
			Role: u.Role, InvestitureLevel: u.InvestitureLevel,
		}
		if u.Event != "" {
			id := res.Events[u.Event]
			req.EventID = &id
		}
		if u.Club != "" {
			id := res.Clubs[u.Club]
			req.ClubID = &id
		}
		user, err := catalog.CreateUser(ctx, req)
		if err != nil {
			return res, fmt.Errorf("user %q: %w", u.Key, err)
		}
		if u.Inactive {
			inactive := false
			if _, err := catalog.UpdateUser(ctx, user.ID, model.UpdateUserRequest{Active: &inactive}); err != nil {
				return res, fmt.Errorf("user %q: %w", u.Key, err)
			}
		}
		res.Users[u.Key] = user.ID
	}
	for _, c := range fx.Classes {
		id, err := createClass(ctx, catalog, res, c)
		if err != nil {
			return res, fmt.Errorf("class %q: %w", c.Key, err)
		}
		res.Classes[c.Key] = id
	}
	for i, r := range fx.Registrations {
		out, err := engine.AdminAdd(ctx, res.Users[r.User], res.Classes[r.Class])
		if err != nil {
			return res, fmt.Errorf("registration %d: %w", i+1, err)
		}
		if out.Conflict != nil {
			return res, fmt.Errorf("registration %d: %s conflicts with %q", i+1, r.User, out.Conflict.ConflictClassName)
		}
		res.Registrations++
		if out.Status == model.StatusWaitlisted {
			res.Waitlisted++
		}
	}
	return res, nil
}

func createClass(ctx context.Context, catalog *service.CatalogService, res *Result, c Class) (model.ClassID, error) {
	var teacher *model.UserID
	if c.Teacher != "" {
		id := res.Users[c.Teacher]
		teacher = &id
	}
	var loc *model.LocationID
	if c.Location != "" {
		id := res.Locations[c.Location]
		loc = &id
	}
	if len(c.Timeslots) == 1 {
		class, err := catalog.CreateClass(ctx, model.CreateClassRequest{
			EventID: res.Events[c.Event], HonorID: res.Honors[c.Honor], Name: c.Name,
			TeacherID: teacher, LocationID: loc, TimeslotID: res.Timeslots[c.Timeslots[0]],
			TeacherMaxStudents: c.TeacherMaxStudents, MinimumLevel: c.MinimumLevel,
		})
		if err != nil {
			return 0, err
		}
		return class.ID, nil
	}
	slots := make([]model.TimeslotID, len(c.Timeslots))
	for i, t := range c.Timeslots {
		slots[i] = res.Timeslots[t]
	}
	group, err := catalog.CreateSessionGroup(ctx, model.CreateSessionGroupRequest{
		EventID: res.Events[c.Event], HonorID: res.Honors[c.Honor], Name: c.Name,
		TeacherID: teacher, LocationID: loc, TimeslotIDs: slots,
		TeacherMaxStudents: c.TeacherMaxStudents, MinimumLevel: c.MinimumLevel,
	})
	if err != nil {
		return 0, err
	}
	return group[0].ID, nil
}
