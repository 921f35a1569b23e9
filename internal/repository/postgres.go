package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thehansentribe/honorsfest/internal/model"
)

var _ Store = (*Postgres)(nil)

// Postgres is the pgx-backed Store. It uses pgx directly (no ORM).
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres store over an open pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.db.Close()
}

const uniqueViolation = "23505"

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func optional[T ~int64](v *int64) *T {
	if v == nil {
		return nil
	}
	t := T(*v)
	return &t
}

func nullable[T ~int64](v *T) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableLevel(v *model.InvestitureLevel) any {
	if v == nil {
		return nil
	}
	return int(*v)
}

func optionalLevel(v *int) *model.InvestitureLevel {
	if v == nil {
		return nil
	}
	l := model.InvestitureLevel(*v)
	return &l
}

// ─── Events ───────────────────────────────────────────────────────────────────

const eventColumns = `id, name, description, start_date, end_date, active, status, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	var status string
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.StartDate, &e.EndDate, &e.Active, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

func (p *Postgres) CreateEvent(ctx context.Context, event *model.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	err := p.db.QueryRow(ctx,
		`INSERT INTO events (name, description, start_date, end_date, active, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		event.Name, event.Description, event.StartDate, event.EndDate, event.Active, string(event.Status), event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return mapError("insert event", err)
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, id model.EventID) (*model.Event, error) {
	e, err := scanEvent(p.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, int64(id)))
	if err != nil {
		return nil, mapError("get event", err)
	}
	return e, nil
}

func (p *Postgres) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := p.db.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (p *Postgres) UpdateEvent(ctx context.Context, event *model.Event) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE events SET name = $2, description = $3, start_date = $4, end_date = $5, active = $6, status = $7
		 WHERE id = $1`,
		int64(event.ID), event.Name, event.Description, event.StartDate, event.EndDate, event.Active, string(event.Status),
	)
	if err != nil {
		return mapError("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Clubs ────────────────────────────────────────────────────────────────────

func (p *Postgres) CreateClub(ctx context.Context, club *model.Club) error {
	err := p.db.QueryRow(ctx,
		`INSERT INTO clubs (name, church, director_id) VALUES ($1, $2, $3) RETURNING id`,
		club.Name, club.Church, nullable(club.DirectorID),
	).Scan(&club.ID)
	if err != nil {
		return mapError("insert club", err)
	}
	return nil
}

func scanClub(row pgx.Row) (*model.Club, error) {
	var c model.Club
	var director *int64
	if err := row.Scan(&c.ID, &c.Name, &c.Church, &director); err != nil {
		return nil, err
	}
	c.DirectorID = optional[model.UserID](director)
	return &c, nil
}

func (p *Postgres) GetClub(ctx context.Context, id model.ClubID) (*model.Club, error) {
	c, err := scanClub(p.db.QueryRow(ctx, `SELECT id, name, church, director_id FROM clubs WHERE id = $1`, int64(id)))
	if err != nil {
		return nil, mapError("get club", err)
	}
	return c, nil
}

func (p *Postgres) AssignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO event_clubs (event_id, club_id) VALUES ($1, $2)`,
		int64(eventID), int64(clubID),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return mapError("assign club", err)
	}
	return nil
}

func (p *Postgres) UnassignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM event_clubs WHERE event_id = $1 AND club_id = $2`,
		int64(eventID), int64(clubID),
	)
	if err != nil {
		return mapError("unassign club", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListEventClubs(ctx context.Context, eventID model.EventID) ([]model.Club, error) {
	rows, err := p.db.Query(ctx,
		`SELECT c.id, c.name, c.church, c.director_id
		 FROM clubs c JOIN event_clubs ec ON ec.club_id = c.id
		 WHERE ec.event_id = $1
		 ORDER BY c.id`,
		int64(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("list event clubs: %w", err)
	}
	defer rows.Close()

	var clubs []model.Club
	for rows.Next() {
		c, err := scanClub(rows)
		if err != nil {
			return nil, fmt.Errorf("scan club: %w", err)
		}
		clubs = append(clubs, *c)
	}
	return clubs, rows.Err()
}

// ─── Users ────────────────────────────────────────────────────────────────────

const userColumns = `id, first_name, last_name, COALESCE(email, ''), role, event_id, club_id, investiture_level, active, check_in_number`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	var eventID, clubID *int64
	var level int
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &role, &eventID, &clubID, &level, &u.Active, &u.CheckInNumber); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.EventID = optional[model.EventID](eventID)
	u.ClubID = optional[model.ClubID](clubID)
	u.InvestitureLevel = model.InvestitureLevel(level)
	return &u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, user *model.User) error {
	var email any
	if user.Email != "" {
		email = user.Email
	}
	err := p.db.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, email, role, event_id, club_id, investiture_level, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		user.FirstName, user.LastName, email, string(user.Role),
		nullable(user.EventID), nullable(user.ClubID), int(user.InvestitureLevel), user.Active,
	).Scan(&user.ID)
	if err != nil {
		return mapError("insert user", err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	u, err := scanUser(p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, int64(id)))
	if err != nil {
		return nil, mapError("get user", err)
	}
	return u, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, user *model.User) error {
	var email any
	if user.Email != "" {
		email = user.Email
	}
	tag, err := p.db.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, email = $4, role = $5, event_id = $6,
		        club_id = $7, investiture_level = $8, active = $9
		 WHERE id = $1`,
		int64(user.ID), user.FirstName, user.LastName, email, string(user.Role),
		nullable(user.EventID), nullable(user.ClubID), int(user.InvestitureLevel), user.Active,
	)
	if err != nil {
		return mapError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignCheckInNumber locks the user row so two concurrent calls cannot both
// draw from the sequence.
func (p *Postgres) AssignCheckInNumber(ctx context.Context, id model.UserID) (n int64, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current *int64
	err = tx.QueryRow(ctx, `SELECT check_in_number FROM users WHERE id = $1 FOR UPDATE`, int64(id)).Scan(&current)
	if err != nil {
		return 0, mapError("lock user row", err)
	}
	if current != nil {
		err = tx.Commit(ctx)
		return *current, err
	}
	if err = tx.QueryRow(ctx,
		`UPDATE users SET check_in_number = nextval('check_in_number_seq') WHERE id = $1 RETURNING check_in_number`,
		int64(id),
	).Scan(&n); err != nil {
		return 0, mapError("assign check-in number", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return n, nil
}

// ─── Locations, timeslots, honors ─────────────────────────────────────────────

func (p *Postgres) CreateLocation(ctx context.Context, loc *model.Location) error {
	err := p.db.QueryRow(ctx,
		`INSERT INTO locations (event_id, name, max_capacity) VALUES ($1, $2, $3) RETURNING id`,
		int64(loc.EventID), loc.Name, loc.MaxCapacity,
	).Scan(&loc.ID)
	if err != nil {
		return mapError("insert location", err)
	}
	return nil
}

func (p *Postgres) GetLocation(ctx context.Context, id model.LocationID) (*model.Location, error) {
	var l model.Location
	err := p.db.QueryRow(ctx,
		`SELECT id, event_id, name, max_capacity FROM locations WHERE id = $1`, int64(id),
	).Scan(&l.ID, &l.EventID, &l.Name, &l.MaxCapacity)
	if err != nil {
		return nil, mapError("get location", err)
	}
	return &l, nil
}

func (p *Postgres) DeleteLocation(ctx context.Context, id model.LocationID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM locations WHERE id = $1`, int64(id))
	if err != nil {
		return mapError("delete location", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateTimeslot(ctx context.Context, ts *model.Timeslot) error {
	err := p.db.QueryRow(ctx,
		`INSERT INTO timeslots (event_id, date, start_time, end_time) VALUES ($1, $2, $3, $4) RETURNING id`,
		int64(ts.EventID), ts.Date, ts.StartTime, ts.EndTime,
	).Scan(&ts.ID)
	if err != nil {
		return mapError("insert timeslot", err)
	}
	return nil
}

func (p *Postgres) GetTimeslot(ctx context.Context, id model.TimeslotID) (*model.Timeslot, error) {
	var t model.Timeslot
	err := p.db.QueryRow(ctx,
		`SELECT id, event_id, date, start_time, end_time FROM timeslots WHERE id = $1`, int64(id),
	).Scan(&t.ID, &t.EventID, &t.Date, &t.StartTime, &t.EndTime)
	if err != nil {
		return nil, mapError("get timeslot", err)
	}
	return &t, nil
}

func (p *Postgres) ListTimeslots(ctx context.Context, eventID model.EventID) ([]model.Timeslot, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, event_id, date, start_time, end_time FROM timeslots
		 WHERE event_id = $1
		 ORDER BY date, start_time, id`,
		int64(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("list timeslots: %w", err)
	}
	defer rows.Close()

	var out []model.Timeslot
	for rows.Next() {
		var t model.Timeslot
		if err := rows.Scan(&t.ID, &t.EventID, &t.Date, &t.StartTime, &t.EndTime); err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateHonor(ctx context.Context, honor *model.Honor) error {
	err := p.db.QueryRow(ctx,
		`INSERT INTO honors (category, name) VALUES ($1, $2) RETURNING id`,
		honor.Category, honor.Name,
	).Scan(&honor.ID)
	if err != nil {
		return mapError("insert honor", err)
	}
	return nil
}

func (p *Postgres) GetHonor(ctx context.Context, id model.HonorID) (*model.Honor, error) {
	var h model.Honor
	err := p.db.QueryRow(ctx, `SELECT id, category, name FROM honors WHERE id = $1`, int64(id)).
		Scan(&h.ID, &h.Category, &h.Name)
	if err != nil {
		return nil, mapError("get honor", err)
	}
	return &h, nil
}

// ─── Classes ──────────────────────────────────────────────────────────────────

const classColumns = `id, event_id, honor_id, name, teacher_id, location_id, timeslot_id,
	teacher_max_students, actual_max_capacity, minimum_level, active,
	session_group_id, session_number, total_sessions, created_at`

func scanClass(row pgx.Row) (*model.Class, error) {
	var c model.Class
	var teacher, location, group *int64
	var level *int
	err := row.Scan(&c.ID, &c.EventID, &c.HonorID, &c.Name, &teacher, &location, &c.TimeslotID,
		&c.TeacherMaxStudents, &c.ActualMaxCapacity, &level, &c.Active,
		&group, &c.SessionNumber, &c.TotalSessions, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.TeacherID = optional[model.UserID](teacher)
	c.LocationID = optional[model.LocationID](location)
	c.SessionGroupID = optional[model.SessionGroupID](group)
	c.MinimumLevel = optionalLevel(level)
	return &c, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertClass(ctx context.Context, q querier, c *model.Class) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return q.QueryRow(ctx,
		`INSERT INTO classes (event_id, honor_id, name, teacher_id, location_id, timeslot_id,
		                      teacher_max_students, actual_max_capacity, minimum_level, active,
		                      session_group_id, session_number, total_sessions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id`,
		int64(c.EventID), int64(c.HonorID), c.Name, nullable(c.TeacherID), nullable(c.LocationID), int64(c.TimeslotID),
		c.TeacherMaxStudents, c.ActualMaxCapacity, nullableLevel(c.MinimumLevel), c.Active,
		nullable(c.SessionGroupID), c.SessionNumber, c.TotalSessions, c.CreatedAt,
	).Scan(&c.ID)
}

func (p *Postgres) CreateClass(ctx context.Context, class *model.Class) error {
	if err := insertClass(ctx, p.db, class); err != nil {
		return mapError("insert class", err)
	}
	return nil
}

func (p *Postgres) CreateSessionGroup(ctx context.Context, classes []*model.Class) (group model.SessionGroupID, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = tx.QueryRow(ctx, `SELECT nextval('session_group_seq')`).Scan(&group); err != nil {
		return 0, fmt.Errorf("next session group: %w", err)
	}
	for _, c := range classes {
		c.SessionGroupID = &group
		if err = insertClass(ctx, tx, c); err != nil {
			return 0, mapError("insert session class", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return group, nil
}

func (p *Postgres) GetClass(ctx context.Context, id model.ClassID) (*model.Class, error) {
	c, err := scanClass(p.db.QueryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, int64(id)))
	if err != nil {
		return nil, mapError("get class", err)
	}
	return c, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateClass(ctx context.Context, q execer, c *model.Class) error {
	tag, err := q.Exec(ctx,
		`UPDATE classes SET name = $2, teacher_id = $3, location_id = $4, teacher_max_students = $5,
		        actual_max_capacity = $6, minimum_level = $7, active = $8
		 WHERE id = $1`,
		int64(c.ID), c.Name, nullable(c.TeacherID), nullable(c.LocationID), c.TeacherMaxStudents,
		c.ActualMaxCapacity, nullableLevel(c.MinimumLevel), c.Active,
	)
	if err != nil {
		return mapError("update class", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update class %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) UpdateClass(ctx context.Context, c *model.Class) error {
	return updateClass(ctx, p.db, c)
}

func (p *Postgres) ListClasses(ctx context.Context, f ClassFilter) ([]model.Class, error) {
	var where []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.EventID != 0 {
		add("event_id = $%d", int64(f.EventID))
	}
	if f.LocationID != 0 {
		add("location_id = $%d", int64(f.LocationID))
	}
	if f.SessionGroupID != 0 {
		add("session_group_id = $%d", int64(f.SessionGroupID))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	query := `SELECT ` + classColumns + ` FROM classes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var out []model.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ─── Registrations ────────────────────────────────────────────────────────────

const registrationColumns = `id, user_id, class_id, status, waitlist_order, attended, completed, created_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	var status string
	if err := row.Scan(&r.ID, &r.UserID, &r.ClassID, &status, &r.WaitlistOrder, &r.Attended, &r.Completed, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RegistrationStatus(status)
	return &r, nil
}

func (p *Postgres) NewRegistrationID(ctx context.Context) (model.RegistrationID, error) {
	var id model.RegistrationID
	if err := p.db.QueryRow(ctx, `SELECT nextval('registrations_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next registration id: %w", err)
	}
	return id, nil
}

func (p *Postgres) GetRegistration(ctx context.Context, id model.RegistrationID) (*model.Registration, error) {
	r, err := scanRegistration(p.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, int64(id)))
	if err != nil {
		return nil, mapError("get registration", err)
	}
	return r, nil
}

func (p *Postgres) ListRegistrations(ctx context.Context, f RegistrationFilter) ([]model.Registration, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE ($1::bigint = 0 OR class_id = $1) AND ($2::bigint = 0 OR user_id = $2)
		 ORDER BY id`,
		int64(f.ClassID), int64(f.UserID),
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CommitSeats writes one seat transaction. Every statement runs in a single
// database transaction so a failure leaves no half-admitted state.
func (p *Postgres) CommitSeats(ctx context.Context, batch SeatBatch) (err error) {
	if batch.Empty() {
		return nil
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for i := range batch.Classes {
		if err = updateClass(ctx, tx, &batch.Classes[i]); err != nil {
			return err
		}
	}

	for _, ch := range batch.Changes {
		r := ch.Registration
		var tag pgconn.CommandTag
		switch ch.Op {
		case model.SeatInsert:
			tag, err = tx.Exec(ctx,
				`INSERT INTO registrations (id, user_id, class_id, status, waitlist_order, attended, completed, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				int64(r.ID), int64(r.UserID), int64(r.ClassID), string(r.Status), r.WaitlistOrder,
				r.Attended, r.Completed, r.CreatedAt,
			)
		case model.SeatUpdate:
			tag, err = tx.Exec(ctx,
				`UPDATE registrations SET status = $2, waitlist_order = $3 WHERE id = $1`,
				int64(r.ID), string(r.Status), r.WaitlistOrder,
			)
		case model.SeatDelete:
			tag, err = tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, int64(r.ID))
		default:
			err = fmt.Errorf("unknown seat op %q", ch.Op)
		}
		if err != nil {
			return mapError(fmt.Sprintf("%s registration %d", ch.Op, r.ID), err)
		}
		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("%s registration %d: %w", ch.Op, r.ID, ErrNotFound)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) SetAttendance(ctx context.Context, id model.RegistrationID, attended, completed bool) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE registrations SET attended = $2, completed = $3 WHERE id = $1`,
		int64(id), attended, completed,
	)
	if err != nil {
		return mapError("set attendance", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
