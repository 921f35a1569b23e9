package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
	"github.com/thehansentribe/honorsfest/internal/service"
)

func TestLoadAndApply(t *testing.T) {
	fx, err := LoadFile("testdata/camporee.yaml")
	require.NoError(t, err)
	require.Len(t, fx.Users, 4)
	assert.Equal(t, model.LevelCompanion, fx.Users[1].InvestitureLevel)
	require.NotNil(t, fx.Classes[1].MinimumLevel)
	assert.Equal(t, model.LevelFriend, *fx.Classes[1].MinimumLevel)

	ctx := context.Background()
	store := repository.NewMemory()
	engine := service.NewEngine(store)
	catalog := service.NewCatalogService(store, engine)

	res, err := Apply(ctx, catalog, engine, fx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Registrations)
	assert.Equal(t, 1, res.Waitlisted)

	counts, err := engine.Counts(ctx, res.Classes["knots"])
	require.NoError(t, err)
	assert.Equal(t, model.Counts{ClassID: res.Classes["knots"], Enrolled: 2, Waitlisted: 1, Capacity: 2}, counts)

	knots, err := catalog.GetClass(ctx, res.Classes["knots"])
	require.NoError(t, err)
	assert.Equal(t, "Knot Tying", knots.Name)

	schedule, err := engine.Schedule(ctx, res.Users["ana"])
	require.NoError(t, err)
	assert.Len(t, schedule, 3)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": `
events:
  - key: spring
    name: Spring
    colour: green
`,
		"duplicate key": `
events:
  - {key: spring, name: A}
  - {key: spring, name: B}
`,
		"missing key": `
honors:
  - {category: Nature, name: Birds}
`,
		"dangling reference": `
events:
  - {key: spring, name: Spring}
locations:
  - {key: hall, event: fall, name: Hall, maxCapacity: 10}
`,
		"class without timeslot": `
events:
  - {key: spring, name: Spring}
honors:
  - {key: birds, category: Nature, name: Birds}
classes:
  - {key: birds, event: spring, honor: birds, teacherMaxStudents: 5}
`,
		"bad level": `
users:
  - {key: ana, firstName: Ana, lastName: A, investitureLevel: Wizard}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyStopsOnConflict(t *testing.T) {
	doc := `
events:
  - {key: spring, name: Spring, startDate: "2026-04-10", endDate: "2026-04-12", active: true, live: true}
clubs:
  - {key: trail, name: Trailblazers, events: [spring]}
honors:
  - {key: knots, category: Outdoor, name: Knots}
  - {key: birds, category: Nature, name: Birds}
locations:
  - {key: hall, event: spring, name: Hall, maxCapacity: 10}
timeslots:
  - {key: am, event: spring, date: "2026-04-11", startTime: "09:00", endTime: "09:50"}
users:
  - {key: ana, firstName: Ana, lastName: Alvarez, event: spring, club: trail}
classes:
  - {key: knots, event: spring, honor: knots, location: hall, timeslots: [am], teacherMaxStudents: 5}
  - {key: birds, event: spring, honor: birds, location: hall, timeslots: [am], teacherMaxStudents: 5}
registrations:
  - {user: ana, class: knots}
  - {user: ana, class: birds}
`
	fx, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	store := repository.NewMemory()
	engine := service.NewEngine(store)
	res, err := Apply(context.Background(), service.NewCatalogService(store, engine), engine, fx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registration 2")
	assert.Equal(t, 1, res.Registrations)
}
