package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fleet-status-backend/internal/model"
	"fleet-status-backend/internal/opstatus"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB opens a private in-memory database with every table migrated.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Fleet{}, &model.Machine{}, &model.StatusOpen{}, &model.StatusInterval{}, &model.PushSubscription{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

var openColumns = []string{
	"machine_id", "status", "started_at", "observed_at", "factor",
	"group_name", "subgroup_name", "loss_value", "revenue_value",
}

func TestGormStore_UpdateStatus(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	started := now.Add(-6 * time.Hour)
	changed := now.Add(-30 * time.Minute)

	testCases := []struct {
		name                string
		apiItems            []ApiItem
		mockExpectations    func(mock sqlmock.Sqlmock)
		expectedTransitions []Transition
	}{
		{
			name: "Machine enters downtime at the upstream change time, should notify",
			apiItems: []ApiItem{
				{ID: "m-1", Name: "PSV Atlântico", StatusParsed: opstatus.Downtime, ChangedAtParsed: &changed},
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-1", "operating", started, started, 0.0, "", "", 0.0, 0.0))

				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_intervals"`)).
					WithArgs("m-1", "operating", timeArg{started}, timeArg{changed}, Any{}, Any{}, Any{}, Any{}, Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "status_opens"`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: []Transition{
				{MachineID: "m-1", DisplayName: "PSV Atlântico", From: opstatus.Operating, To: opstatus.Downtime, At: changed},
			},
		},
		{
			name: "Change without upstream time closes the interval now",
			apiItems: []ApiItem{
				{ID: "m-2", StatusParsed: opstatus.ScheduledStoppage},
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-2", "operating", started, started, 0.0, "", "", 0.0, 0.0))

				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_intervals"`)).
					WithArgs("m-2", "operating", timeArg{started}, timeArg{now}, Any{}, Any{}, Any{}, Any{}, Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "status_opens"`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name: "Factor change within downtime-partial archives but does not notify",
			apiItems: []ApiItem{
				{ID: "m-3", StatusParsed: opstatus.DowntimePartial, Factor: 50},
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-3", "downtime-partial", started, started, 25.0, "", "", 0.0, 0.0))

				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_intervals"`)).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "status_opens"`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name: "No status change, should do nothing and not notify",
			apiItems: []ApiItem{
				{ID: "m-4", StatusParsed: opstatus.Operating, Group: "Casco"},
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-4", "operating", started, started, 0.0, "Casco", "", 0.0, 0.0))
				mock.ExpectBegin()
				// No database writes expected
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name: "Only financial values change, should update in place",
			apiItems: []ApiItem{
				{ID: "m-5", StatusParsed: opstatus.Downtime, LossValue: 1500},
			},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-5", "downtime", started, started, 0.0, "", "", 1000.0, 0.0))
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`UPDATE "status_opens" SET`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name:     "New machine appears in downtime, should create record and not notify",
			apiItems: []ApiItem{{ID: "m-6", StatusParsed: opstatus.Downtime}},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns))

				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "status_opens"`)).
					WithArgs("m-6", "downtime", timeArg{now}, timeArg{now}, Any{}, Any{}, Any{}, Any{}, Any{}).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name:     "Unknown status keeps the open record",
			apiItems: []ApiItem{{ID: "m-7", Status: "manutencao"}},
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-7", "operating", started, started, 0.0, "", "", 0.0, 0.0))
				mock.ExpectBegin()
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
		{
			name:     "Machine disappears from API, should archive and not notify",
			apiItems: []ApiItem{}, // m-8 is gone
			mockExpectations: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
					WillReturnRows(sqlmock.NewRows(openColumns).
						AddRow("m-8", "downtime", started, started, 0.0, "", "", 0.0, 0.0))

				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "status_intervals"`)).
					WithArgs("m-8", "downtime", timeArg{started}, timeArg{now}, Any{}, Any{}, Any{}, Any{}, Any{}).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
				mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "status_opens"`)).
					WithArgs("m-8").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			expectedTransitions: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gormDB, mock := newTestDB(t)
			store := NewGormStore(gormDB)

			tc.mockExpectations(mock)

			transitions, err := store.UpdateStatus(context.Background(), now, tc.apiItems)

			assert.NoError(t, err)
			assert.Equal(t, tc.expectedTransitions, transitions)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_UpdateStatus_FetchError(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_opens"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := store.UpdateStatus(context.Background(), time.Now(), nil)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PruneIntervals(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)
	before := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "status_intervals" WHERE ended_at < $1`)).
		WithArgs(timeArg{before}).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := store.PruneIntervals(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetMachine_NotFound(t *testing.T) {
	gormDB, mock := newTestDB(t)
	store := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "machines" WHERE id = $1`)).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetMachine(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpsertAndList(t *testing.T) {
	db := newSQLiteDB(t)
	store := NewGormStore(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	items := []ApiItem{
		{ID: "m-1", Name: "PSV Atlântico", Fleet: "Apoio", StatusParsed: opstatus.Operating},
		{ID: "m-2", Name: "PSV Boreal", Fleet: "Apoio", StatusParsed: opstatus.Downtime},
		{ID: "m-3", Name: "Sonda 7", StatusParsed: opstatus.Dockage},
	}
	require.NoError(t, store.UpsertFleetsAndMachines(ctx, items))
	_, err := store.UpdateStatus(ctx, now, items)
	require.NoError(t, err)

	// A second upsert with identical metadata is a no-op.
	require.NoError(t, store.UpsertFleetsAndMachines(ctx, items))

	fleets, err := store.ListFleets(ctx)
	require.NoError(t, err)
	require.Len(t, fleets, 2)
	assert.Equal(t, "Apoio", fleets[0].Name)
	assert.Equal(t, int64(2), fleets[0].TotalMachines)
	assert.Equal(t, int64(1), fleets[0].InDowntime)
	assert.Equal(t, DefaultFleet, fleets[1].Name)
	assert.Equal(t, int64(1), fleets[1].TotalMachines)

	machines, err := store.ListMachines(ctx, fleets[0].ID)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	assert.Equal(t, "m-1", machines[0].ID)
	assert.Equal(t, opstatus.Operating, machines[0].Status)
	assert.Equal(t, "Operação", machines[0].Label)
	assert.Equal(t, opstatus.Downtime, machines[1].Status)

	empty, err := store.ListMachines(ctx, 9999)
	require.NoError(t, err)
	assert.Empty(t, empty)

	m, err := store.GetMachine(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, "PSV Boreal", m.DisplayName)
}

func TestGormStore_ListIntervalsAndMachinesAt(t *testing.T) {
	db := newSQLiteDB(t)
	store := NewGormStore(db)
	ctx := context.Background()

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(30 * time.Hour)
	t2 := t1.Add(10 * time.Hour)

	item := ApiItem{ID: "m-1", Name: "PSV Atlântico", Fleet: "Apoio"}
	require.NoError(t, store.UpsertFleetsAndMachines(ctx, []ApiItem{item}))

	item.StatusParsed = opstatus.Operating
	_, err := store.UpdateStatus(ctx, t0, []ApiItem{item})
	require.NoError(t, err)

	item.StatusParsed, item.LossValue = opstatus.Downtime, 2500
	transitions, err := store.UpdateStatus(ctx, t1, []ApiItem{item})
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, opstatus.Downtime, transitions[0].To)

	item.StatusParsed, item.LossValue = opstatus.Operating, 0
	_, err = store.UpdateStatus(ctx, t2, []ApiItem{item})
	require.NoError(t, err)

	intervals, err := store.ListIntervals(ctx, "m-1", nil)
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	assert.Equal(t, opstatus.Operating, intervals[0].Status)
	assert.True(t, intervals[0].StartedAt.Equal(t0))
	assert.True(t, intervals[0].EndedAt.Equal(t1))
	assert.Equal(t, opstatus.Downtime, intervals[1].Status)
	assert.Equal(t, 2500.0, intervals[1].LossValue)
	assert.True(t, intervals[1].EndedAt.Equal(t2))
	assert.Nil(t, intervals[2].EndedAt, "the open record is an ongoing interval")
	assert.True(t, intervals[2].StartedAt.Equal(t2))

	from := t1.Add(time.Hour)
	recent, err := store.ListIntervals(ctx, "m-1", &from)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, opstatus.Downtime, recent[0].Status)

	fleets, err := store.ListFleets(ctx)
	require.NoError(t, err)
	require.Len(t, fleets, 1)

	at, err := store.MachinesAt(ctx, fleets[0].ID, t1.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, opstatus.Downtime, at[0].Status)

	at, err = store.MachinesAt(ctx, fleets[0].ID, t2.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, opstatus.Operating, at[0].Status)

	at, err = store.MachinesAt(ctx, fleets[0].ID, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, at)

	pruned, err := store.PruneIntervals(ctx, t1.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

// timeArg matches a time argument by instant.
type timeArg struct{ t time.Time }

func (a timeArg) Match(v driver.Value) bool {
	got, ok := v.(time.Time)
	return ok && got.Equal(a.t)
}

func TestGormStore_UpdateStatus_DuplicateFeedEntries(t *testing.T) {
	store := NewGormStore(newSQLiteDB(t))
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	items := []ApiItem{
		{ID: "m-1", StatusParsed: opstatus.Operating},
		{ID: "m-1", StatusParsed: opstatus.Downtime},
	}
	transitions, err := store.UpdateStatus(ctx, now, items)
	require.NoError(t, err)
	assert.Empty(t, transitions)

	var open []model.StatusOpen
	require.NoError(t, store.DB().Find(&open).Error)
	require.Len(t, open, 1)
	assert.Equal(t, opstatus.Operating, open[0].Status, "the first entry wins")
}
