package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bartek5186/xls2jobs/internal/db"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	h, err := db.OpenAt(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	t.Cleanup(func() { _ = h.Close() })
	return NewStore(h.DB), h.DB
}

// failOn sprawia, że INSERT joba o danym numerze zwraca błąd.
func failOn(t *testing.T, gdb *gorm.DB, jobNumber string) {
	t.Helper()
	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("test:fail_on", func(tx *gorm.DB) {
		if j, ok := tx.Statement.Dest.(*db.Job); ok && j.JobNumber == jobNumber {
			_ = tx.AddError(errors.New("boom"))
		}
	}))
}

func rows() []Row {
	return []Row{
		{JobNumber: "J-100", SiteName: "12 Oak St", Client: "Acme Builders", ManagerNameRaw: "Tom", ExcelFileName: "jobs.xlsx", ExcelSheetName: "Jobs", ExcelRowRef: "2"},
		{JobNumber: "J-101", SiteName: "7 Elm Rd", ExcelFileName: "jobs.xlsx", ExcelSheetName: "Jobs", ExcelRowRef: "3"},
	}
}

func TestUpsertBatch_InsertsWithProvenance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertBatch(ctx, rows())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	j, err := s.GetJob(ctx, "J-100")
	require.NoError(t, err)
	assert.Equal(t, "12 Oak St", j.SiteName)
	require.NotNil(t, j.Client)
	assert.Equal(t, "Acme Builders", *j.Client)
	assert.Equal(t, db.SourceExcel, j.Source)
	assert.NotNil(t, j.ImportedAt)
	assert.Equal(t, "jobs.xlsx", j.ExcelFileName)
	assert.Equal(t, "Jobs", j.ExcelSheetName)
	assert.Equal(t, "2", j.ExcelRowRef)
	assert.Equal(t, "Tom", j.ManagerNameRaw)
	assert.Nil(t, j.ManagerID)

	j2, err := s.GetJob(ctx, "J-101")
	require.NoError(t, err)
	assert.Nil(t, j2.Client)
}

func TestUpsertBatch_IdempotentRerun(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, rows())
	require.NoError(t, err)
	first, err := s.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = s.UpsertBatch(ctx, rows())
	require.NoError(t, err)
	second, err := s.ListJobs(ctx, ListFilter{})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		a, b := first[i], second[i]
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, a.JobNumber, b.JobNumber)
		assert.Equal(t, a.SiteName, b.SiteName)
		assert.Equal(t, a.Client, b.Client)
		assert.Equal(t, a.ManagerNameRaw, b.ManagerNameRaw)
		assert.Equal(t, a.ExcelRowRef, b.ExcelRowRef)
		assert.True(t, a.CreatedAt.Equal(b.CreatedAt))
		assert.True(t, b.ImportedAt.After(*a.ImportedAt))
	}
}

func TestUpsertBatch_KeepsManagerAndSupplier(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, rows())
	require.NoError(t, err)

	m, err := s.CreateManager(ctx, "Tom Nowak", "tom@example.com")
	require.NoError(t, err)
	sp, err := s.CreateSupplier(ctx, "Dulux Trade")
	require.NoError(t, err)
	require.NoError(t, s.AssignManager(ctx, "J-100", &m.ID))
	require.NoError(t, s.AssignSupplier(ctx, "J-100", &sp.ID))

	changed := rows()
	changed[0].SiteName = "12 Oak Street"
	changed[0].ManagerNameRaw = "Someone Else"
	changed[0].Client = ""
	_, err = s.UpsertBatch(ctx, changed)
	require.NoError(t, err)

	j, err := s.GetJob(ctx, "J-100")
	require.NoError(t, err)
	require.NotNil(t, j.ManagerID)
	assert.Equal(t, m.ID, *j.ManagerID)
	require.NotNil(t, j.SupplierID)
	assert.Equal(t, sp.ID, *j.SupplierID)
	require.NotNil(t, j.Manager)
	assert.Equal(t, "Tom Nowak", j.Manager.Name)

	assert.Equal(t, "12 Oak Street", j.SiteName)
	assert.Equal(t, "Someone Else", j.ManagerNameRaw)
	assert.Nil(t, j.Client)
}

func TestUpsertBatch_AppJobBecomesImported(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateJob(ctx, "J-100", "Oak", "")
	require.NoError(t, err)
	assert.Equal(t, db.SourceApp, created.Source)
	assert.Nil(t, created.ImportedAt)

	_, err = s.UpsertBatch(ctx, rows()[:1])
	require.NoError(t, err)

	j, err := s.GetJob(ctx, "J-100")
	require.NoError(t, err)
	assert.Equal(t, created.ID, j.ID)
	assert.Equal(t, db.SourceExcel, j.Source)
	assert.Equal(t, "12 Oak St", j.SiteName)
}

func TestUpsertBatch_DuplicateInBatchLastWins(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	batch := []Row{
		{JobNumber: "J-1", SiteName: "first", ExcelRowRef: "2"},
		{JobNumber: "J-1", SiteName: "second", ExcelRowRef: "9"},
	}
	_, err := s.UpsertBatch(ctx, batch)
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	j, err := s.GetJob(ctx, "J-1")
	require.NoError(t, err)
	assert.Equal(t, "second", j.SiteName)
	assert.Equal(t, "9", j.ExcelRowRef)
}

func TestUpsertBatch_RollsBackWholeBatch(t *testing.T) {
	s, gdb := newTestStore(t)
	ctx := context.Background()
	failOn(t, gdb, "J-101")

	n, err := s.UpsertBatch(ctx, rows())
	require.Error(t, err)
	assert.Zero(t, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUpsertEach_PartialFailureKeepsEarlierRows(t *testing.T) {
	s, gdb := newTestStore(t)
	ctx := context.Background()
	failOn(t, gdb, "J-101")

	batch := append(rows(), Row{JobNumber: "J-102", SiteName: "never"})
	n, err := s.UpsertEach(ctx, batch)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetJob(ctx, "J-100")
	require.NoError(t, err)
	_, err = s.GetJob(ctx, "J-102")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdminOperations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateJob(ctx, "  ", "Oak", "")
	require.Error(t, err)

	_, err = s.CreateJob(ctx, "A-1", "Paint shop fit-out", "Acme")
	require.NoError(t, err)
	_, err = s.UpsertBatch(ctx, rows())
	require.NoError(t, err)

	app, err := s.ListJobs(ctx, ListFilter{Source: db.SourceApp})
	require.NoError(t, err)
	require.Len(t, app, 1)
	assert.Equal(t, "A-1", app[0].JobNumber)

	found, err := s.ListJobs(ctx, ListFilter{Search: "elm"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "J-101", found[0].JobNumber)

	byClient, err := s.ListJobs(ctx, ListFilter{Search: "BUILDERS"})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, "J-100", byClient[0].JobNumber)

	page, err := s.ListJobs(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "J-100", page[0].JobNumber)

	require.ErrorIs(t, s.AssignManager(ctx, "NOPE", nil), ErrNotFound)
	require.NoError(t, s.DeleteJob(ctx, "A-1"))
	require.ErrorIs(t, s.DeleteJob(ctx, "A-1"), ErrNotFound)
	_, err = s.GetJob(ctx, "A-1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreateManager(ctx, "", "")
	require.Error(t, err)
	_, err = s.CreateSupplier(ctx, " ")
	require.Error(t, err)
}

func TestFilterValid(t *testing.T) {
	valid, skipped := FilterValid([]Row{
		{JobNumber: " J-1 ", SiteName: " Oak "},
		{JobNumber: "J-2"},
		{SiteName: "Elm"},
		{JobNumber: "   ", SiteName: "x"},
	})
	require.Len(t, valid, 1)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, Row{JobNumber: "J-1", SiteName: "Oak"}, valid[0])

	assert.Equal(t, []string{"jobNumber", "siteName"}, Row{}.Missing())
}
