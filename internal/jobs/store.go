package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bartek5186/xls2jobs/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("job not found")

// Kolumny nadpisywane przy ponownym imporcie. manager_id, supplier_id i
// created_at celowo poza listą – ustawia je panel admina.
var upsertColumns = []string{
	"site_name",
	"client",
	"manager_name_raw",
	"source",
	"imported_at",
	"excel_file_name",
	"excel_sheet_name",
	"excel_row_ref",
	"updated_at",
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb, now: time.Now}
}

// UpsertBatch zapisuje całą paczkę w jednej transakcji: wszystko albo nic.
// Wiersze muszą być już przefiltrowane (FilterValid).
func (s *Store) UpsertBatch(ctx context.Context, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := s.now()
	saved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			if err := upsert(tx, r, now); err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

// UpsertEach zapisuje wiersze pojedynczo, bez transakcji obejmującej paczkę.
// Przy błędzie wcześniejsze wiersze zostają zapisane; zwraca ile się udało.
func (s *Store) UpsertEach(ctx context.Context, rows []Row) (int, error) {
	now := s.now()
	gdb := s.db.WithContext(ctx)
	for i, r := range rows {
		if err := upsert(gdb, r, now); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

func upsert(tx *gorm.DB, r Row, now time.Time) error {
	imported := now
	job := db.Job{
		JobNumber:      r.JobNumber,
		SiteName:       r.SiteName,
		Client:         optional(r.Client),
		ManagerNameRaw: r.ManagerNameRaw,
		Source:         db.SourceExcel,
		ImportedAt:     &imported,
		ExcelFileName:  r.ExcelFileName,
		ExcelSheetName: r.ExcelSheetName,
		ExcelRowRef:    r.ExcelRowRef,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_number"}}, // klucz biznesowy
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Omit(clause.Associations).Create(&job).Error; err != nil {
		return fmt.Errorf("upsert job %s: %w", r.JobNumber, err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- operacje panelu admina (źródło "app") ---

func (s *Store) CreateJob(ctx context.Context, jobNumber, siteName, client string) (*db.Job, error) {
	r := Row{JobNumber: jobNumber, SiteName: siteName, Client: client}.Normalize()
	if m := r.Missing(); len(m) > 0 {
		return nil, fmt.Errorf("brak wymaganych pól: %s", strings.Join(m, ", "))
	}
	job := &db.Job{
		JobNumber: r.JobNumber,
		SiteName:  r.SiteName,
		Client:    optional(r.Client),
		Source:    db.SourceApp,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job %s: %w", r.JobNumber, err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, jobNumber string) (*db.Job, error) {
	var job db.Job
	err := s.db.WithContext(ctx).
		Preload("Manager").
		Preload("Supplier").
		Where("job_number = ?", strings.TrimSpace(jobNumber)).
		Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type ListFilter struct {
	Source string // "", "app", "excel"
	Search string // fragment job_number / site_name / client
	Limit  int
	Offset int
}

func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]db.Job, error) {
	q := s.db.WithContext(ctx).Model(&db.Job{}).Order("job_number")
	if f.Source != "" {
		q = q.Where("source = ?", f.Source)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(f.Search)) + "%"
		q = q.Where("LOWER(job_number) LIKE ? OR LOWER(site_name) LIKE ? OR LOWER(client) LIKE ?", like, like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	var out []db.Job
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&db.Job{}).Count(&n).Error
	return n, err
}

// AssignManager ustawia (lub czyści przy nil) relację z managerem.
func (s *Store) AssignManager(ctx context.Context, jobNumber string, managerID *uint) error {
	return s.setRef(ctx, jobNumber, "manager_id", managerID)
}

func (s *Store) AssignSupplier(ctx context.Context, jobNumber string, supplierID *uint) error {
	return s.setRef(ctx, jobNumber, "supplier_id", supplierID)
}

func (s *Store) setRef(ctx context.Context, jobNumber, column string, id *uint) error {
	res := s.db.WithContext(ctx).Model(&db.Job{}).
		Where("job_number = ?", strings.TrimSpace(jobNumber)).
		Updates(map[string]any{column: id, "updated_at": s.now()})
	if res.Error != nil {
		return fmt.Errorf("set %s on %s: %w", column, jobNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteJob – tylko ręcznie z panelu; synchronizacja niczego nie usuwa.
func (s *Store) DeleteJob(ctx context.Context, jobNumber string) error {
	res := s.db.WithContext(ctx).Where("job_number = ?", strings.TrimSpace(jobNumber)).Delete(&db.Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateManager(ctx context.Context, name, email string) (*db.Manager, error) {
	m := &db.Manager{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if m.Name == "" {
		return nil, errors.New("brak nazwy managera")
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) CreateSupplier(ctx context.Context, name string) (*db.Supplier, error) {
	sp := &db.Supplier{Name: strings.TrimSpace(name)}
	if sp.Name == "" {
		return nil, errors.New("brak nazwy dostawcy")
	}
	if err := s.db.WithContext(ctx).Create(sp).Error; err != nil {
		return nil, err
	}
	return sp, nil
}
