package db

import (
	"fmt"
	"strings"
)

// Migrate tworzy/aktualizuje schemat bazy.
// Kolejność:
//  1. jeśli tabela jobs istnieje bez unikalnego indeksu -> sprawdź duplikaty job_number
//  2. AutoMigrate
func (h *Handle) Migrate() error {
	gdb := h.DB

	// 1) Tabela z panelu mogła powstać bez indeksu; z duplikatami AutoMigrate się wywali
	if gdb.Migrator().HasTable(&Job{}) && !gdb.Migrator().HasIndex(&Job{}, "idx_jobs_job_number") {
		var dups []string
		if err := gdb.Model(&Job{}).
			Select("job_number").
			Group("job_number").
			Having("COUNT(*) > 1").
			Limit(5).
			Pluck("job_number", &dups).Error; err != nil {
			return fmt.Errorf("check duplicate job_number: %w", err)
		}
		if len(dups) > 0 {
			return fmt.Errorf("jobs: zduplikowane job_number (%s) – popraw ręcznie przed migracją", strings.Join(dups, ", "))
		}
	}

	// 2) AutoMigrate – tworzy tabele i indeksy z tagów
	if err := gdb.AutoMigrate(
		&Manager{},
		&Supplier{},
		&Job{},
		&ImportFile{},
		&RowIssue{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	return nil
}
