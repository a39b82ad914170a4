// internal/db/models.go
package db

import "time"

// Źródło rekordu Job
const (
	SourceApp   = "app"   // wpisany w panelu admina
	SourceExcel = "excel" // zaimportowany z arkusza
)

// Statusy ImportFile
const (
	ImportPending = 0
	ImportDone    = 1
	ImportError   = 2
)

// jobs
type Job struct {
	ID        uint   `gorm:"primaryKey"`
	JobNumber string `gorm:"size:64;not null;uniqueIndex"`
	SiteName  string `gorm:"not null"`
	Client    *string

	// proweniencja
	Source         string `gorm:"size:16;index;default:app"`
	ImportedAt     *time.Time
	ExcelFileName  string
	ExcelSheetName string
	ExcelRowRef    string

	// tekst z arkusza; ManagerID ustawia wyłącznie panel admina
	ManagerNameRaw string
	ManagerID      *uint `gorm:"index"`
	Manager        *Manager
	SupplierID     *uint `gorm:"index"`
	Supplier       *Supplier

	CreatedAt time.Time
	UpdatedAt time.Time
}

// managers
type Manager struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"index"`
	CreatedAt time.Time
}

// suppliers
type Supplier struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex"`
	CreatedAt time.Time
}

// import_files – jeden wiersz na przebieg synchronizacji
type ImportFile struct {
	ImportID    uint   `gorm:"primaryKey;column:import_id"`
	RunID       string `gorm:"size:36;uniqueIndex"`
	Filename    string `gorm:"index"`
	SheetName   string
	SHA256      string `gorm:"index"`
	SizeBytes   int64
	Trigger     string // timer / watch / manual / cli
	Mode        string // direct / remote
	Status      int    `gorm:"index"` // 0=pending, 1=done, 2=error
	RowsRead    int
	RowsSaved   int
	RowsSkipped int
	LastError   string    `gorm:"type:text"`
	ReceivedAt  time.Time `gorm:"autoCreateTime"`
	ProcessedAt *time.Time
}

// row_issues – odrzucone wiersze arkusza
type RowIssue struct {
	ID        uint   `gorm:"primaryKey"`
	ImportID  uint   `gorm:"uniqueIndex:uniq_row_issue"`
	RowRef    string `gorm:"size:32;uniqueIndex:uniq_row_issue"`
	Field     string `gorm:"size:32;uniqueIndex:uniq_row_issue"`
	Message   string `gorm:"type:text"`
	CreatedAt time.Time
}
