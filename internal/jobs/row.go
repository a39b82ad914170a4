package jobs

import "strings"

// Row – kanoniczny kształt wiersza z arkusza, a zarazem element body
// POST /api/sync/jobs.
type Row struct {
	JobNumber      string `json:"jobNumber"`
	SiteName       string `json:"siteName"`
	Client         string `json:"client,omitempty"`
	ManagerNameRaw string `json:"managerNameRaw,omitempty"`
	ExcelFileName  string `json:"excelFileName,omitempty"`
	ExcelSheetName string `json:"excelSheetName,omitempty"`
	ExcelRowRef    string `json:"excelRowRef,omitempty"`
}

// Normalize przycina wszystkie pola.
func (r Row) Normalize() Row {
	return Row{
		JobNumber:      strings.TrimSpace(r.JobNumber),
		SiteName:       strings.TrimSpace(r.SiteName),
		Client:         strings.TrimSpace(r.Client),
		ManagerNameRaw: strings.TrimSpace(r.ManagerNameRaw),
		ExcelFileName:  strings.TrimSpace(r.ExcelFileName),
		ExcelSheetName: strings.TrimSpace(r.ExcelSheetName),
		ExcelRowRef:    strings.TrimSpace(r.ExcelRowRef),
	}
}

// Missing zwraca nazwy pustych pól wymaganych (jobNumber, siteName).
func (r Row) Missing() []string {
	var out []string
	if strings.TrimSpace(r.JobNumber) == "" {
		out = append(out, "jobNumber")
	}
	if strings.TrimSpace(r.SiteName) == "" {
		out = append(out, "siteName")
	}
	return out
}

func (r Row) Valid() bool { return len(r.Missing()) == 0 }

// FilterValid normalizuje wiersze i odrzuca te bez pól wymaganych.
func FilterValid(rows []Row) (valid []Row, skipped int) {
	valid = make([]Row, 0, len(rows))
	for _, r := range rows {
		r = r.Normalize()
		if !r.Valid() {
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	return valid, skipped
}
