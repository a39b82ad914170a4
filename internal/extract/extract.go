package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bartek5186/xls2jobs/internal/jobs"
)

var ErrMissingColumn = errors.New("missing required column")

type Options struct {
	Sheet     string              // puste -> pierwszy arkusz
	HeaderRow int                 // 1-based, domyślnie 1
	Charset   string              // tylko csv, np. windows-1250
	Aliases   map[string][]string // nadpisania DefaultAliases
}

// Issue – odrzucony wiersz (brak pola wymaganego).
type Issue struct {
	RowRef  string `json:"rowRef"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	FileName  string     `json:"file"`
	SheetName string     `json:"sheet"`
	Rows      []jobs.Row `json:"rows"`
	Issues    []Issue    `json:"issues,omitempty"`
	Read      int        `json:"read"` // niepuste wiersze danych
	Skipped   int        `json:"skipped"`
}

// ReadFile czyta arkusz z dysku; format po rozszerzeniu (.xlsx/.xlsm/.csv).
func ReadFile(path string, opt Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return ReadCSV(f, name, opt)
	case ".xlsx", ".xlsm", ".xltx":
		return ReadXLSX(f, name, opt)
	default:
		return nil, fmt.Errorf("nieobsługiwany format pliku %q", name)
	}
}

// FromRows mapuje surowe wiersze arkusza (nagłówek + dane) na jobs.Row.
// Numer wiersza = pozycja w rows (1-based), jak w arkuszu.
func FromRows(rows [][]string, fileName, sheetName string, opt Options) (*Result, error) {
	return fromRows(rows, nil, fileName, sheetName, opt)
}

// fromRows: lines[i] to numer wiersza pliku dla rows[i]; nil -> pozycja w rows.
func fromRows(rows [][]string, lines []int, fileName, sheetName string, opt Options) (*Result, error) {
	headerRow := opt.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return nil, fmt.Errorf("%s/%s: brak wiersza nagłówka %d", fileName, sheetName, headerRow)
	}

	cols := columnMap(rows[headerRow-1], mergeAliases(opt.Aliases))
	var missing []string
	for _, f := range []string{FieldJobNumber, FieldSiteName} {
		if cols[f] < 0 {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s/%s: %w: %s", fileName, sheetName, ErrMissingColumn, strings.Join(missing, ", "))
	}

	res := &Result{FileName: fileName, SheetName: sheetName}
	for i, row := range rows[headerRow:] {
		if blank(row) {
			continue
		}
		res.Read++

		// numer wiersza w arkuszu: nagłówek + 1 + pozycja
		n := headerRow + 1 + i
		if lines != nil {
			n = lines[headerRow+i]
		}
		ref := strconv.Itoa(n)
		r := jobs.Row{
			JobNumber:      cellValue(row, cols[FieldJobNumber]),
			SiteName:       cellValue(row, cols[FieldSiteName]),
			Client:         cellValue(row, cols[FieldClient]),
			ManagerNameRaw: cellValue(row, cols[FieldManager]),
			ExcelFileName:  fileName,
			ExcelSheetName: sheetName,
			ExcelRowRef:    ref,
		}
		if m := r.Missing(); len(m) > 0 {
			res.Skipped++
			for _, f := range m {
				res.Issues = append(res.Issues, Issue{
					RowRef:  ref,
					Field:   f,
					Message: fmt.Sprintf("wiersz %s: brak wartości %s", ref, f),
				})
			}
			continue
		}
		res.Rows = append(res.Rows, r)
	}
	return res, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
