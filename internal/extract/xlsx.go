package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX czyta wybrany (lub pierwszy) arkusz skoroszytu.
func ReadXLSX(r io.Reader, fileName string, opt Options) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileName, err)
	}
	defer func() { _ = f.Close() }()

	sheet, err := pickSheet(f, opt.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", fileName, sheet, err)
	}
	return FromRows(rows, fileName, sheet, opt)
}

func pickSheet(f *excelize.File, want string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no worksheet found")
	}
	want = strings.TrimSpace(want)
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(s, want) {
			return s, nil
		}
	}
	return "", fmt.Errorf("brak arkusza %q (dostępne: %s)", want, strings.Join(sheets, ", "))
}
