package extract

import "strings"

// Pola logiczne wiersza
const (
	FieldJobNumber = "jobNumber"
	FieldSiteName  = "siteName"
	FieldClient    = "client"
	FieldManager   = "managerNameRaw"
)

// DefaultAliases – kolejność ma znaczenie: pierwszy pasujący nagłówek wygrywa.
var DefaultAliases = map[string][]string{
	FieldJobNumber: {"Job Number", "JobNumber", "JOB NUMBER", "Job No", "Job #", "Job"},
	FieldSiteName:  {"Site Name", "SiteName", "Job Name", "Site", "Address"},
	FieldClient:    {"Client", "Customer", "Builder"},
	FieldManager:   {"Manager", "Site Manager", "Supervisor", "PM"},
}

var fieldOrder = []string{FieldJobNumber, FieldSiteName, FieldClient, FieldManager}

// mergeAliases – aliasy z configu zastępują domyślne dla danego pola.
func mergeAliases(custom map[string][]string) map[string][]string {
	out := make(map[string][]string, len(DefaultAliases))
	for k, v := range DefaultAliases {
		out[k] = v
	}
	for k, v := range custom {
		if len(v) > 0 {
			out[k] = v
		}
	}
	return out
}

// normalizeHeader: małe litery, bez skrajnych spacji, pojedyncze spacje w środku.
func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// columnMap zwraca pole -> indeks kolumny; brakujące pola mają -1.
func columnMap(header []string, aliases map[string][]string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		if _, dup := idx[n]; !dup {
			idx[n] = i
		}
	}

	out := make(map[string]int, len(fieldOrder))
	for _, f := range fieldOrder {
		out[f] = -1
		for _, a := range aliases[f] {
			if i, ok := idx[normalizeHeader(a)]; ok {
				out[f] = i
				break
			}
		}
	}
	return out
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
