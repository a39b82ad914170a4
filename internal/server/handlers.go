package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bartek5186/xls2jobs/internal/db"
	"github.com/bartek5186/xls2jobs/internal/jobs"
	"github.com/bartek5186/xls2jobs/internal/metrics"
	"github.com/bartek5186/xls2jobs/internal/transport"
)

// POST /api/sync/jobs
func (s *Server) syncJobs(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Jobs *[]jobs.Row `json:"jobs"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Jobs == nil {
		metrics.EndpointRequests.WithLabelValues("400").Inc()
		writeJSON(w, http.StatusBadRequest, transport.Response{Success: false, Error: "invalid body: expected {\"jobs\": [...]}"})
		return
	}

	all := *in.Jobs
	valid, skipped := jobs.FilterValid(all)

	// wiersze zapisywane pojedynczo: błąd w połowie zostawia wcześniejsze zapisane
	saved, err := s.store.UpsertEach(r.Context(), valid)
	metrics.EndpointRows.Add(float64(saved))
	if err != nil {
		s.log.Error().Err(err).Int("count", len(all)).Int("saved", saved).Msg("sync endpoint: zapis nieudany")
		metrics.EndpointRequests.WithLabelValues("500").Inc()
		writeJSON(w, http.StatusInternalServerError, transport.Response{
			Success: false,
			Count:   len(all),
			Saved:   saved,
			Skipped: skipped,
			Error:   err.Error(),
		})
		return
	}

	s.log.Info().Int("count", len(all)).Int("saved", saved).Int("skipped", skipped).Msg("sync endpoint: OK")
	metrics.EndpointRequests.WithLabelValues("200").Inc()
	writeJSON(w, http.StatusOK, transport.Response{Success: true, Count: len(all), Saved: saved, Skipped: skipped})
}

type jobView struct {
	ID             uint       `json:"id"`
	JobNumber      string     `json:"jobNumber"`
	SiteName       string     `json:"siteName"`
	Client         *string    `json:"client"`
	Source         string     `json:"source"`
	ImportedAt     *time.Time `json:"importedAt"`
	ExcelFileName  string     `json:"excelFileName,omitempty"`
	ExcelSheetName string     `json:"excelSheetName,omitempty"`
	ExcelRowRef    string     `json:"excelRowRef,omitempty"`
	ManagerNameRaw string     `json:"managerNameRaw,omitempty"`
	ManagerID      *uint      `json:"managerId"`
	SupplierID     *uint      `json:"supplierId"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func toView(j db.Job) jobView {
	return jobView{
		ID:             j.ID,
		JobNumber:      j.JobNumber,
		SiteName:       j.SiteName,
		Client:         j.Client,
		Source:         j.Source,
		ImportedAt:     j.ImportedAt,
		ExcelFileName:  j.ExcelFileName,
		ExcelSheetName: j.ExcelSheetName,
		ExcelRowRef:    j.ExcelRowRef,
		ManagerNameRaw: j.ManagerNameRaw,
		ManagerID:      j.ManagerID,
		SupplierID:     j.SupplierID,
		UpdatedAt:      j.UpdatedAt,
	}
}

// GET /api/jobs?source=excel&q=oak&limit=50&offset=0
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := jobs.ListFilter{
		Source: q.Get("source"),
		Search: q.Get("q"),
		Limit:  100,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 1000 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}

	list, err := s.store.ListJobs(r.Context(), f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	out := make([]jobView, 0, len(list))
	for _, j := range list {
		out = append(out, toView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

// GET /api/jobs/{jobNumber}
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.GetJob(r.Context(), mux.Vars(r)["jobNumber"])
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "job not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toView(*j))
}
