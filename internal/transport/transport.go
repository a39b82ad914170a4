package transport

import (
	"context"

	"github.com/bartek5186/xls2jobs/internal/jobs"
)

// Result – wynik wysłania paczki
type Result struct {
	Count int // wierszy wysłanych
	Saved int // zapisanych po stronie bazy
}

// Sink – dokąd trafiają wyekstrahowane wiersze
type Sink interface {
	Name() string
	Send(ctx context.Context, rows []jobs.Row) (Result, error)
}

// Direct zapisuje paczkę w tej samej bazie, jedną transakcją.
type Direct struct {
	store *jobs.Store
}

func NewDirect(store *jobs.Store) *Direct {
	return &Direct{store: store}
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Send(ctx context.Context, rows []jobs.Row) (Result, error) {
	saved, err := d.store.UpsertBatch(ctx, rows)
	return Result{Count: len(rows), Saved: saved}, err
}
