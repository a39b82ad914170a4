// internal/integrations/types.go
package integrations

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/bartek5186/xls2jobs/internal/pipeline"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blokuje do ctx.Done (long-running) lub odpala własną pętlę
	Stop()                           // idempotent
}

// Trigger – to, co integracja może odpalić (pipeline.Runner).
type Trigger interface {
	Path() string
	RunIfChanged(ctx context.Context, trigger string) (*pipeline.Report, error)
}

// Deps – zależności przekazywane fabrykom zamiast wartości w kontekście.
type Deps struct {
	Runner Trigger
}

type Factory func(log zerolog.Logger, raw json.RawMessage, deps Deps) (Integration, error)
