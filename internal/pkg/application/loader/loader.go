package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/diwise/ngsild-client/pkg/ngsild/client"
	"github.com/diwise/ngsild-client/pkg/ngsild/types/entities"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("entity-loader")

type EntityLoader interface {
	Sync(ctx context.Context) error
	Status() Status
}

// Status is a snapshot of the most recent synchronization run.
type Status struct {
	RunID    string    `json:"runId"`
	LastRun  time.Time `json:"lastRun"`
	Upserted int       `json:"upserted"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
}

type entityLoader struct {
	cfg *Config
	cb  client.ContextBrokerClient

	mu     sync.Mutex
	status Status
}

func New(cfg *Config, cb client.ContextBrokerClient) EntityLoader {
	return &entityLoader{cfg: cfg, cb: cb}
}

// Sync pushes every entity from the configured sources to the broker.
// Failures are counted and logged but do not stop the run, so a single
// bad entity can not block the rest of a batch.
func (l *entityLoader) Sync(ctx context.Context) error {
	var err error

	ctx, span := tracer.Start(ctx, "sync-entities")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	run := Status{
		RunID:   uuid.NewString(),
		LastRun: time.Now().UTC(),
	}

	// overwrite maps to the upsert protocol, skip and fail push plain
	// creates and let the request options decide what a conflict means
	push := l.cb.CreateEntity
	if l.cfg.OnConflict == ConflictOverwrite {
		push = l.cb.UpsertEntity
	}

	for _, source := range l.cfg.Sources {
		var batch []*entities.Entity
		batch, err = loadEntitiesFromFile(source.Path)
		if err != nil {
			err = fmt.Errorf("failed to load entities from %s: %w", source.Path, err)
			l.storeStatus(run)
			return err
		}

		options := l.requestOptions(source)

		for _, e := range batch {
			if source.Type != "" && e.Type() != source.Type {
				log.Warn("skipping entity of unexpected type", "entity-id", e.ID(), "type", e.Type())
				run.Skipped++
				continue
			}

			result, upsertErr := push(ctx, e, options...)
			if upsertErr != nil {
				log.Error("failed to upsert entity", "entity-id", e.ID(), "err", upsertErr.Error())
				run.Failed++
				continue
			}

			// a nil result without an error means the conflict was skipped
			if result == nil {
				run.Skipped++
				continue
			}

			run.Upserted++
		}
	}

	l.storeStatus(run)

	if run.Failed > 0 {
		err = fmt.Errorf("%d of %d entities failed to sync", run.Failed, run.Failed+run.Upserted+run.Skipped)
		return err
	}

	return nil
}

func (l *entityLoader) requestOptions(source SourceConfig) []client.RequestOption {
	options := []client.RequestOption{}

	if source.ContextLink != "" {
		options = append(options, client.ContextLink(source.ContextLink))
	}

	if l.cfg.OnConflict == ConflictSkip {
		options = append(options, client.SkipOnConflict())
	}

	return options
}

func (l *entityLoader) storeStatus(run Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = run
}

func (l *entityLoader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// loadEntitiesFromFile reads a single entity object or an array of them.
func loadEntitiesFromFile(path string) ([]*entities.Entity, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return entities.NewFromSlice(trimmed)
	}

	e, err := entities.NewFromJSON(trimmed)
	if err != nil {
		return nil, err
	}

	return []*entities.Entity{e}, nil
}
