// Package app wires the knowledge service together: configuration, tracing,
// the database pool, the embedding provider, the object store, and the
// pipeline services built on top of them.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edusim/knowledge/internal/config"
	"github.com/edusim/knowledge/internal/ingest"
	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/metadata"
	"github.com/edusim/knowledge/internal/retrieve"
	"github.com/edusim/knowledge/internal/status"
	"github.com/edusim/knowledge/internal/vectorindex"
)

// App is the assembled service container. Construct with Setup; release
// with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Index       vectorindex.Index
	Catalog     *metadata.Catalog
	Tracker     *status.Tracker
	Coordinator *ingest.Coordinator
	Reconciler  *ingest.Reconciler
	Retriever   *retrieve.Retriever

	cancel      context.CancelFunc
	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse initialization order. Safe to
// call on a partially constructed App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down")
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
