// Package vectorstore selects the configured domain.VectorIndex backend.
package vectorstore

import (
	"fmt"
	"os"
	"time"

	"sedar-analyst/internal/config"
	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/vectorstore/memory"
	"sedar-analyst/internal/vectorstore/qdrant"
	"sedar-analyst/internal/vectorstore/sqlite"
)

// Open builds the vector index named by cfg.VectorStore. The returned func
// releases any underlying resources.
func Open(cfg *config.AppConfig) (domain.VectorIndex, func() error, error) {
	noop := func() error { return nil }
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(vs.Collection), noop, nil
	case "sqlite", "":
		st, err := sqlite.Open(cfg.SQLitePath(), vs.Collection)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "qdrant":
		st := qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     os.Getenv(vs.Qdrant.APIKeyEnv),
			Collection: vs.Collection,
			Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		})
		return st, noop, nil
	default:
		return nil, nil, domain.E("vector store", domain.ErrConfig, fmt.Errorf("unknown vector store: %s", vs.Type))
	}
}
