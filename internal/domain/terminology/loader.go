package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/onconova/onconova/internal/platform/db"
)

// Source supplies concepts for one named valueset.
type Source interface {
	Fetch(ctx context.Context, name string, limit int) ([]*Concept, error)
}

// FileSource reads valuesets from <dir>/<name>.json, each file holding
// a JSON array of concepts.
type FileSource struct {
	Dir string
}

func (s FileSource) Fetch(ctx context.Context, name string, limit int) ([]*Concept, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".json"))
	if err != nil {
		return nil, err
	}
	var concepts []*Concept
	if err := json.Unmarshal(data, &concepts); err != nil {
		return nil, fmt.Errorf("valueset %s: %w", name, err)
	}
	if limit > 0 && len(concepts) > limit {
		concepts = concepts[:limit]
	}
	return concepts, nil
}

// LoaderOptions mirror the termsynch command flags.
type LoaderOptions struct {
	ValueSets       []string
	SkipExisting    bool
	ForceReset      bool
	PruneDangling   bool
	CollectionLimit int
	RaiseFailed     bool
}

// Loader performs batch terminology synchronization. Each valueset is
// loaded in its own transaction under an advisory lock, so request-time
// reads never see a half-loaded terminology.
type Loader struct {
	pool   *pgxpool.Pool
	repo   Repository
	source Source
	log    zerolog.Logger
}

func NewLoader(pool *pgxpool.Pool, repo Repository, source Source, log zerolog.Logger) *Loader {
	return &Loader{pool: pool, repo: repo, source: source, log: log}
}

// Run synchronizes the requested valuesets (all known ones when empty)
// and returns the number of concepts written.
func (l *Loader) Run(ctx context.Context, opts LoaderOptions) (int, error) {
	names := opts.ValueSets
	if len(names) == 0 {
		for name := range Terminologies {
			names = append(names, name)
		}
	}
	total := 0
	for _, name := range names {
		n, err := l.loadOne(ctx, name, opts)
		if err != nil {
			l.log.Error().Err(err).Str("valueset", name).Msg("terminology load failed")
			if opts.RaiseFailed {
				return total, fmt.Errorf("valueset %s: %w", name, err)
			}
			continue
		}
		total += n
		l.log.Info().Str("valueset", name).Int("concepts", n).Msg("terminology loaded")
	}
	return total, nil
}

func (l *Loader) loadOne(ctx context.Context, name string, opts LoaderOptions) (int, error) {
	system, ok := SystemForName(name)
	if !ok {
		return 0, fmt.Errorf("unknown terminology %q", name)
	}
	concepts, err := l.source.Fetch(ctx, name, opts.CollectionLimit)
	if err != nil {
		return 0, err
	}

	written := 0
	err = db.WithTx(ctx, l.pool, func(ctx context.Context) error {
		// One loader at a time per terminology.
		if _, err := db.Conn(ctx, l.pool).Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, system); err != nil {
			return err
		}
		if opts.SkipExisting {
			existing, err := l.repo.Count(ctx, system)
			if err != nil {
				return err
			}
			if existing > 0 {
				l.log.Debug().Str("valueset", name).Int("existing", existing).Msg("skipping populated terminology")
				return nil
			}
		}
		if opts.ForceReset {
			if _, err := l.repo.DeleteSystem(ctx, system); err != nil {
				return err
			}
		}
		version := ""
		for _, concept := range concepts {
			concept.System = system
			if err := l.repo.Upsert(ctx, concept); err != nil {
				return fmt.Errorf("concept %s: %w", concept.Code, err)
			}
			version = concept.Version
			written++
		}
		if opts.PruneDangling && written > 0 {
			pruned, err := l.repo.PruneDangling(ctx, system, version)
			if err != nil {
				return err
			}
			if pruned > 0 {
				l.log.Debug().Str("valueset", name).Int("pruned", pruned).Msg("pruned stale concepts")
			}
		}
		return nil
	})
	return written, err
}
