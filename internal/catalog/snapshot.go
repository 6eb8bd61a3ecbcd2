package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
	"github.com/mmeshcher/partner-ledger/internal/validation"
)

// Source отдаёт список сайтов.
type Source interface {
	Projects(ctx context.Context) ([]model.PartnerProject, error)
}

// ErrNoSources возвращается снимком без источников.
var ErrNoSources = errors.New("catalog has no sources")

// Snapshot держит последний успешно загруженный каталог в памяти.
// Источники опрашиваются по порядку, используется первый ответивший.
type Snapshot struct {
	sources []Source
	logger  *zap.Logger

	mu       sync.RWMutex
	projects []model.PartnerProject
	loaded   bool
}

// NewSnapshot создаёт снимок поверх источников. nil-источники пропускаются.
func NewSnapshot(logger *zap.Logger, sources ...Source) *Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Snapshot{logger: logger}
	for _, src := range sources {
		if src != nil {
			s.sources = append(s.sources, src)
		}
	}
	return s
}

// Refresh перечитывает каталог. При ошибке всех источников прежний снимок сохраняется.
func (s *Snapshot) Refresh(ctx context.Context) error {
	if len(s.sources) == 0 {
		return ErrNoSources
	}

	var errs []error
	for i, src := range s.sources {
		projects, err := src.Projects(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %d: %w", i, err))
			continue
		}

		projects = normalize(projects)
		s.mu.Lock()
		s.projects = projects
		s.loaded = true
		s.mu.Unlock()
		return nil
	}
	return errors.Join(errs...)
}

// Projects возвращает копию снимка, загружая его при первом обращении.
func (s *Snapshot) Projects(ctx context.Context) ([]model.PartnerProject, error) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()

	if !loaded {
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.projects), nil
}

// Run периодически обновляет снимок до отмены ctx.
func (s *Snapshot) Run(ctx context.Context, interval time.Duration) {
	if len(s.sources) == 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Refresh(ctx)
			if err == nil {
				continue
			}
			s.logger.Warn("catalog refresh failed", zap.Error(err))

			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
				timer := time.NewTimer(statusErr.RetryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
	}
}

func normalize(projects []model.PartnerProject) []model.PartnerProject {
	out := make([]model.PartnerProject, 0, len(projects))
	seen := make(map[string]struct{}, len(projects))
	for _, p := range projects {
		p.SiteSlug = validation.NormalizeSlug(p.SiteSlug)
		if !validation.IsValidSlug(p.SiteSlug) {
			continue
		}
		if _, dup := seen[p.SiteSlug]; dup {
			continue
		}
		seen[p.SiteSlug] = struct{}{}
		if p.SiteName == "" {
			p.SiteName = p.SiteSlug
		}
		out = append(out, p)
	}
	return out
}
