package service

import (
	"context"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/guttosm/rental-manager/internal/cache"
	"github.com/guttosm/rental-manager/internal/lazy"
)

// DateMention is a date found in text, formatted DD/MM/YYYY, together with
// the text it was read from.
type DateMention struct {
	Date  string `json:"date"`
	Match string `json:"match"`
}

// Contact holds contact details found in text.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Entities is everything extracted from one message.
type Entities struct {
	Names     []string      `json:"names"`
	Dates     []DateMention `json:"dates"`
	Capacity  int           `json:"capacity,omitempty"`
	Contact   Contact       `json:"contact"`
	Confirmed bool          `json:"confirmed"`
}

// Extractor produces entities from guest messages.
type Extractor interface {
	Names(ctx context.Context, text string) ([]string, error)
	Dates(ctx context.Context, text string) ([]DateMention, error)
	// Capacity returns the party size mentioned in text, or 0.
	Capacity(ctx context.Context, text string) (int, error)
	Contact(ctx context.Context, text string) (Contact, error)
	Confirmation(ctx context.Context, text string) (bool, error)
}

// TextConfig holds TextService configuration.
type TextConfig struct {
	// CacheSize bounds each per-operation cache.
	CacheSize int
	// EnablePreprocessing keys case- and accent-insensitive operations by
	// the normalized text and runs them on it, so that spelling variants of
	// one message share a cache entry.
	EnablePreprocessing bool
	// BatchConcurrency bounds ProcessBatch. Defaults to GOMAXPROCS.
	BatchConcurrency int
}

// TextService memoizes entity extraction per operation.
//
// Names, dates and contact details depend on case and punctuation, so they
// are keyed by the text with whitespace collapsed. Capacity and
// confirmation are keyed by the normalized text when preprocessing is on.
type TextService struct {
	extractor    *lazy.Handle[Extractor]
	names        *cache.TextCache[[]string]
	dates        *cache.TextCache[[]DateMention]
	capacity     *cache.TextCache[int]
	contact      *cache.TextCache[Contact]
	confirmation *cache.TextCache[bool]
	preprocess   bool
	concurrency  int
}

// NewTextService creates a TextService. The extractor is loaded on first use.
func NewTextService(extractor *lazy.Handle[Extractor], cfg TextConfig) *TextService {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = cache.DefaultTextCapacity
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = runtime.GOMAXPROCS(0)
	}

	folded := cache.CollapseSpace
	if cfg.EnablePreprocessing {
		folded = cache.Normalize
	}

	return &TextService{
		extractor:    extractor,
		names:        cache.NewTextCache[[]string](cache.TextConfig{Name: "nlp_names", Capacity: cfg.CacheSize, Normalizer: cache.CollapseSpace}),
		dates:        cache.NewTextCache[[]DateMention](cache.TextConfig{Name: "nlp_dates", Capacity: cfg.CacheSize, Normalizer: cache.CollapseSpace}),
		contact:      cache.NewTextCache[Contact](cache.TextConfig{Name: "nlp_contact", Capacity: cfg.CacheSize, Normalizer: cache.CollapseSpace}),
		capacity:     cache.NewTextCache[int](cache.TextConfig{Name: "nlp_capacity", Capacity: cfg.CacheSize, Normalizer: folded}),
		confirmation: cache.NewTextCache[bool](cache.TextConfig{Name: "nlp_confirmation", Capacity: cfg.CacheSize, Normalizer: folded}),
		preprocess:   cfg.EnablePreprocessing,
		concurrency:  cfg.BatchConcurrency,
	}
}

// Names returns the guest names mentioned in text.
func (s *TextService) Names(ctx context.Context, text string) ([]string, error) {
	names, err := s.names.GetOrCompute(ctx, text, func(ctx context.Context, text string) ([]string, error) {
		ex, err := s.extractor.Get(ctx)
		if err != nil {
			return nil, err
		}
		return ex.Names(ctx, text)
	})
	return slices.Clone(names), err
}

// Dates returns the dates mentioned in text.
func (s *TextService) Dates(ctx context.Context, text string) ([]DateMention, error) {
	dates, err := s.dates.GetOrCompute(ctx, text, func(ctx context.Context, text string) ([]DateMention, error) {
		ex, err := s.extractor.Get(ctx)
		if err != nil {
			return nil, err
		}
		return ex.Dates(ctx, text)
	})
	return slices.Clone(dates), err
}

// Capacity returns the party size mentioned in text, or 0.
func (s *TextService) Capacity(ctx context.Context, text string) (int, error) {
	return s.capacity.GetOrCompute(ctx, text, func(ctx context.Context, text string) (int, error) {
		ex, err := s.extractor.Get(ctx)
		if err != nil {
			return 0, err
		}
		return ex.Capacity(ctx, s.prepare(text))
	})
}

// Contact returns the contact details in text.
func (s *TextService) Contact(ctx context.Context, text string) (Contact, error) {
	return s.contact.GetOrCompute(ctx, text, func(ctx context.Context, text string) (Contact, error) {
		ex, err := s.extractor.Get(ctx)
		if err != nil {
			return Contact{}, err
		}
		return ex.Contact(ctx, text)
	})
}

// Confirmation reports whether text confirms a reservation.
func (s *TextService) Confirmation(ctx context.Context, text string) (bool, error) {
	return s.confirmation.GetOrCompute(ctx, text, func(ctx context.Context, text string) (bool, error) {
		ex, err := s.extractor.Get(ctx)
		if err != nil {
			return false, err
		}
		return ex.Confirmation(ctx, s.prepare(text))
	})
}

// Process runs every operation on text.
func (s *TextService) Process(ctx context.Context, text string) (Entities, error) {
	var (
		out Entities
		err error
	)
	if out.Names, err = s.Names(ctx, text); err != nil {
		return Entities{}, err
	}
	if out.Dates, err = s.Dates(ctx, text); err != nil {
		return Entities{}, err
	}
	if out.Capacity, err = s.Capacity(ctx, text); err != nil {
		return Entities{}, err
	}
	if out.Contact, err = s.Contact(ctx, text); err != nil {
		return Entities{}, err
	}
	if out.Confirmed, err = s.Confirmation(ctx, text); err != nil {
		return Entities{}, err
	}
	return out, nil
}

// ProcessBatch processes texts concurrently and returns their entities in
// input order. The first failure cancels the rest.
func (s *TextService) ProcessBatch(ctx context.Context, texts []string) ([]Entities, error) {
	results := make([]Entities, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			e, err := s.Process(gctx, text)
			if err != nil {
				return err
			}
			results[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Shrink evicts the given fraction of least recently used entries from
// every cache and returns the total removed.
func (s *TextService) Shrink(fraction float64) int {
	return s.names.Shrink(fraction) +
		s.dates.Shrink(fraction) +
		s.capacity.Shrink(fraction) +
		s.contact.Shrink(fraction) +
		s.confirmation.Shrink(fraction)
}

// Clear empties every cache.
func (s *TextService) Clear() {
	s.names.Clear()
	s.dates.Clear()
	s.capacity.Clear()
	s.contact.Clear()
	s.confirmation.Clear()
}

// Metrics returns per-operation cache metrics keyed by cache name.
func (s *TextService) Metrics() map[string]cache.Metrics {
	return map[string]cache.Metrics{
		s.names.Name():        s.names.Metrics(),
		s.dates.Name():        s.dates.Metrics(),
		s.capacity.Name():     s.capacity.Metrics(),
		s.contact.Name():      s.contact.Metrics(),
		s.confirmation.Name(): s.confirmation.Metrics(),
	}
}

// Extractor returns the deferred extractor handle.
func (s *TextService) Extractor() *lazy.Handle[Extractor] {
	return s.extractor
}

func (s *TextService) prepare(text string) string {
	if s.preprocess {
		return cache.Normalize(text)
	}
	return text
}
