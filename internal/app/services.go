package app

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guttosm/rental-manager/config"
	"github.com/guttosm/rental-manager/internal/lazy"
	"github.com/guttosm/rental-manager/internal/objpool"
	"github.com/guttosm/rental-manager/internal/service"
)

const (
	// objectPoolCapacity bounds each scratch object pool.
	objectPoolCapacity = 64
	extractorName      = "pattern-extractor"
)

// ServiceComponents holds the text and mail services and the scratch object
// pools they share.
type ServiceComponents struct {
	NameSets  *objpool.Pool[map[string]struct{}]
	Buffers   *objpool.Pool[*bytes.Buffer]
	Extractor *lazy.Handle[service.Extractor]
	Text      *service.TextService
	// Mail is nil when no maildir is configured.
	Mail *service.MailService
}

// InitializeServices creates the service layer. The extractor is not built
// until the first text request.
func InitializeServices(cfg *config.Config) (*ServiceComponents, error) {
	nameSets := objpool.NewMapPool[string, struct{}]("name_sets", objectPoolCapacity)
	buffers := objpool.NewBufferPool("mail_buffers", objectPoolCapacity)

	extractor := lazy.New(extractorName, func(context.Context) (service.Extractor, error) {
		log.Info().Str("extractor", extractorName).Msg("Loading text extractor")
		return service.NewPatternExtractor(nameSets), nil
	})

	text := service.NewTextService(extractor, service.TextConfig{
		CacheSize:           cfg.NLP.CacheSize,
		EnablePreprocessing: cfg.NLP.EnablePreprocessing,
	})

	components := &ServiceComponents{
		NameSets:  nameSets,
		Buffers:   buffers,
		Extractor: extractor,
		Text:      text,
	}

	if cfg.Mail.Root == "" {
		log.Info().Msg("No maildir configured - mail service disabled")
		return components, nil
	}

	mail, err := service.NewMailService(service.NewMaildirDialer(cfg.Mail.Root, buffers), service.MailConfig{
		Sessions:       cfg.Mail.Sessions,
		Concurrency:    cfg.Mail.Concurrency,
		FetchLimit:     cfg.Mail.FetchLimit,
		AcquireTimeout: cfg.Database.AcquireTimeout,
		IdleTimeout:    cfg.Mail.IdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mail service: %w", err)
	}
	components.Mail = mail
	log.Info().Str("root", cfg.Mail.Root).Int("sessions", cfg.Mail.Sessions).Msg("Mail service ready")

	return components, nil
}

// ObjectPoolStats returns the scratch pool statistics.
func (s *ServiceComponents) ObjectPoolStats() []objpool.Stats {
	return []objpool.Stats{s.NameSets.Stats(), s.Buffers.Stats()}
}

// Close closes the mail sessions.
func (s *ServiceComponents) Close() error {
	if s.Mail == nil {
		return nil
	}
	return s.Mail.Close()
}
