package feeds

import (
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/config"
	"github.com/lvonguyen/sectorintel/internal/observability"
)

// FromConfig builds a registry of the enabled feeds in configured order. A
// remote feed that cannot be constructed, usually for a missing API key, is
// logged and left out.
func FromConfig(cfg *config.Config, clock func() time.Time, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	var collectors []Collector
	for _, name := range cfg.EnabledFeeds() {
		var (
			c   Collector
			err error
		)
		switch name {
		case FeedOTX:
			c, err = NewOTXCollector(OTXConfig{
				BaseURL:    cfg.Feeds.OTX.BaseURL,
				APIKeyEnv:  cfg.Feeds.OTX.APIKeyEnv,
				Timeout:    cfg.Feeds.OTX.Timeout,
				PulseLimit: cfg.Feeds.OTX.PulseLimit,
			}, logger)
		case FeedMISP:
			c, err = NewMISPCollector(MISPConfig{
				BaseURL:       cfg.Feeds.MISP.BaseURL,
				APIKeyEnv:     cfg.Feeds.MISP.APIKeyEnv,
				VerifySSL:     cfg.Feeds.MISP.VerifySSL,
				Timeout:       cfg.Feeds.MISP.Timeout,
				PublishedOnly: cfg.Feeds.MISP.PublishedOnly,
				Limit:         DefaultMISPConfig().Limit,
			}, logger)
		default:
			c, err = NewSampleCollector(name, clock)
		}
		if err != nil {
			logger.Warn("Skipping feed", zap.String("feed", name), zap.Error(err))
			continue
		}
		collectors = append(collectors, c)
	}

	logger.Info("Feed registry ready", zap.Int("feeds", len(collectors)))
	return NewRegistry(logger, metrics, collectors...)
}
