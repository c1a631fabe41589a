package observability

import "github.com/lvonguyen/sectorintel/internal/config"

// FromConfig maps the logging and telemetry sections of the service
// configuration onto a telemetry Config.
func FromConfig(cfg *config.Config, version string) Config {
	return Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		LogLevel:       cfg.Logging.Level,
		LogFormat:      cfg.Logging.Format,
		LogFile:        cfg.Logging.File,
		LogMaxSizeMB:   cfg.Logging.MaxSizeMB,
		LogMaxBackups:  cfg.Logging.MaxBackups,
		LogMaxAgeDays:  cfg.Logging.MaxAgeDays,
		LogCompress:    cfg.Logging.Compress,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
	}
}
