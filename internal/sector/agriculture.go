package sector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/parallel"
)

// Focus areas.
const (
	FocusSupplyChain         = "supply_chain"
	FocusIoTDevices          = "iot_devices"
	FocusRuralInfrastructure = "rural_infrastructure"
)

// FocusArea lists the assets and threat keywords of one agriculture area.
type FocusArea struct {
	Assets  []string `yaml:"assets"`
	Threats []string `yaml:"threats"`
}

// FocusAreas is the built-in focus area catalog.
var FocusAreas = map[string]FocusArea{
	FocusSupplyChain: {
		Assets:  []string{"logistics_systems", "inventory_management", "supplier_portals"},
		Threats: []string{"supply_chain_attacks", "data_manipulation", "third_party_compromise"},
	},
	FocusIoTDevices: {
		Assets:  []string{"farm_sensors", "automated_equipment", "monitoring_systems"},
		Threats: []string{"device_compromise", "botnet_recruitment", "data_theft"},
	},
	FocusRuralInfrastructure: {
		Assets:  []string{"satellite_communications", "rural_broadband", "mobile_systems"},
		Threats: []string{"connectivity_disruption", "man_in_the_middle", "signal_jamming"},
	},
}

var (
	supplyChainStages = []string{"production", "processing", "distribution"}
	iotDeviceTypes    = []string{"sensors", "automated_equipment", "monitoring_systems"}
	ruralChallenges   = []string{"geographic_dispersion", "limited_bandwidth", "staff_availability"}
	baseChallenges    = []string{
		"Limited IT staff in rural areas",
		"Difficulty patching IoT devices in the field",
		"Seasonal operational constraints",
		"Legacy equipment compatibility",
	}
)

const iotLifecycleChallenge = "IoT device lifecycle management"

// AgricultureConfig configures the agriculture analyzer.
type AgricultureConfig struct {
	FocusAreas []string `yaml:"focus_areas"`
	Workers    int      `yaml:"workers"`
}

// DefaultAgricultureConfig returns the supply chain and IoT focus.
func DefaultAgricultureConfig() AgricultureConfig {
	return AgricultureConfig{FocusAreas: []string{FocusSupplyChain, FocusIoTDevices}}
}

// AgricultureAnalyzer enriches agriculture indicators.
type AgricultureAnalyzer struct {
	config  AgricultureConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAgricultureAnalyzer creates an agriculture analyzer. An empty focus
// area list takes the default.
func NewAgricultureAnalyzer(cfg AgricultureConfig, logger *zap.Logger, metrics *observability.Metrics) (*AgricultureAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.FocusAreas) == 0 {
		cfg.FocusAreas = DefaultAgricultureConfig().FocusAreas
	}
	for _, area := range cfg.FocusAreas {
		if _, ok := FocusAreas[area]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFocusArea, area)
		}
	}
	return &AgricultureAnalyzer{config: cfg, logger: logger, metrics: metrics}, nil
}

// Sector returns the agriculture sector name.
func (a *AgricultureAnalyzer) Sector() string {
	return intel.SectorAgriculture
}

// Analyze filters to agriculture indicators and attaches the agriculture
// block. Input order is preserved.
func (a *AgricultureAnalyzer) Analyze(ctx context.Context, indicators []intel.Indicator) ([]intel.Indicator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched, err := relevant(indicators, a.Sector())
	if err != nil {
		return nil, err
	}

	out, failed := parallel.Map(matched, a.config.Workers, func(ind intel.Indicator) (intel.Indicator, error) {
		enriched := ind.Clone()
		enriched.AgricultureAnalysis = a.assess(ind)
		return enriched, nil
	})
	for _, f := range failed {
		a.metrics.IncRecordFailure("agriculture")
		a.logger.Error("Failed to assess indicator",
			zap.String("id", matched[f.Index].ID),
			zap.Error(f.Err),
		)
	}

	a.metrics.AddSector(a.Sector(), len(out))
	a.logger.Info("Identified relevant threats",
		zap.String("sector", a.Sector()),
		zap.Strings("focus_areas", a.config.FocusAreas),
		zap.Int("count", len(out)),
	)

	return out, nil
}

func (a *AgricultureAnalyzer) assess(ind intel.Indicator) *intel.AgricultureAnalysis {
	desc := strings.ToLower(ind.Description)
	mentionsIoT := strings.Contains(desc, "iot")

	challenges := make([]string, 0, len(baseChallenges)+1)
	challenges = append(challenges, baseChallenges...)
	if mentionsIoT {
		challenges = append(challenges, iotLifecycleChallenge)
	}

	supplyChainSeverity := intel.SeverityMedium
	if strings.Contains(desc, "supply chain") {
		supplyChainSeverity = intel.SeverityHigh
	}

	return &intel.AgricultureAnalysis{
		AffectedAreas: a.affectedAreas(desc),
		SupplyChainImpact: intel.SupplyChainImpact{
			Severity:       supplyChainSeverity,
			AffectedStages: clone(supplyChainStages),
			FoodSafetyRisk: ind.Properties.Severity == intel.SeverityCritical,
		},
		IoTVulnerability: intel.IoTVulnerability{
			IoTRelevant:        mentionsIoT || strings.Contains(desc, "sensor"),
			DeviceTypesAtRisk:  clone(iotDeviceTypes),
			PatchingDifficulty: "high",
		},
		RuralConsiderations: intel.RuralConsiderations{
			LimitedConnectivity: true,
			RemoteLocations:     true,
			LimitedITResources:  true,
			ResponseChallenges:  clone(ruralChallenges),
		},
		MitigationChallenges: challenges,
	}
}

// affectedAreas returns the configured areas whose threat keywords appear in
// desc, or the first configured area when none do.
func (a *AgricultureAnalyzer) affectedAreas(desc string) []string {
	affected := make([]string, 0)
	for _, area := range a.config.FocusAreas {
		for _, threat := range FocusAreas[area].Threats {
			if strings.Contains(desc, threat) {
				affected = append(affected, area)
				break
			}
		}
	}
	if len(affected) == 0 {
		affected = append(affected, a.config.FocusAreas[0])
	}
	return affected
}

// FilterIoT returns the indicators whose agriculture block marks them IoT
// relevant.
func FilterIoT(indicators []intel.Indicator) []intel.Indicator {
	out := make([]intel.Indicator, 0)
	for _, ind := range indicators {
		if ind.AgricultureAnalysis != nil && ind.AgricultureAnalysis.IoTVulnerability.IoTRelevant {
			out = append(out, ind)
		}
	}
	return out
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
