package sector

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/compliance"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/parallel"
)

// Institution types.
const (
	InstitutionCreditUnion   = "credit_union"
	InstitutionFarmCredit    = "farm_credit"
	InstitutionCommunityBank = "community_bank"
)

// highRiskMultiplier boosts threats an institution is especially exposed to.
const highRiskMultiplier = 1.2

// Institution describes what a kind of institution runs and fears most.
type Institution struct {
	TypicalAssets   []string `yaml:"typical_assets"`
	HighRiskThreats []string `yaml:"high_risk_threats"`
}

// Institutions is the built-in institution catalog.
var Institutions = map[string]Institution{
	InstitutionCreditUnion: {
		TypicalAssets:   []string{"core_banking", "online_banking", "mobile_banking", "atm_network"},
		HighRiskThreats: []string{"ransomware", "wire_fraud", "credential_theft"},
	},
	InstitutionFarmCredit: {
		TypicalAssets:   []string{"loan_origination", "agricultural_data", "customer_portal", "wire_transfer"},
		HighRiskThreats: []string{"business_email_compromise", "ransomware", "supply_chain_attacks"},
	},
	InstitutionCommunityBank: {
		TypicalAssets:   []string{"core_banking", "commercial_lending", "treasury_management"},
		HighRiskThreats: []string{"ransomware", "ddos", "insider_threats"},
	},
}

var threatTypeAssets = map[string][]string{
	intel.ThreatTypeMalware:       {"core_banking", "endpoints", "file_servers"},
	intel.ThreatTypeFraud:         {"wire_transfer", "online_banking", "email_systems"},
	intel.ThreatTypeVulnerability: {"web_applications", "network_infrastructure"},
}

// FinancialConfig configures the financial-services analyzer.
type FinancialConfig struct {
	InstitutionType string   `yaml:"institution_type"`
	Frameworks      []string `yaml:"frameworks"`
	Workers         int      `yaml:"workers"`
}

// DefaultFinancialConfig returns the credit union profile assessed against
// FFIEC and FCA.
func DefaultFinancialConfig() FinancialConfig {
	return FinancialConfig{
		InstitutionType: InstitutionCreditUnion,
		Frameworks:      []string{compliance.FrameworkFFIEC, compliance.FrameworkFCA},
	}
}

// FinancialAnalyzer enriches financial-services indicators.
type FinancialAnalyzer struct {
	config      FinancialConfig
	institution Institution
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewFinancialAnalyzer creates a financial-services analyzer. Empty config
// fields take the defaults.
func NewFinancialAnalyzer(cfg FinancialConfig, logger *zap.Logger, metrics *observability.Metrics) (*FinancialAnalyzer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultFinancialConfig()
	if cfg.InstitutionType == "" {
		cfg.InstitutionType = defaults.InstitutionType
	}
	if cfg.Frameworks == nil {
		cfg.Frameworks = defaults.Frameworks
	}

	institution, ok := Institutions[cfg.InstitutionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstitution, cfg.InstitutionType)
	}
	for _, f := range cfg.Frameworks {
		if _, ok := compliance.Lookup(f); !ok {
			logger.Warn("Ignoring unknown compliance framework", zap.String("framework", f))
		}
	}

	return &FinancialAnalyzer{
		config:      cfg,
		institution: institution,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// Sector returns the financial-services sector name.
func (a *FinancialAnalyzer) Sector() string {
	return intel.SectorFinancialServices
}

// Analyze filters to financial-services indicators, attaches the
// financial-services block and sorts by mitigation priority, highest first.
// Ties keep input order.
func (a *FinancialAnalyzer) Analyze(ctx context.Context, indicators []intel.Indicator) ([]intel.Indicator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched, err := relevant(indicators, a.Sector())
	if err != nil {
		return nil, err
	}

	out, failed := parallel.Map(matched, a.config.Workers, func(ind intel.Indicator) (intel.Indicator, error) {
		enriched := ind.Clone()
		enriched.FinancialServicesAnalysis = a.assess(ind)
		return enriched, nil
	})
	for _, f := range failed {
		a.metrics.IncRecordFailure("financial_services")
		a.logger.Error("Failed to assess indicator",
			zap.String("id", matched[f.Index].ID),
			zap.Error(f.Err),
		)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinancialServicesAnalysis.MitigationPriority > out[j].FinancialServicesAnalysis.MitigationPriority
	})

	a.metrics.AddSector(a.Sector(), len(out))
	a.logger.Info("Identified relevant threats",
		zap.String("sector", a.Sector()),
		zap.String("institution_type", a.config.InstitutionType),
		zap.Int("count", len(out)),
	)

	return out, nil
}

func (a *FinancialAnalyzer) assess(ind intel.Indicator) *intel.FinancialAnalysis {
	severity := ind.Properties.Severity
	return &intel.FinancialAnalysis{
		InstitutionType:     a.config.InstitutionType,
		AffectedAssets:      a.affectedAssets(ind),
		ComplianceImpact:    compliance.Impact(a.config.Frameworks, severity),
		BusinessImpact:      compliance.BusinessImpactFor(severity),
		RegulatoryReporting: compliance.RegulatoryReportingFor(severity),
		MitigationPriority:  a.MitigationPriority(ind),
	}
}

func (a *FinancialAnalyzer) affectedAssets(ind intel.Indicator) []string {
	assets, ok := threatTypeAssets[ind.Properties.ThreatType]
	if !ok {
		assets = a.institution.TypicalAssets
		if len(assets) > 2 {
			assets = assets[:2]
		}
	}
	out := make([]string, len(assets))
	copy(out, assets)
	return out
}

// MitigationPriority scales the risk score for threat types the institution
// is especially exposed to, truncated to an integer and capped at 100.
func (a *FinancialAnalyzer) MitigationPriority(ind intel.Indicator) int {
	score := ind.RiskScore()
	for _, t := range a.institution.HighRiskThreats {
		if ind.Properties.ThreatType == t {
			score *= highRiskMultiplier
			break
		}
	}
	if p := int(score); p < 100 {
		return p
	}
	return 100
}
