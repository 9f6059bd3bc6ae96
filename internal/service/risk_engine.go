package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// RiskEngine maps (drug, phenotype) pairs onto CPIC-aligned clinical risk
// rules. The rule table is pure data, loaded once at construction and never
// mutated; lookups that miss resolve to a fixed Unknown fallback rather
// than an error.
type RiskEngine struct {
	logger *logrus.Logger
	rules  map[ruleKey]domain.RiskRule
}

type ruleKey struct {
	Drug      string
	Phenotype string
}

// NewRiskEngine creates a new CPIC risk engine with the static rule table.
func NewRiskEngine(logger *logrus.Logger) *RiskEngine {
	e := &RiskEngine{
		logger: logger,
		rules:  make(map[ruleKey]domain.RiskRule),
	}
	e.initializeRules()
	return e
}

// Classify looks up the CPIC risk rule for a drug-phenotype combination.
// Matching is case-insensitive and exact; unmapped combinations yield the
// Unknown fallback rule, never an error.
func (e *RiskEngine) Classify(drug, phenotype string) domain.RiskRule {
	key := ruleKey{strings.ToUpper(drug), strings.ToUpper(phenotype)}

	if rule, ok := e.rules[key]; ok {
		e.logger.WithFields(logrus.Fields{
			"drug":       key.Drug,
			"phenotype":  key.Phenotype,
			"risk_label": rule.RiskLabel.String(),
			"severity":   rule.Severity.String(),
		}).Debug("Matched CPIC risk rule")
		return rule
	}

	e.logger.WithFields(logrus.Fields{
		"drug":      key.Drug,
		"phenotype": key.Phenotype,
	}).Debug("No CPIC rule match, using fallback")

	return domain.RiskRule{
		RiskLabel:  domain.RiskUnknown,
		Severity:   domain.SeverityLow,
		Confidence: 0.30,
		RecommendedAction: fmt.Sprintf(
			"No CPIC guideline match for %s with %s phenotype. Clinical judgment required.",
			drug, phenotype),
		DoseAdjustment:     "",
		AlternativeDrugs:   []string{},
		MonitoringRequired: true,
		GuidelineReference: "https://cpicpgx.org/guidelines/",
	}
}

// SupportedDrugs returns the drugs covered by the rule table, derived from
// the table itself so the two can never drift apart.
func (e *RiskEngine) SupportedDrugs() []string {
	seen := make(map[string]bool)
	drugs := make([]string, 0, 8)
	for key := range e.rules {
		if !seen[key.Drug] {
			seen[key.Drug] = true
			drugs = append(drugs, key.Drug)
		}
	}
	return drugs
}

func (e *RiskEngine) add(drug string, phenotype domain.Phenotype, rule domain.RiskRule) {
	if err := rule.Validate(); err != nil {
		// The table is compiled-in data; an invalid entry is a programming
		// error, not a runtime condition.
		panic(fmt.Sprintf("invalid CPIC rule for %s/%s: %v", drug, phenotype, err))
	}
	e.rules[ruleKey{drug, string(phenotype)}] = rule
}

// initializeRules loads the hand-curated CPIC rule table. Guideline text
// and thresholds follow the published CPIC guidelines for each drug-gene
// pair.
func (e *RiskEngine) initializeRules() {
	const (
		codeineURL      = "https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/"
		warfarinURL     = "https://cpicpgx.org/guidelines/guideline-for-warfarin-and-cyp2c9-and-vkorc1/"
		clopidogrelURL  = "https://cpicpgx.org/guidelines/guideline-for-clopidogrel-and-cyp2c19/"
		simvastatinURL  = "https://cpicpgx.org/guidelines/guideline-for-simvastatin-and-slco1b1/"
		azathioprineURL = "https://cpicpgx.org/guidelines/guideline-for-thiopurines-and-tpmt-and-nudt15/"
		fluorouracilURL = "https://cpicpgx.org/guidelines/guideline-for-fluoropyrimidines-and-dpyd/"
	)

	// CODEINE (CYP2D6)
	e.add("CODEINE", domain.PhenotypeURM, domain.RiskRule{
		RiskLabel:  domain.RiskToxic,
		Severity:   domain.SeverityCritical,
		Confidence: 0.95,
		RecommendedAction: "AVOID codeine. Ultra-rapid metabolism converts codeine to morphine " +
			"at dangerously high levels. Use alternative analgesics.",
		DoseAdjustment:     "Avoid (do not dose)",
		AlternativeDrugs:   []string{"Acetaminophen", "NSAIDs", "Morphine (with dose adjustment)"},
		MonitoringRequired: true,
		GuidelineReference: codeineURL,
	})
	e.add("CODEINE", domain.PhenotypeRM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityHigh,
		Confidence: 0.85,
		RecommendedAction: "Use codeine with caution; consider lower doses or alternative analgesics. " +
			"Monitor for excessive sedation and respiratory depression.",
		DoseAdjustment:     "Consider lower dose (monitor closely)",
		AlternativeDrugs:   []string{"Acetaminophen", "NSAIDs"},
		MonitoringRequired: true,
		GuidelineReference: codeineURL,
	})
	e.add("CODEINE", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.95,
		RecommendedAction:  "Use codeine per standard prescribing. Normal CYP2D6 metabolism expected.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: false,
		GuidelineReference: codeineURL,
	})
	e.add("CODEINE", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskIneffective,
		Severity:   domain.SeverityModerate,
		Confidence: 0.80,
		RecommendedAction: "Reduced conversion of codeine to morphine. Analgesic effect may be " +
			"diminished. Consider alternative analgesics.",
		DoseAdjustment:     "Avoid / switch (no reliable up-titration)",
		AlternativeDrugs:   []string{"Morphine", "Oxycodone", "NSAIDs"},
		MonitoringRequired: true,
		GuidelineReference: codeineURL,
	})
	e.add("CODEINE", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskIneffective,
		Severity:   domain.SeverityHigh,
		Confidence: 0.95,
		RecommendedAction: "AVOID codeine. Poor metabolizers cannot convert codeine to active " +
			"morphine. No analgesic effect expected.",
		DoseAdjustment:     "Avoid (do not dose)",
		AlternativeDrugs:   []string{"Morphine", "Oxycodone", "Hydromorphone"},
		MonitoringRequired: false,
		GuidelineReference: codeineURL,
	})

	// WARFARIN (CYP2C9)
	e.add("WARFARIN", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.90,
		RecommendedAction:  "Use standard warfarin dosing algorithm. Normal CYP2C9 metabolism.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: true,
		GuidelineReference: warfarinURL,
	})
	e.add("WARFARIN", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityModerate,
		Confidence: 0.85,
		RecommendedAction: "Reduce warfarin dose by 25-50%. Decreased CYP2C9 metabolism increases " +
			"bleeding risk. Frequent INR monitoring required.",
		DoseAdjustment:     "Reduce dose 25–50%",
		AlternativeDrugs:   []string{"DOACs (Rivaroxaban, Apixaban)"},
		MonitoringRequired: true,
		GuidelineReference: warfarinURL,
	})
	e.add("WARFARIN", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskToxic,
		Severity:   domain.SeverityCritical,
		Confidence: 0.95,
		RecommendedAction: "Significantly reduce warfarin dose (50-80% reduction) or use alternative " +
			"anticoagulant. High bleeding risk with standard doses.",
		DoseAdjustment:     "Reduce dose 50–80% (or avoid)",
		AlternativeDrugs:   []string{"Rivaroxaban", "Apixaban", "Edoxaban"},
		MonitoringRequired: true,
		GuidelineReference: warfarinURL,
	})

	// CLOPIDOGREL (CYP2C19)
	e.add("CLOPIDOGREL", domain.PhenotypeURM, domain.RiskRule{
		RiskLabel:  domain.RiskSafe,
		Severity:   domain.SeverityNone,
		Confidence: 0.85,
		RecommendedAction: "Enhanced clopidogrel activation. Standard dosing is appropriate. " +
			"May have slightly increased bleeding risk.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: false,
		GuidelineReference: clopidogrelURL,
	})
	e.add("CLOPIDOGREL", domain.PhenotypeRM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.90,
		RecommendedAction:  "Standard clopidogrel dosing. Normal to enhanced bioactivation.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: false,
		GuidelineReference: clopidogrelURL,
	})
	e.add("CLOPIDOGREL", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.95,
		RecommendedAction:  "Use standard clopidogrel dosing. Normal CYP2C19-mediated bioactivation.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: false,
		GuidelineReference: clopidogrelURL,
	})
	e.add("CLOPIDOGREL", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityHigh,
		Confidence: 0.90,
		RecommendedAction: "Consider alternative antiplatelet therapy. Reduced clopidogrel activation " +
			"leads to diminished antiplatelet effect and increased cardiovascular risk.",
		DoseAdjustment:     "Avoid / switch (not dose escalation)",
		AlternativeDrugs:   []string{"Prasugrel", "Ticagrelor"},
		MonitoringRequired: true,
		GuidelineReference: clopidogrelURL,
	})
	e.add("CLOPIDOGREL", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskIneffective,
		Severity:   domain.SeverityCritical,
		Confidence: 0.95,
		RecommendedAction: "AVOID clopidogrel. Poor metabolizers cannot activate the prodrug. " +
			"Use alternative antiplatelet agent.",
		DoseAdjustment:     "Avoid (do not dose)",
		AlternativeDrugs:   []string{"Prasugrel", "Ticagrelor"},
		MonitoringRequired: true,
		GuidelineReference: clopidogrelURL,
	})

	// SIMVASTATIN (SLCO1B1)
	e.add("SIMVASTATIN", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.90,
		RecommendedAction:  "Use standard simvastatin dose. Normal SLCO1B1 transporter function.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: false,
		GuidelineReference: simvastatinURL,
	})
	e.add("SIMVASTATIN", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityModerate,
		Confidence: 0.85,
		RecommendedAction: "Prescribe ≤20mg simvastatin or consider alternative statin. Decreased " +
			"hepatic uptake increases myopathy risk.",
		DoseAdjustment:     "Max dose ≤20mg",
		AlternativeDrugs:   []string{"Pravastatin", "Rosuvastatin"},
		MonitoringRequired: true,
		GuidelineReference: simvastatinURL,
	})
	e.add("SIMVASTATIN", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskToxic,
		Severity:   domain.SeverityHigh,
		Confidence: 0.90,
		RecommendedAction: "AVOID simvastatin. Use alternative statin (pravastatin/rosuvastatin). " +
			"High risk of statin-induced myopathy/rhabdomyolysis.",
		DoseAdjustment:     "Avoid (do not dose)",
		AlternativeDrugs:   []string{"Pravastatin", "Rosuvastatin", "Fluvastatin"},
		MonitoringRequired: true,
		GuidelineReference: simvastatinURL,
	})

	// AZATHIOPRINE (TPMT)
	e.add("AZATHIOPRINE", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.90,
		RecommendedAction:  "Use standard azathioprine dosing. Normal TPMT activity.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: true,
		GuidelineReference: azathioprineURL,
	})
	e.add("AZATHIOPRINE", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityHigh,
		Confidence: 0.90,
		RecommendedAction: "Reduce azathioprine dose by 30-70%. Intermediate TPMT activity increases " +
			"risk of myelosuppression.",
		DoseAdjustment:     "Reduce dose 30–70%",
		AlternativeDrugs:   []string{"Mycophenolate mofetil"},
		MonitoringRequired: true,
		GuidelineReference: azathioprineURL,
	})
	e.add("AZATHIOPRINE", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskToxic,
		Severity:   domain.SeverityCritical,
		Confidence: 0.95,
		RecommendedAction: "AVOID azathioprine or reduce to 10% of standard dose. TPMT-deficient " +
			"patients accumulate toxic thioguanine nucleotides causing severe myelosuppression.",
		DoseAdjustment:     "Avoid or reduce to ~10% of standard dose",
		AlternativeDrugs:   []string{"Mycophenolate mofetil", "Alternative immunosuppressant"},
		MonitoringRequired: true,
		GuidelineReference: azathioprineURL,
	})

	// FLUOROURACIL (DPYD)
	e.add("FLUOROURACIL", domain.PhenotypeNM, domain.RiskRule{
		RiskLabel:          domain.RiskSafe,
		Severity:           domain.SeverityNone,
		Confidence:         0.90,
		RecommendedAction:  "Use standard 5-FU dosing. Normal DPD activity.",
		AlternativeDrugs:   []string{},
		MonitoringRequired: true,
		GuidelineReference: fluorouracilURL,
	})
	e.add("FLUOROURACIL", domain.PhenotypeIM, domain.RiskRule{
		RiskLabel:  domain.RiskAdjustDosage,
		Severity:   domain.SeverityHigh,
		Confidence: 0.90,
		RecommendedAction: "Reduce 5-FU dose by 25-50%. Intermediate DPD activity increases risk " +
			"of severe toxicity.",
		DoseAdjustment:     "Reduce dose 25–50%",
		AlternativeDrugs:   []string{"Consider non-fluoropyrimidine regimen"},
		MonitoringRequired: true,
		GuidelineReference: fluorouracilURL,
	})
	e.add("FLUOROURACIL", domain.PhenotypePM, domain.RiskRule{
		RiskLabel:  domain.RiskToxic,
		Severity:   domain.SeverityCritical,
		Confidence: 0.95,
		RecommendedAction: "AVOID fluorouracil and capecitabine. DPD-deficient patients have " +
			"potentially fatal toxicity with standard doses.",
		DoseAdjustment:     "Avoid (do not dose)",
		AlternativeDrugs:   []string{"Non-fluoropyrimidine chemotherapy regimen"},
		MonitoringRequired: true,
		GuidelineReference: fluorouracilURL,
	})
}
