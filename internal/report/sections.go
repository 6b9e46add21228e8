package report

import (
	"errors"
	"fmt"
)

// ErrUnknownSection indicates a key outside SectionOrder.
var ErrUnknownSection = errors.New("unknown section")

// SectionKey identifies one report section.
type SectionKey string

// Report sections in display order.
const (
	SectionEssence           SectionKey = "essence"
	SectionRootCauses        SectionKey = "root_causes"
	SectionCostImpact        SectionKey = "cost_impact"
	SectionFormulas          SectionKey = "formulas"
	SectionRiskCostScenarios SectionKey = "risk_cost_scenarios"
	SectionRiskFactors       SectionKey = "risk_factors"
	SectionRSBUChecks        SectionKey = "rsbu_checks"
	SectionIFRSChecks        SectionKey = "ifrs_checks"
	SectionMeasures          SectionKey = "measures"
	SectionExport            SectionKey = "export"
)

// SectionOrder is the fixed enumeration of report sections.
var SectionOrder = []SectionKey{
	SectionEssence,
	SectionRootCauses,
	SectionCostImpact,
	SectionFormulas,
	SectionRiskCostScenarios,
	SectionRiskFactors,
	SectionRSBUChecks,
	SectionIFRSChecks,
	SectionMeasures,
	SectionExport,
}

var sectionTitles = map[SectionKey]string{
	SectionEssence:           "формулировки отклонения",
	SectionRootCauses:        "коренные причины",
	SectionCostImpact:        "стоимость и влияние на показатели",
	SectionFormulas:          "формулы EBITDA и ССДП",
	SectionRiskCostScenarios: "стоимость риска (сценарии)",
	SectionRiskFactors:       "риск-факторы",
	SectionRSBUChecks:        "РСБУ: проводки и проверки",
	SectionIFRSChecks:        "МСФО: корректировки",
	SectionMeasures:          "корректирующие меры",
	SectionExport:            "экспорт отчёта",
}

// Title returns the display title, or the key itself for unknown keys.
func (k SectionKey) Title() string {
	if t, ok := sectionTitles[k]; ok {
		return t
	}
	return string(k)
}

// Valid reports whether k is part of SectionOrder.
func (k SectionKey) Valid() bool {
	_, ok := sectionTitles[k]
	return ok
}

// ParseSectionKey validates s against SectionOrder.
func ParseSectionKey(s string) (SectionKey, error) {
	k := SectionKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}
	return k, nil
}

// ViewMode selects which text of a short/full variant is shown.
type ViewMode string

const (
	ModeShort ViewMode = "short"
	ModeFull  ViewMode = "full"
)

// Toggle flips short and full. Anything else is treated as short.
func (m ViewMode) Toggle() ViewMode {
	if m == ModeFull {
		return ModeShort
	}
	return ModeFull
}

// Status is the record lifecycle tag.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusGenerated Status = "generated"
)

// Slot names a classification slot in Selected.
type Slot string

const (
	SlotDeviationCategory Slot = "deviation_category"
	SlotRisk              Slot = "risk"
)

// Slots lists the required classification slots.
var Slots = []Slot{SlotDeviationCategory, SlotRisk}
