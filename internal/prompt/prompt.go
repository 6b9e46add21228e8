// Package prompt assembles the generator requests for building a report and
// for regenerating a single section.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/devaudit/internal/llm"
	"github.com/fyrsmithlabs/devaudit/internal/report"
	"github.com/fyrsmithlabs/devaudit/internal/retrieval"
)

// Params are the sampling settings of one request kind.
type Params struct {
	Temperature float64
	MaxTokens   int
}

var (
	// DefaultBuild is used for full report generation.
	DefaultBuild = Params{Temperature: 0.2, MaxTokens: 16000}
	// DefaultRegenerate is used for single-section regeneration.
	DefaultRegenerate = Params{Temperature: 0.25, MaxTokens: 16000}
)

// System is the system prompt shared by both request kinds.
const System = `Ты эксперт внутреннего контроля и аудита бизнес-процессов.
Твоя задача: классифицировать описанное аудитором отклонение по справочникам
категорий отклонений и рисков и подготовить разделы отчёта.

Правила классификации:
- primary_id и alternatives выбирай только из переданных кандидатов
- confidence указывай числом от 0 до 100
- rationale объясняет выбор в одном-двух предложениях

Правила разделов:
- для каждого раздела дай несколько вариантов формулировок
- каждый вариант это объект {"short": краткая версия, "full": развёрнутая версия}
- не выдумывай суммы и даты, которых нет во входных данных

Правила вывода:
- верни только JSON, без пояснений и без markdown
- JSON должен строго соответствовать схеме из запроса`

const buildSchema = `{
  "selected": {
    "deviation_category": {"primary_id": "...", "alternatives": ["..."], "confidence": 0, "rationale": "..."},
    "risk": {"primary_id": "...", "alternatives": ["..."], "confidence": 0, "rationale": "..."}
  },
  "sections": {
    "<section_key>": {"variants": [{"short": "...", "full": "..."}]}
  }
}`

const regenSchema = `{
  "section_key": "<section_key>",
  "variants": [{"short": "...", "full": "..."}]
}`

// Build returns the request that generates the whole report.
func Build(input report.UserInput, candidates *retrieval.CandidateSet, p Params) (llm.Request, error) {
	var sb strings.Builder

	sb.WriteString("Описание отклонения:\n")
	writeInput(&sb, input)

	if err := writeCandidates(&sb, candidates); err != nil {
		return llm.Request{}, err
	}

	sb.WriteString("\nРазделы отчёта (ключи sections, по 3-5 вариантов в каждом):\n")
	for _, key := range report.SectionOrder {
		fmt.Fprintf(&sb, "- %s: %s\n", key, key.Title())
	}

	sb.WriteString("\nСхема ответа:\n")
	sb.WriteString(buildSchema)
	sb.WriteString("\n")

	return llm.Request{
		System:      System,
		User:        sb.String(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, nil
}

// Regenerate returns the request for fresh variants of key. The previous
// variants are included so the model offers different wording.
func Regenerate(input report.UserInput, selected report.Selected, key report.SectionKey, previous []report.Variant, candidates *retrieval.CandidateSet, p Params) (llm.Request, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Перегенерируй раздел %q (%s).\n\n", key, key.Title())
	sb.WriteString("Описание отклонения:\n")
	writeInput(&sb, input)

	if len(selected) > 0 {
		data, err := json.MarshalIndent(selected, "", "  ")
		if err != nil {
			return llm.Request{}, fmt.Errorf("encoding selection: %w", err)
		}
		sb.WriteString("\nВыбранная классификация:\n")
		sb.Write(data)
		sb.WriteString("\n")
	}

	if err := writeCandidates(&sb, candidates); err != nil {
		return llm.Request{}, err
	}

	if len(previous) > 0 {
		data, err := json.MarshalIndent(previous, "", "  ")
		if err != nil {
			return llm.Request{}, fmt.Errorf("encoding previous variants: %w", err)
		}
		sb.WriteString("\nПредыдущие варианты (не повторяй их формулировки):\n")
		sb.Write(data)
		sb.WriteString("\n")
	}

	sb.WriteString("\nВерни ровно 5 новых вариантов. Схема ответа:\n")
	sb.WriteString(strings.Replace(regenSchema, "<section_key>", string(key), 1))
	sb.WriteString("\n")

	return llm.Request{
		System:      System,
		User:        sb.String(),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}, nil
}

func writeInput(sb *strings.Builder, input report.UserInput) {
	for _, f := range report.InputFields(input) {
		fmt.Fprintf(sb, "%s %s\n", f.Label, f.Value)
	}
}

func writeCandidates(sb *strings.Builder, candidates *retrieval.CandidateSet) error {
	if candidates == nil {
		return nil
	}
	data, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding candidates: %w", err)
	}
	sb.WriteString("\nКандидаты из справочников (confidence в процентах схожести):\n")
	sb.Write(data)
	sb.WriteString("\n")
	return nil
}
