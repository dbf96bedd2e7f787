// Package browse filters and projects the clean dataset. Everything here is a
// pure function of its inputs.
package browse

import (
	"regexp"
	"strings"

	"github.com/david/licitacoes/internal/models"
)

// Criteria holds the optional predicates. A zero value constrains nothing.
type Criteria struct {
	Status         []string `json:"status,omitempty"`
	States         []string `json:"states,omitempty"`
	Municipalities []string `json:"municipalities,omitempty"`
	Modalities     []string `json:"modalities,omitempty"`
	MinValue       float64  `json:"min_value,omitempty"`
	Keywords       string   `json:"keywords,omitempty"`
}

// Defaults are the fallback policies applied when an input is empty.
type Defaults struct {
	// EmptySelectionShowsAll projects every column when the selection has
	// no usable name. When false such a selection yields no columns.
	EmptySelectionShowsAll bool
	// EmptyKeywordsMatchAll makes a keyword input without tokens inert.
	// When false, non-blank input without tokens (e.g. ";;") matches nothing.
	EmptyKeywordsMatchAll bool
}

// Config names the columns each predicate reads.
type Config struct {
	StatusColumn       string
	StateColumn        string
	MunicipalityColumn string
	ModalityColumn     string
	ValueColumn        string
	DescriptionColumn  string
	KeywordDelimiter   string
	DefaultColumns     []string
	Defaults           Defaults
}

func DefaultConfig() Config {
	return Config{
		StatusColumn:       models.ColStatus,
		StateColumn:        models.ColState,
		MunicipalityColumn: models.ColMunicipality,
		ModalityColumn:     models.ColModality,
		ValueColumn:        models.ColValue,
		DescriptionColumn:  models.ColObject,
		KeywordDelimiter:   ";",
		DefaultColumns: []string{
			models.ColControlNumber,
			models.ColProposalOpening,
			models.ColProposalClosing,
			models.ColObject,
			models.ColValue,
			models.ColStatus,
			models.ColInstrumentType,
			models.ColPower,
		},
		Defaults: Defaults{
			EmptySelectionShowsAll: true,
			EmptyKeywordsMatchAll:  true,
		},
	}
}

// ParseKeywords splits input on delimiter, trims and drops empty tokens.
func ParseKeywords(input, delimiter string) []string {
	if delimiter == "" {
		delimiter = ";"
	}
	var tokens []string
	for _, part := range strings.Split(input, delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// KeywordPattern builds a case-insensitive OR of the literal tokens. It
// returns nil when there are no tokens.
func KeywordPattern(tokens []string) *regexp.Regexp {
	if len(tokens) == 0 {
		return nil
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	return regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
}

type predicate func(models.Record) bool

func membership(column string, allowed []string) predicate {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(r models.Record) bool {
		s, ok := r[column].(string)
		if !ok {
			return false
		}
		_, in := set[s]
		return in
	}
}

func minValue(column string, threshold float64) predicate {
	return func(r models.Record) bool {
		v, ok := toFloat(r[column])
		return ok && v >= threshold
	}
}

func keywordMatch(column string, re *regexp.Regexp) predicate {
	return func(r models.Record) bool {
		s, ok := r[column].(string)
		return ok && re.MatchString(s)
	}
}

func matchNothing(models.Record) bool { return false }

func (cfg Config) predicates(c Criteria) []predicate {
	var preds []predicate
	if len(c.Status) > 0 {
		preds = append(preds, membership(cfg.StatusColumn, c.Status))
	}
	if len(c.States) > 0 {
		preds = append(preds, membership(cfg.StateColumn, c.States))
	}
	if len(c.Municipalities) > 0 {
		preds = append(preds, membership(cfg.MunicipalityColumn, c.Municipalities))
	}
	if len(c.Modalities) > 0 {
		preds = append(preds, membership(cfg.ModalityColumn, c.Modalities))
	}
	if c.MinValue != 0 {
		preds = append(preds, minValue(cfg.ValueColumn, c.MinValue))
	}
	if re := KeywordPattern(ParseKeywords(c.Keywords, cfg.KeywordDelimiter)); re != nil {
		preds = append(preds, keywordMatch(cfg.DescriptionColumn, re))
	} else if strings.TrimSpace(c.Keywords) != "" && !cfg.Defaults.EmptyKeywordsMatchAll {
		preds = append(preds, matchNothing)
	}
	return preds
}

// Filter returns the rows satisfying every active predicate, in order.
func Filter(rows []models.Record, c Criteria, cfg Config) []models.Record {
	preds := cfg.predicates(c)
	out := make([]models.Record, 0, len(rows))
next:
	for _, r := range rows {
		for _, p := range preds {
			if !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
