package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit classifies a numeric value. Currency magnitudes are expanded and
// percentages are stored as fractions, so values in the same unit compare
// directly.
type Unit string

const (
	UnitUSD     Unit = "USD"
	UnitEUR     Unit = "EUR"
	UnitGBP     Unit = "GBP"
	UnitPercent Unit = "percent"
	UnitNone    Unit = "none"
)

// Polarity is the sign of an assertion after counting negations.
type Polarity string

const (
	PolarityPositive  Polarity = "positive"
	PolarityNegative  Polarity = "negative"
	PolarityUncertain Polarity = "uncertain"
)

// NumericValue is one extracted number, normalized to its base unit.
type NumericValue struct {
	Raw        string
	Value      float64
	Unit       Unit
	Confidence float64
}

// TemporalValue is one extracted time reference, normalized to an inclusive
// UTC date range.
type TemporalValue struct {
	Raw        string
	Start      time.Time
	End        time.Time
	Confidence float64
}

// ClaimStructure is the structured representation of a piece of text used for
// symbolic comparison against evidence.
type ClaimStructure struct {
	Text                 string
	Numerics             []NumericValue
	Temporals            []TemporalValue
	Subject              string
	Polarity             Polarity
	NegationWords        []string
	ExtractionConfidence float64
}

// SubjectTagger finds the grammatical subject of a sentence. Implementations
// may be backed by a full NLP model; the extractor works without one.
type SubjectTagger interface {
	Subject(text string) string
}

var (
	currencyRe  = regexp.MustCompile(`([$€£])\s*(\d+(?:\.\d+)?)\s*([KkMmBb](?:illion)?)?`)
	percentRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	magnitudeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(million|billion|thousand)`)
	quarterRe   = regexp.MustCompile(`Q([1-4])\s*(\d{4})`)
	yearRe      = regexp.MustCompile(`\b(20\d{2})\b`)
	monthYearRe = regexp.MustCompile(`(?i)(january|february|march|april|may|june|july|august|september|october|november|december)\s*(\d{4})`)
)

var magnitudeMultipliers = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"million":  1e6,
	"b":        1e9,
	"billion":  1e9,
}

var currencySymbols = map[string]Unit{
	"$": UnitUSD,
	"€": UnitEUR,
	"£": UnitGBP,
}

var negationWords = map[string]bool{
	"not":     true,
	"no":      true,
	"never":   true,
	"n't":     true,
	"none":    true,
	"neither": true,
	"without": true,
	"lack":    true,
	"fail":    true,
	"failed":  true,
	"unable":  true,
	"deny":    true,
	"denied":  true,
	"refuse":  true,
	"refused": true,
}

var hedgeWords = map[string]bool{
	"might":    true,
	"may":      true,
	"could":    true,
	"possibly": true,
	"perhaps":  true,
	"likely":   true,
}

// Extractor produces a ClaimStructure for a piece of text. Pure and
// deterministic: extracting twice on the same text yields equal structures.
type Extractor struct {
	tagger SubjectTagger // nil = no subject detection
}

// NewExtractor creates an Extractor. A nil tagger disables subject detection;
// extraction still succeeds with an empty subject.
func NewExtractor(tagger SubjectTagger) *Extractor {
	return &Extractor{tagger: tagger}
}

// Extract builds the structured representation of text.
func (e *Extractor) Extract(text string) ClaimStructure {
	negations := findNegations(text)
	subject := ""
	if e.tagger != nil {
		subject = e.tagger.Subject(text)
	}

	return ClaimStructure{
		Text:                 text,
		Numerics:             extractNumerics(text),
		Temporals:            extractTemporals(text),
		Subject:              subject,
		Polarity:             polarityOf(text, negations),
		NegationWords:        negations,
		ExtractionConfidence: extractionConfidence(text, subject),
	}
}

// extractNumerics applies the numeric rules in priority order: currency first
// so "$5 million" lands on the currency rule, then percent, then bare
// magnitudes.
func extractNumerics(text string) []NumericValue {
	var results []NumericValue

	for _, m := range currencyRe.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		if m[3] != "" {
			if mult, ok := magnitudeMultipliers[strings.ToLower(m[3][:1])]; ok {
				value *= mult
			}
		}
		unit, ok := currencySymbols[m[1]]
		if !ok {
			unit = UnitUSD
		}
		results = append(results, NumericValue{
			Raw:        m[0],
			Value:      value,
			Unit:       unit,
			Confidence: 0.95,
		})
	}

	for _, m := range percentRe.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		results = append(results, NumericValue{
			Raw:        m[0],
			Value:      value / 100,
			Unit:       UnitPercent,
			Confidence: 0.98,
		})
	}

	for _, m := range magnitudeRe.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		mult := magnitudeMultipliers[strings.ToLower(m[2])]
		results = append(results, NumericValue{
			Raw:        m[0],
			Value:      value * mult,
			Unit:       UnitNone,
			Confidence: 0.90,
		})
	}

	return results
}

// quarterBounds maps a quarter number to its first and last (month, day).
var quarterBounds = map[int][4]int{
	1: {1, 1, 3, 31},
	2: {4, 1, 6, 30},
	3: {7, 1, 9, 30},
	4: {10, 1, 12, 31},
}

var monthNumbers = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// extractTemporals normalizes quarters, bare years, and month-year references
// to inclusive UTC date ranges. A year that is part of a quarter reference is
// not extracted a second time.
func extractTemporals(text string) []TemporalValue {
	var results []TemporalValue

	for _, m := range quarterRe.FindAllStringSubmatch(text, -1) {
		quarter, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		b := quarterBounds[quarter]

		results = append(results, TemporalValue{
			Raw:        m[0],
			Start:      utcDate(year, time.Month(b[0]), b[1]),
			End:        utcDate(year, time.Month(b[2]), b[3]),
			Confidence: 0.95,
		})
	}

	for _, m := range yearRe.FindAllStringSubmatch(text, -1) {
		if partOfQuarter(text, m[1]) {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		results = append(results, TemporalValue{
			Raw:        m[0],
			Start:      utcDate(year, time.January, 1),
			End:        utcDate(year, time.December, 31),
			Confidence: 0.85,
		})
	}

	for _, m := range monthYearRe.FindAllStringSubmatch(text, -1) {
		month := monthNumbers[strings.ToLower(m[1])]
		year, _ := strconv.Atoi(m[2])
		start := utcDate(year, month, 1)
		// time.Date normalizes month 13, so December rolls into January of
		// the next year before stepping back a day.
		end := utcDate(year, month+1, 1).AddDate(0, 0, -1)

		results = append(results, TemporalValue{
			Raw:        m[0],
			Start:      start,
			End:        end,
			Confidence: 0.90,
		})
	}

	return results
}

// partOfQuarter reports whether the year string appears as the year of a
// quarter reference anywhere in the text.
func partOfQuarter(text, year string) bool {
	re, err := regexp.Compile(`Q[1-4]\s*` + regexp.QuoteMeta(year))
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func utcDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// findNegations returns every negation token in the text, including clitic
// negations ("isn't", "doesn't").
func findNegations(text string) []string {
	var found []string
	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.Trim(token, ".,;:!?\"'()[]{}"))
		if negationWords[word] {
			found = append(found, word)
			continue
		}
		if strings.HasSuffix(word, "n't") || strings.HasSuffix(word, "n’t") {
			found = append(found, "n't")
		}
	}
	return found
}

// polarityOf derives polarity from negation parity: an odd count negates, an
// even non-zero count cancels out, and hedged statements with no negation are
// uncertain.
func polarityOf(text string, negations []string) Polarity {
	if len(negations)%2 == 1 {
		return PolarityNegative
	}
	if len(negations) > 0 {
		return PolarityPositive
	}

	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.Trim(token, ".,;:!?\"'()[]{}"))
		if hedgeWords[word] {
			return PolarityUncertain
		}
	}
	return PolarityPositive
}

// extractionConfidence starts at a 0.70 base and rewards the strongest
// structural signals, capped below certainty.
func extractionConfidence(text, subject string) float64 {
	conf := 0.70
	if currencyRe.MatchString(text) {
		conf += 0.10
	}
	if quarterRe.MatchString(text) {
		conf += 0.10
	}
	if subject != "" {
		conf += 0.05
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

// HeuristicTagger is a lightweight SubjectTagger that takes the noun phrase
// before the first auxiliary or common verb of the first sentence. It stands
// in for a dependency parser and errs on the side of returning nothing.
type HeuristicTagger struct{}

var subjectStopVerbs = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"has": true, "have": true, "had": true, "will": true, "would": true,
	"did": true, "does": true, "do": true, "can": true, "may": true,
	"grew": true, "rose": true, "fell": true, "increased": true, "decreased": true,
	"reached": true, "reported": true, "announced": true, "says": true, "said": true,
}

var leadingArticles = map[string]bool{"the": true, "a": true, "an": true}

// Subject returns the leading noun phrase of the first sentence, or "" when
// no verb boundary is found.
func (HeuristicTagger) Subject(text string) string {
	tokens := strings.Fields(text)
	var phrase []string
	for i, token := range tokens {
		word := strings.ToLower(strings.Trim(token, ".,;:!?\"'()[]{}"))
		if subjectStopVerbs[word] {
			if len(phrase) == 0 {
				return ""
			}
			return strings.Join(phrase, " ")
		}
		if i == 0 && leadingArticles[word] {
			phrase = append(phrase, token)
			continue
		}
		if i > 6 {
			// Too deep without hitting a verb; not a simple declarative.
			return ""
		}
		phrase = append(phrase, strings.Trim(token, ".,;:!?\"'"))
	}
	return ""
}
