package service

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func newTestExtractor() *Extractor {
	return NewExtractor(HeuristicTagger{})
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtract_Currency(t *testing.T) {
	tests := []struct {
		input string
		value float64
		unit  Unit
	}{
		{"Revenue was $5M in Q3.", 5e6, UnitUSD},
		{"Revenue was $5 million.", 5e6, UnitUSD},
		{"Costs hit €2.5B last year.", 2.5e9, UnitEUR},
		{"The deal was worth £300K.", 3e5, UnitGBP},
		{"They paid $42 for the part.", 42, UnitUSD},
		{"A $1.08Billion write-down.", 1.08e9, UnitUSD},
	}

	e := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cs := e.Extract(tt.input)
			if len(cs.Numerics) == 0 {
				t.Fatalf("no numerics extracted from %q", tt.input)
			}
			n := cs.Numerics[0]
			if !almostEqual(n.Value, tt.value) {
				t.Errorf("value = %v, want %v", n.Value, tt.value)
			}
			if n.Unit != tt.unit {
				t.Errorf("unit = %v, want %v", n.Unit, tt.unit)
			}
			if n.Confidence != 0.95 {
				t.Errorf("confidence = %v, want 0.95", n.Confidence)
			}
		})
	}
}

func TestExtract_PercentStoredAsFraction(t *testing.T) {
	e := newTestExtractor()

	cs := e.Extract("Margins improved by 15% year over year.")
	if len(cs.Numerics) != 1 {
		t.Fatalf("numerics = %v, want exactly 1", cs.Numerics)
	}
	n := cs.Numerics[0]
	if !almostEqual(n.Value, 0.15) {
		t.Errorf("value = %v, want 0.15", n.Value)
	}
	if n.Unit != UnitPercent {
		t.Errorf("unit = %v, want percent", n.Unit)
	}
	if n.Confidence != 0.98 {
		t.Errorf("confidence = %v, want 0.98", n.Confidence)
	}
	if n.Value < 0 || n.Value > 1 {
		t.Errorf("percent value %v outside [0,1]", n.Value)
	}
}

func TestExtract_BareMagnitude(t *testing.T) {
	e := newTestExtractor()

	cs := e.Extract("The platform serves 3 million users.")
	if len(cs.Numerics) != 1 {
		t.Fatalf("numerics = %v, want exactly 1", cs.Numerics)
	}
	n := cs.Numerics[0]
	if !almostEqual(n.Value, 3e6) {
		t.Errorf("value = %v, want 3e6", n.Value)
	}
	if n.Unit != UnitNone {
		t.Errorf("unit = %v, want none", n.Unit)
	}
	if n.Confidence != 0.90 {
		t.Errorf("confidence = %v, want 0.90", n.Confidence)
	}
}

func TestExtract_CurrencyRuleWinsForDollarMillion(t *testing.T) {
	e := newTestExtractor()

	// "$5 million" must land on the currency rule first; the magnitude rule
	// then also fires on "5 million", but the currency value leads.
	cs := e.Extract("Revenue reached $5 million.")
	if len(cs.Numerics) == 0 {
		t.Fatal("no numerics extracted")
	}
	if cs.Numerics[0].Unit != UnitUSD {
		t.Errorf("first numeric unit = %v, want USD", cs.Numerics[0].Unit)
	}
	if !almostEqual(cs.Numerics[0].Value, 5e6) {
		t.Errorf("first numeric value = %v, want 5e6", cs.Numerics[0].Value)
	}
}

func TestExtract_Quarter(t *testing.T) {
	e := newTestExtractor()

	cs := e.Extract("Sales grew in Q3 2024.")
	if len(cs.Temporals) != 1 {
		t.Fatalf("temporals = %v, want exactly 1", cs.Temporals)
	}
	tv := cs.Temporals[0]
	wantStart := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, time.September, 30, 0, 0, 0, 0, time.UTC)
	if !tv.Start.Equal(wantStart) || !tv.End.Equal(wantEnd) {
		t.Errorf("range = [%v, %v], want [%v, %v]", tv.Start, tv.End, wantStart, wantEnd)
	}
	if tv.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", tv.Confidence)
	}
}

func TestExtract_YearSkippedInsideQuarter(t *testing.T) {
	e := newTestExtractor()

	// The 2024 in "Q3 2024" must not also be extracted as a bare year.
	cs := e.Extract("Sales grew in Q3 2024.")
	if len(cs.Temporals) != 1 {
		t.Fatalf("temporals = %d, want 1 (year must not double-count)", len(cs.Temporals))
	}
}

func TestExtract_BareYear(t *testing.T) {
	e := newTestExtractor()

	cs := e.Extract("Sales grew in 2024.")
	if len(cs.Temporals) != 1 {
		t.Fatalf("temporals = %v, want exactly 1", cs.Temporals)
	}
	tv := cs.Temporals[0]
	if !tv.Start.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v, want 2024-01-01", tv.Start)
	}
	if !tv.End.Equal(time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v, want 2024-12-31", tv.End)
	}
	if tv.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", tv.Confidence)
	}
}

func TestExtract_MonthYear(t *testing.T) {
	tests := []struct {
		input     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"The contract was signed in February 2024.",
			time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), // leap year
		},
		{
			"Headcount peaked in December 2023.",
			time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	e := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cs := e.Extract(tt.input)
			var monthly *TemporalValue
			for i := range cs.Temporals {
				if cs.Temporals[i].Confidence == 0.90 {
					monthly = &cs.Temporals[i]
					break
				}
			}
			if monthly == nil {
				t.Fatalf("no month-year temporal in %v", cs.Temporals)
			}
			if !monthly.Start.Equal(tt.wantStart) || !monthly.End.Equal(tt.wantEnd) {
				t.Errorf("range = [%v, %v], want [%v, %v]", monthly.Start, monthly.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestExtract_Polarity(t *testing.T) {
	tests := []struct {
		input string
		want  Polarity
	}{
		{"The company is profitable.", PolarityPositive},
		{"The company is not profitable.", PolarityNegative},
		{"The company isn't profitable.", PolarityNegative},
		{"It is not true that they never shipped.", PolarityPositive}, // double negation
		{"Results might improve next quarter.", PolarityUncertain},
		{"The launch could possibly slip.", PolarityUncertain},
		{"The team failed to deliver.", PolarityNegative},
	}

	e := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cs := e.Extract(tt.input)
			if cs.Polarity != tt.want {
				t.Errorf("polarity = %v, want %v (negations: %v)", cs.Polarity, tt.want, cs.NegationWords)
			}
		})
	}
}

func TestExtract_Confidence(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		input string
		want  float64
	}{
		// base + currency + quarter + subject, clamped to 0.95
		{"Revenue was $5M in Q3 2024.", 0.95},
		// base + subject only
		{"The company is profitable.", 0.75},
	}

	for _, tt := range tests {
		cs := e.Extract(tt.input)
		if !almostEqual(cs.ExtractionConfidence, tt.want) {
			t.Errorf("Extract(%q).ExtractionConfidence = %v, want %v", tt.input, cs.ExtractionConfidence, tt.want)
		}
		if cs.ExtractionConfidence < 0 || cs.ExtractionConfidence > 0.95 {
			t.Errorf("confidence %v outside [0, 0.95]", cs.ExtractionConfidence)
		}
	}
}

func TestExtract_NoTaggerStillWorks(t *testing.T) {
	e := NewExtractor(nil)

	cs := e.Extract("The company is profitable.")
	if cs.Subject != "" {
		t.Errorf("subject = %q, want empty without a tagger", cs.Subject)
	}
	if cs.Polarity != PolarityPositive {
		t.Errorf("polarity = %v, want positive", cs.Polarity)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	e := newTestExtractor()
	input := "Revenue was $5M in Q3 2024, not $6M."

	first := e.Extract(input)
	second := e.Extract(input)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extract not idempotent:\n%+v\n%+v", first, second)
	}
}
