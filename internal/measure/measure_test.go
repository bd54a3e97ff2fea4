package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/labexam-cli/internal/model"
)

// --- ParseDecimal ---

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		sep  string
		want float64
	}{
		{"180", SeparatorComma, 180},
		{"5,7", SeparatorComma, 5.7},
		{"151.000", SeparatorComma, 151000},
		{"1.234,5", SeparatorComma, 1234.5},
		{"1.30", SeparatorDot, 1.3},
		{"1,234.5", SeparatorDot, 1234.5},
		{"< 0,5", SeparatorComma, 0.5},
		{"0,70", SeparatorAuto, 0.7},
		{"1.30", SeparatorAuto, 1.3},
		{"1.234,5", SeparatorAuto, 1234.5},
		{"1,234.5", SeparatorAuto, 1234.5},
		{"1.500.000", SeparatorAuto, 1500000},
		{"151.000", SeparatorAuto, 151000},
		{"4,500", SeparatorAuto, 4500},
		{"0.500", SeparatorAuto, 0.5},
		{"1.3", SeparatorAuto, 1.3},
		{"12,75", SeparatorAuto, 12.75},
		{"< 0.5", SeparatorAuto, 0.5},
		{"95", SeparatorAuto, 95},
	}
	for _, tt := range tests {
		got, err := ParseDecimal(tt.in, tt.sep)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestParseDecimal_Invalid(t *testing.T) {
	for _, in := range []string{"", "1,2,3", "abc", "<"} {
		_, err := ParseDecimal(in, SeparatorComma)
		assert.Error(t, err, in)
	}
	_, err := ParseDecimal("1.2.3", SeparatorDot)
	assert.Error(t, err)
	_, err = ParseDecimal("1,2,3", SeparatorAuto)
	assert.Error(t, err)
}

func TestIsCensored(t *testing.T) {
	assert.True(t, IsCensored("< 0,5"))
	assert.True(t, IsCensored(">90"))
	assert.False(t, IsCensored("90"))
}

// --- ParseRange ---

func TestParseRange(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		text string
		want Range
	}{
		{"70-99", Range{Min: f(70), Max: f(99)}},
		{"VR: 70 a 99 mg/dL", Range{Min: f(70), Max: f(99)}},
		{"3,5 até 5,1", Range{Min: f(3.5), Max: f(5.1)}},
		{"Desejável: < 190", Range{Max: f(190)}},
		{"Até 5,7%", Range{Max: f(5.7)}},
		{"Inferior a 40", Range{Max: f(40)}},
		{"Superior a 60", Range{Min: f(60)}},
		{"> 30 ng/mL", Range{Min: f(30)}},
	}
	for _, tt := range tests {
		got, ok := ParseRange(tt.text, SeparatorComma)
		require.True(t, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestParseRange_NoRange(t *testing.T) {
	for _, text := range []string{"", "Negativo", "vide laudo"} {
		_, ok := ParseRange(text, SeparatorComma)
		assert.False(t, ok, text)
	}
}

func TestRange_Classify(t *testing.T) {
	lo, hi := 70.0, 99.0
	r := Range{Min: &lo, Max: &hi}

	for _, v := range []float64{-1, 0, 69.99, 70, 85, 99, 99.01, 180} {
		altered, alert := r.Classify(v)
		assert.Equal(t, v < lo || v > hi, altered, v)
		switch {
		case v > hi:
			assert.Equal(t, model.AlertHigh, alert)
		case v < lo:
			assert.Equal(t, model.AlertLow, alert)
		default:
			assert.Empty(t, alert)
		}
	}

	upper := Range{Max: &hi}
	altered, alert := upper.Classify(10)
	assert.False(t, altered)
	assert.Empty(t, alert)
}

// --- Units ---

func TestSameUnit(t *testing.T) {
	assert.True(t, SameUnit("µg/dL", "ug/dl"))
	assert.True(t, SameUnit("mg/dL", ""))
	assert.True(t, SameUnit("/mm³", "/mm3"))
	assert.False(t, SameUnit("mg/dL", "mmol/L"))
}
