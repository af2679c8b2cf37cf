package restriction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gpu-booking-backend/internal/parse"
)

func TestEvaluateYearLimit(t *testing.T) {
	testCases := []struct {
		name     string
		limit    YearLimit
		year     int
		ok       bool
		expected Outcome
	}{
		{name: "lte below", limit: YearLimit{Operator: OpLTE, TargetYear: 113}, year: 110, ok: true, expected: Matched},
		{name: "lte equal", limit: YearLimit{Operator: OpLTE, TargetYear: 113}, year: 113, ok: true, expected: Matched},
		{name: "lte above", limit: YearLimit{Operator: OpLTE, TargetYear: 113}, year: 114, ok: true, expected: NotMatched},
		{name: "lt equal", limit: YearLimit{Operator: OpLT, TargetYear: 110}, year: 110, ok: true, expected: NotMatched},
		{name: "lt below", limit: YearLimit{Operator: OpLT, TargetYear: 110}, year: 105, ok: true, expected: Matched},
		{name: "eq", limit: YearLimit{Operator: OpEQ, TargetYear: 112}, year: 112, ok: true, expected: Matched},
		{name: "eq other", limit: YearLimit{Operator: OpEQ, TargetYear: 112}, year: 111, ok: true, expected: NotMatched},
		{name: "gte equal", limit: YearLimit{Operator: OpGTE, TargetYear: 112}, year: 112, ok: true, expected: Matched},
		{name: "gt equal", limit: YearLimit{Operator: OpGT, TargetYear: 112}, year: 112, ok: true, expected: NotMatched},
		{name: "gt above", limit: YearLimit{Operator: OpGT, TargetYear: 112}, year: 113, ok: true, expected: Matched},
		{name: "no year", limit: YearLimit{Operator: OpGTE, TargetYear: 97}, year: 0, ok: false, expected: NotMatched},
		{name: "unknown operator", limit: YearLimit{Operator: "ne", TargetYear: 110}, year: 105, ok: true, expected: NotMatched},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EvaluateYearLimit(tc.limit, tc.year, tc.ok))
		})
	}
}

func TestEvaluateYearLimitFromEmail(t *testing.T) {
	limit := YearLimit{Operator: OpLTE, TargetYear: 113}

	year, ok := parse.ExtractYear("11046001@ntub.edu.tw")
	assert.Equal(t, Matched, EvaluateYearLimit(limit, year, ok))

	year, ok = parse.ExtractYear("11446001@ntub.edu.tw")
	assert.Equal(t, NotMatched, EvaluateYearLimit(limit, year, ok))

	year, ok = parse.ExtractYear("professor@ntub.edu.tw")
	assert.Equal(t, NotMatched, EvaluateYearLimit(limit, year, ok))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "matched", Matched.String())
	assert.Equal(t, "not_matched", NotMatched.String())
}
