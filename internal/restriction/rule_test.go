package restriction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	testCases := []struct {
		name      string
		typ       Type
		raw       string
		expected  Payload
		legacy    bool
		expectErr bool
	}{
		{
			name:     "Year limit",
			typ:      TypeYearLimit,
			raw:      `{"operator":"lte","target_year":113}`,
			expected: YearLimit{Operator: OpLTE, TargetYear: 113},
		},
		{
			name:     "Year limit with description",
			typ:      TypeYearLimit,
			raw:      `{"operator":"lt","target_year":110,"description":"限大三以上"}`,
			expected: YearLimit{Operator: OpLT, TargetYear: 110, Description: "限大三以上"},
		},
		{
			name:     "Rolling window",
			typ:      TypeUsageLimit,
			raw:      `{"restriction_type":"rolling_window_limit","window_size":30,"max_bookings":18}`,
			expected: UsageLimit{WindowSize: 30, MaxBookings: 18},
		},
		{
			name:     "Legacy cooldown slots",
			typ:      TypeUsageLimit,
			raw:      `{"max_usages":3,"cooldown_period_slots":6}`,
			expected: UsageLimit{WindowSize: 9, MaxBookings: 3},
			legacy:   true,
		},
		{
			name:     "Legacy cooldown hours rounds up",
			typ:      TypeUsageLimit,
			raw:      `{"max_usages":2,"cooldown_period_hours":10}`,
			expected: UsageLimit{WindowSize: 5, MaxBookings: 2},
			legacy:   true,
		},
		{name: "Legacy without cooldown", typ: TypeUsageLimit, raw: `{"max_usages":2}`, expectErr: true},
		{name: "Legacy zero cooldown", typ: TypeUsageLimit, raw: `{"max_usages":2,"cooldown_period_slots":0}`, expectErr: true},
		{name: "Window not larger than max", typ: TypeUsageLimit, raw: `{"window_size":12,"max_bookings":12}`, expectErr: true},
		{name: "Missing max", typ: TypeUsageLimit, raw: `{"window_size":12}`, expectErr: true},
		{name: "Unknown operator", typ: TypeYearLimit, raw: `{"operator":"ne","target_year":110}`, expectErr: true},
		{name: "Year out of range", typ: TypeYearLimit, raw: `{"operator":"lt","target_year":2024}`, expectErr: true},
		{name: "Not an object", typ: TypeYearLimit, raw: `"lt 110"`, expectErr: true},
		{name: "Broken JSON", typ: TypeUsageLimit, raw: `{"window_size":`, expectErr: true},
		{name: "Wrong field type", typ: TypeUsageLimit, raw: `{"window_size":"13","max_bookings":12}`, expectErr: true},
		{name: "Unknown type", typ: Type("email_pattern"), raw: `{"pattern":"*@ntub.edu.tw"}`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, legacy, err := Upgrade(tc.typ, []byte(tc.raw))
			if tc.expectErr {
				var pe *ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tc.typ, pe.Type)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p)
			assert.Equal(t, tc.legacy, legacy)
		})
	}
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	raw, err := EncodePayload(UsageLimit{WindowSize: 13, MaxBookings: 12})
	require.NoError(t, err)
	assert.JSONEq(t, `{"window_size":13,"max_bookings":12}`, string(raw))

	p, err := DecodePayload(TypeUsageLimit, raw)
	require.NoError(t, err)
	assert.Equal(t, UsageLimit{WindowSize: 13, MaxBookings: 12}, p)

	_, err = EncodePayload(nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	err := UsageLimit{WindowSize: 0, MaxBookings: 0}.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "window_size")
	assert.Contains(t, ve.Fields, "max_bookings")

	err = UsageLimit{WindowSize: 5, MaxBookings: 5}.Validate()
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be less than window_size", ve.Fields["max_bookings"])

	assert.NoError(t, UsageLimit{WindowSize: 2, MaxBookings: 1}.Validate())

	err = YearLimit{Operator: "between", TargetYear: 96}.Validate()
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, err.Error(), "operator")

	assert.NoError(t, YearLimit{Operator: OpEQ, TargetYear: 97}.Validate())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "限制民國110年以前入學的用戶使用", YearLimit{Operator: OpLT, TargetYear: 110}.Describe())
	assert.Equal(t, "限制民國113年以前入學的用戶使用", YearLimit{Operator: OpLTE, TargetYear: 113}.Describe())
	assert.Equal(t, "限制民國110年以後入學的用戶使用", YearLimit{Operator: OpGTE, TargetYear: 110}.Describe())
	assert.Equal(t, "限制民國112年入學的用戶使用", YearLimit{Operator: OpEQ, TargetYear: 112}.Describe())
	assert.Equal(t, "僅限碩班", YearLimit{Operator: OpEQ, TargetYear: 112, Description: " 僅限碩班 "}.Describe())
	assert.Equal(t, "任意連續13個時段內，最多只能預約12次", UsageLimit{WindowSize: 13, MaxBookings: 12, Description: "ignored"}.Describe())
}

func TestIsActiveNow(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	testCases := []struct {
		name     string
		rule     Rule
		expected bool
	}{
		{name: "Inactive flag", rule: Rule{IsActive: false}, expected: false},
		{name: "No bounds", rule: Rule{IsActive: true}, expected: true},
		{name: "Inside window", rule: Rule{IsActive: true, StartTime: &before, EndTime: &after}, expected: true},
		{name: "Not started", rule: Rule{IsActive: true, StartTime: &after}, expected: false},
		{name: "Ended", rule: Rule{IsActive: true, EndTime: &before}, expected: false},
		{name: "Only start set", rule: Rule{IsActive: true, StartTime: &before}, expected: true},
		{name: "Only end set", rule: Rule{IsActive: true, EndTime: &after}, expected: true},
		{name: "Start equals now", rule: Rule{IsActive: true, StartTime: &now}, expected: true},
		{name: "End equals now", rule: Rule{IsActive: true, EndTime: &now}, expected: true},
		{name: "Inactive inside window", rule: Rule{IsActive: false, StartTime: &before, EndTime: &after}, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsActiveNow(tc.rule, now))
		})
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	_, err := DecodePayload(TypeYearLimit, []byte(`{"operator":"lt","target_year":12}`))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "invalid year_limit payload")
}
