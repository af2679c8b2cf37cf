package restriction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gpu-booking-backend/internal/parse"
)

// Type is the kind of a restriction rule.
type Type string

const (
	TypeYearLimit  Type = "year_limit"
	TypeUsageLimit Type = "usage_limit"
)

// Valid reports whether t is a known rule type.
func (t Type) Valid() bool {
	return t == TypeYearLimit || t == TypeUsageLimit
}

// Operator compares a user's enrollment year against a rule's target year.
type Operator string

const (
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpGTE Operator = "gte"
	OpGT  Operator = "gt"
)

// Valid reports whether op is one of the five supported comparisons.
func (op Operator) Valid() bool {
	switch op {
	case OpLT, OpLTE, OpEQ, OpGTE, OpGT:
		return true
	}
	return false
}

// Payload is the type-specific body of a rule. It is either YearLimit or UsageLimit.
type Payload interface {
	Type() Type
	// Validate enforces the constraints checked before a rule is persisted.
	Validate() error
	// Describe returns the human-readable policy text shown to users.
	Describe() string
}

// YearLimit blocks users whose enrollment year satisfies Operator against TargetYear.
type YearLimit struct {
	Operator    Operator `json:"operator"`
	TargetYear  int      `json:"target_year"`
	Description string   `json:"description,omitempty"`
}

func (YearLimit) Type() Type { return TypeYearLimit }

func (y YearLimit) Validate() error {
	v := &ValidationError{}
	if !y.Operator.Valid() {
		v.add("operator", fmt.Sprintf("must be one of lt, lte, eq, gte, gt (got %q)", y.Operator))
	}
	if !parse.ValidYear(y.TargetYear) {
		v.add("target_year", fmt.Sprintf("must be between %d and %d", parse.MinEnrollmentYear, parse.MaxEnrollmentYear))
	}
	return v.orNil()
}

// Describe returns the rule's own description, or the standard message for its operator.
func (y YearLimit) Describe() string {
	if d := strings.TrimSpace(y.Description); d != "" {
		return d
	}
	switch y.Operator {
	case OpGT, OpGTE:
		return fmt.Sprintf("限制民國%d年以後入學的用戶使用", y.TargetYear)
	case OpLT, OpLTE:
		return fmt.Sprintf("限制民國%d年以前入學的用戶使用", y.TargetYear)
	default:
		return fmt.Sprintf("限制民國%d年入學的用戶使用", y.TargetYear)
	}
}

// UsageLimit allows at most MaxBookings of a user's bookings in any WindowSize consecutive slots.
type UsageLimit struct {
	WindowSize  int    `json:"window_size"`
	MaxBookings int    `json:"max_bookings"`
	Description string `json:"description,omitempty"`
}

func (UsageLimit) Type() Type { return TypeUsageLimit }

func (u UsageLimit) Validate() error {
	v := &ValidationError{}
	if u.WindowSize < 1 {
		v.add("window_size", "must be at least 1")
	}
	if u.MaxBookings < 1 {
		v.add("max_bookings", "must be at least 1")
	} else if u.MaxBookings >= u.WindowSize {
		v.add("max_bookings", "must be less than window_size")
	}
	return v.orNil()
}

// Describe always uses the standard wording so every surface shows the same policy text.
func (u UsageLimit) Describe() string {
	return fmt.Sprintf("任意連續%d個時段內，最多只能預約%d次", u.WindowSize, u.MaxBookings)
}

// Rule is a restriction attached to one machine.
type Rule struct {
	ID        int64
	MachineID int64
	Payload   Payload
	IsActive  bool
	StartTime *time.Time
	EndTime   *time.Time
}

// Type returns the rule type carried by the payload.
func (r Rule) Type() Type {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Type()
}

// IsActiveNow reports whether the rule is enabled and now falls inside each bound that is set.
func IsActiveNow(r Rule, now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.StartTime != nil && now.Before(*r.StartTime) {
		return false
	}
	if r.EndTime != nil && now.After(*r.EndTime) {
		return false
	}
	return true
}

// ParseError reports a stored payload that cannot be read as its declared type.
type ParseError struct {
	Type Type
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("restriction: invalid %s payload: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError lists the payload fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "restriction: validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

var errUnknownType = errors.New("unknown rule type")

// usageWire accepts both the rolling-window payload and the older cooldown form.
type usageWire struct {
	WindowSize          *int     `json:"window_size"`
	MaxBookings         *int     `json:"max_bookings"`
	Description         string   `json:"description"`
	MaxUsages           *int     `json:"max_usages"`
	CooldownPeriodSlots *int     `json:"cooldown_period_slots"`
	CooldownPeriodHours *float64 `json:"cooldown_period_hours"`
}

// DecodePayload reads a stored payload. Legacy cooldown payloads are converted
// to their rolling-window equivalent. Any failure is a *ParseError.
func DecodePayload(t Type, raw []byte) (Payload, error) {
	p, _, err := Upgrade(t, raw)
	return p, err
}

// Upgrade is DecodePayload that also reports whether raw was in the legacy
// cooldown form and therefore needs rewriting.
func Upgrade(t Type, raw []byte) (p Payload, legacy bool, err error) {
	switch t {
	case TypeYearLimit:
		var y YearLimit
		if err := strictUnmarshal(raw, &y); err != nil {
			return nil, false, &ParseError{Type: t, Err: err}
		}
		p = y
	case TypeUsageLimit:
		var w usageWire
		if err := strictUnmarshal(raw, &w); err != nil {
			return nil, false, &ParseError{Type: t, Err: err}
		}
		p, legacy, err = w.toUsageLimit()
		if err != nil {
			return nil, false, &ParseError{Type: t, Err: err}
		}
	default:
		return nil, false, &ParseError{Type: t, Err: errUnknownType}
	}
	if err := p.Validate(); err != nil {
		return nil, false, &ParseError{Type: t, Err: err}
	}
	return p, legacy, nil
}

func (w usageWire) toUsageLimit() (UsageLimit, bool, error) {
	if w.WindowSize != nil || w.MaxBookings != nil {
		if w.WindowSize == nil || w.MaxBookings == nil {
			return UsageLimit{}, false, errors.New("window_size and max_bookings are both required")
		}
		return UsageLimit{WindowSize: *w.WindowSize, MaxBookings: *w.MaxBookings, Description: w.Description}, false, nil
	}
	if w.MaxUsages == nil {
		return UsageLimit{}, false, errors.New("missing window_size and max_bookings")
	}

	var cooldown int
	switch {
	case w.CooldownPeriodSlots != nil:
		cooldown = *w.CooldownPeriodSlots
	case w.CooldownPeriodHours != nil:
		cooldown = int(math.Ceil(*w.CooldownPeriodHours / 4))
	default:
		return UsageLimit{}, false, errors.New("legacy payload without cooldown period")
	}
	return UsageLimit{
		WindowSize:  *w.MaxUsages + cooldown,
		MaxBookings: *w.MaxUsages,
		Description: w.Description,
	}, true, nil
}

func strictUnmarshal(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return errors.New("payload must be a JSON object")
	}
	return json.Unmarshal(raw, v)
}

// EncodePayload serializes p for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, errors.New("restriction: nil payload")
	}
	return json.Marshal(p)
}
