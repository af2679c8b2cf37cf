package parse

import (
	"regexp"
	"strconv"
	"strings"
)

// 學號格式：可選的單一英文字母 + 三位數民國入學年，例如 110xxxx 或 e110xxxx
var yearRe = regexp.MustCompile(`^[a-zA-Z]?(\d{3})`)

const (
	MinEnrollmentYear = 97
	MaxEnrollmentYear = 189
)

// ExtractYear derives the enrollment year (ROC calendar) from the local part of email.
// ok is false when the address carries no year in the valid range.
func ExtractYear(email string) (year int, ok bool) {
	local := strings.TrimSpace(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}

	m := yearRe.FindStringSubmatch(local)
	if len(m) != 2 {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if !ValidYear(y) {
		return 0, false
	}
	return y, true
}

// ValidYear reports whether y is inside the institution's year numbering range.
func ValidYear(y int) bool {
	return y >= MinEnrollmentYear && y <= MaxEnrollmentYear
}
