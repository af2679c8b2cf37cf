package booking

import "strings"

// AnonymousName is shown for bookers without a stored name.
const AnonymousName = "匿名用戶"

// MaskName hides all but the first and last character of a display name,
// e.g. 張三由 becomes 張O由 and 李四 becomes 李O.
func MaskName(name string) string {
	r := []rune(strings.TrimSpace(name))
	switch len(r) {
	case 0:
		return AnonymousName
	case 1:
		return string(r) + "O"
	case 2:
		return string(r[0]) + "O"
	}
	return string(r[0]) + "O" + string(r[len(r)-1])
}

// MaskEmail keeps the first three characters of the local part and the domain.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}
	r := []rune(local)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r) + "***@" + domain
}

// NormalizeEmail trims and lowercases an address before it is compared or stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
