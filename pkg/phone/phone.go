// Package phone classifies dialed numbers into country display names.
//
// Upstream report rows carry numbers in wildly mixed formats: E.164 with or
// without "+", "00" international prefixes, local formats with trunk zeroes,
// and bare internal extensions. Classification runs cheap prefix and length
// rules first and only falls back to full E.164 parsing for the long tail.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"telegraph/pkg/countries"
)

// Gulf-region operators dominate the traffic this service sees, so the most
// common calling codes resolve through this table without a parser round-trip.
// Keys must be ordered longest-first at lookup time.
var dialPrefixes = map[string]string{
	"971": "UAE",
	"966": "KSA",
	"965": "Kuwait",
	"968": "Oman",
	"973": "Bahrain",
	"974": "Qatar",
	"962": "Jordan",
	"961": "Lebanon",
	"20":  "Egypt",
	"91":  "India",
	"92":  "Pakistan",
	"94":  "Sri Lanka",
	"63":  "Philippines",
	"44":  "UK",
	"49":  "Germany",
	"33":  "France",
	"7":   "Russia",
	"1":   "USA/Canada",
}

// Country returns a display name for the country a number dials into, or ""
// when the number is unclassifiable. Numbers with at most 4 digits are
// internal extensions and never classified.
func Country(number string) string {
	digits := cleanDigits(number)
	if len(digits) <= 4 {
		return ""
	}

	// "00" is the common international dial prefix in upstream rows.
	international := strings.HasPrefix(number, "+") || strings.HasPrefix(digits, "00")
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) <= 4 {
		return ""
	}

	if !international {
		if name := localRule(digits); name != "" {
			return name
		}
	}

	// Longest calling-code prefix wins.
	for _, width := range []int{3, 2, 1} {
		if len(digits) < width {
			continue
		}
		if name, ok := dialPrefixes[digits[:width]]; ok {
			return name
		}
	}

	return parseE164(digits)
}

// localRule matches national formats dialed with a trunk zero. The upstream
// PBX tenants are UAE-based, so a trunk-zero number is a UAE national number.
func localRule(digits string) string {
	if !strings.HasPrefix(digits, "0") {
		return ""
	}
	// 05x xxx xxxx mobile, 0x xxx xxxx landline.
	if strings.HasPrefix(digits, "05") && len(digits) == 10 {
		return "UAE"
	}
	if len(digits) == 9 {
		return "UAE"
	}
	return ""
}

// parseE164 is the last resort: treat the digits as an international number
// and let the parser decide. Unparseable input yields "".
func parseE164(digits string) string {
	num, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if region == "" || region == "ZZ" {
		return ""
	}
	return countries.Name(region)
}

func cleanDigits(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
