package detectors

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloakstyle/cloak/internal/engine"
)

// Pre-compiled structured-PII patterns, applied case-insensitively across the
// whole unit of text. Order is fixed to keep detector output deterministic.
//
// PHONE: the opening `\(?` sits outside the `\b` so parenthesized numbers are
// consumed whole. A trailing digit can never satisfy the closing `\b`, which
// covers the lookahead the pattern would otherwise need (RE2 has none).
var rulePatterns = []struct {
	entityType string
	re         *regexp.Regexp
}{
	{engine.TypeEmail, regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{engine.TypePhone, regexp.MustCompile(`(?i)\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{engine.TypeSSN, regexp.MustCompile(`(?i)\b\d{3}-\d{2}-\d{4}\b`)},
	{engine.TypeCreditCard, regexp.MustCompile(`(?i)\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
	{engine.TypeIPAddress, regexp.MustCompile(`(?i)\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{engine.TypeURL, regexp.MustCompile(`(?i)https?://(?:[-\w.])+(?:[:\d]+)?(?:/(?:[\w/_.])*(?:\?(?:[\w&=%.])*)?(?:#(?:[\w.])*)?)?`)},
	{engine.TypeDate, regexp.MustCompile(`(?i)\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
	{engine.TypeZipCode, regexp.MustCompile(`(?i)\b\d{5}(?:-\d{4})?\b`)},
}

// validators gate pattern matches for types where the regex alone is too
// permissive. A match failing validation is discarded silently — it is a
// false positive of the pattern, not an error.
var validators = map[string]func(string) bool{
	engine.TypeCreditCard: LuhnValid,
	engine.TypeIPAddress:  ValidIPv4,
	engine.TypeSSN:        ValidSSN,
}

// RuleDetector finds structured PII with regular expressions plus checksum
// and range validators. All findings carry confidence 1.0.
type RuleDetector struct {
	enabled engine.TypeSet
}

// NewRuleDetector creates a rule detector restricted to the given entity
// types; an empty list enables every pattern.
func NewRuleDetector(enabledTypes []string) *RuleDetector {
	return &RuleDetector{enabled: engine.NewTypeSet(enabledTypes)}
}

func (d *RuleDetector) Name() string {
	return "rule_based"
}

func (d *RuleDetector) Detect(ctx context.Context, text string) ([]engine.Entity, error) {
	var entities []engine.Entity
	for _, p := range rulePatterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.enabled.Allows(p.entityType) {
			continue
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if validate, ok := validators[p.entityType]; ok && !validate(value) {
				continue
			}
			entities = append(entities, engine.Entity{
				Type:       p.entityType,
				Value:      value,
				Start:      loc[0],
				End:        loc[1],
				Confidence: 1.0,
				Method:     engine.MethodRuleBased,
				Status:     engine.StatusAutoMasked,
			})
		}
	}
	return entities, nil
}

// LuhnValid reports whether the value is a plausible card number: 13 to 19
// digits after stripping dashes and spaces, passing the Luhn checksum. Any
// other character fails closed.
func LuhnValid(value string) bool {
	stripped := strings.NewReplacer("-", "", " ", "").Replace(value)
	if len(stripped) < 13 || len(stripped) > 19 {
		return false
	}

	checksum := 0
	for i := 0; i < len(stripped); i++ {
		c := stripped[len(stripped)-1-i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		checksum += digit
	}
	return checksum%10 == 0
}

// ValidIPv4 requires exactly four dot-separated segments, each an integer in
// [0, 255].
func ValidIPv4(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

// ValidSSN rejects the known-invalid SSN ranges: all-zero, 666 or 9xx area,
// 00 group, 0000 serial.
func ValidSSN(value string) bool {
	digits := strings.ReplaceAll(value, "-", "")
	if len(digits) != 9 {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	area, group, serial := digits[:3], digits[3:5], digits[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}
