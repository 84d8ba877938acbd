package intent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	studentNoPattern = regexp.MustCompile(`\b(\d{2,12})\b`)
	onlyDigits       = regexp.MustCompile(`^\s*\d{2,12}\s*$`)
)

// keyword groups in precedence order; the first group with a hit wins.
var keywordRules = []struct {
	intent   Intent
	keywords []string
}{
	{UnpaidTuition, []string{"ödenmemiş", "unpaid"}},
	{PayTuition, []string{"öde", "ödeme", "pay"}},
	{QueryTuition, []string{"harç", "harc", "tuition"}},
}

// ExtractStudentNo returns the first standalone run of 2 to 12 digits, or "".
func ExtractStudentNo(text string) string {
	if m := studentNoPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// IsOnlyStudentNo reports whether text is nothing but 2 to 12 digits, with
// optional surrounding whitespace.
func IsOnlyStudentNo(text string) bool {
	return onlyDigits.MatchString(text)
}

// KeywordParser matches Turkish and English keywords.
//
// Text is folded twice, with Turkish rules (İ→i, I→ı) and with root rules
// (I→i), and a keyword matches under either. That way both "HARÇ" and
// "UNPAID" are recognized whatever the writer's keyboard.
type KeywordParser struct{}

// NewKeywordParser creates a KeywordParser.
func NewKeywordParser() *KeywordParser {
	return &KeywordParser{}
}

// Match returns the parsed intent and true when a keyword is present.
func (k *KeywordParser) Match(text string) (ParsedIntent, bool) {
	nfc := norm.NFC.String(text)
	// A Caser keeps state between calls, so each call gets its own.
	folded := []string{
		cases.Lower(language.Turkish).String(nfc),
		cases.Lower(language.Und).String(nfc),
	}

	for _, rule := range keywordRules {
		if !containsAny(folded, rule.keywords) {
			continue
		}
		p := ParsedIntent{Intent: rule.intent}
		if rule.intent.NeedsStudentNo() {
			p.StudentNo = ExtractStudentNo(nfc)
		}
		return Normalize(p), true
	}
	return ParsedIntent{}, false
}

// Parse is Match with an UNKNOWN result when nothing matches.
func (k *KeywordParser) Parse(text string) ParsedIntent {
	if p, ok := k.Match(text); ok {
		return p
	}
	return Normalize(ParsedIntent{Intent: Unknown})
}

func containsAny(haystacks, needles []string) bool {
	for _, h := range haystacks {
		for _, n := range needles {
			if strings.Contains(h, n) {
				return true
			}
		}
	}
	return false
}
