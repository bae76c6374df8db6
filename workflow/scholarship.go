package workflow

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var defaultScholarshipKeywords = []string{
	"scholarship",
	"bursary",
	"grant",
	"sponsored",
	"sponsorship",
	"financial aid",
	"ทุนการศึกษา",
	"ทุน",
}

// Phrases that mean the note talks about paying in parts, not about a donor.
var scholarshipExclusions = []string{
	"installment",
	"instalment",
	"next payment",
	"partial payment",
	"balance due",
	"remaining balance",
	"ผ่อน",
}

// ScholarshipDetector flags receipts funded by a scholarship rather than by
// the student.
type ScholarshipDetector struct {
	keywords   []scholarshipKeyword
	exclusions []string
}

type scholarshipKeyword struct {
	word string
	re   *regexp.Regexp
}

// keywordPattern matches k as a whole word, plural allowed. RE2 word
// boundaries are ASCII only, so Thai keywords match anywhere.
func keywordPattern(k string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(k)
	for i := 0; i < len(k); i++ {
		if k[i] >= utf8.RuneSelf {
			return regexp.MustCompile(quoted)
		}
	}
	return regexp.MustCompile(`\b` + quoted + `s?\b`)
}

// NewScholarshipDetector uses the built-in keywords plus extra.
func NewScholarshipDetector(extra ...string) *ScholarshipDetector {
	d := &ScholarshipDetector{exclusions: scholarshipExclusions}
	for _, k := range append(append([]string(nil), defaultScholarshipKeywords...), extra...) {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			d.keywords = append(d.keywords, scholarshipKeyword{word: k, re: keywordPattern(k)})
		}
	}
	return d
}

// Detect returns whether note marks a scholarship and the keyword or
// exclusion that decided it.
func (d *ScholarshipDetector) Detect(note string) (bool, string) {
	text := strings.ToLower(strings.Join(strings.Fields(note), " "))
	if text == "" {
		return false, ""
	}
	keyword := ""
	for _, k := range d.keywords {
		if k.re.MatchString(text) {
			keyword = k.word
			break
		}
	}
	if keyword == "" {
		return false, ""
	}
	for _, ex := range d.exclusions {
		if strings.Contains(text, ex) {
			return false, ex
		}
	}
	return true, keyword
}
