// Package notes extracts structured financial adjustments from the free-text
// notes clerks wrote on legacy receipts.
package notes

import (
	"fmt"
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
	"bitbucket.org/mmdatafocus/ledger_rebuild/utils"
	"github.com/shopspring/decimal"
)

// Parser is stateless after construction and safe for concurrent use.
//
// Parsing runs in three stages over the normalized note:
//  1. final-amount phrases ("pay only $X") short-circuit everything else;
//  2. discount keywords yield candidates of which only the largest survives;
//  3. fee keywords all survive unless they duplicate an already kept fee.
//
// Every number in the note belongs to at most one keyword: when several
// keywords reach the same number, the closest one claims it.
type Parser struct {
	// FeeDedupeTolerance is the maximum value difference of two fees that
	// cover the same stretch of the note and count once.
	FeeDedupeTolerance decimal.Decimal
}

func NewParser() *Parser {
	return &Parser{
		FeeDedupeTolerance: utils.MoneyTolerance,
	}
}

type match struct {
	fee       bool
	catIdx    int
	cat       category
	form      ruleForm
	value     decimal.Decimal
	numberPos int
	gap       int
	start     int
	end       int
	text      string
}

func (m match) label() string {
	if m.form.percentage() {
		return fmt.Sprintf("%s %s%% (%s)", m.cat.glType, m.value.String(), m.form)
	}
	return fmt.Sprintf("%s %s (%s)", m.cat.glType, m.value.StringFixed(2), m.form)
}

func (m match) adjustment(original decimal.Decimal) models.FinancialAdjustment {
	adj := models.FinancialAdjustment{
		Kind:       m.cat.kind,
		GLType:     m.cat.glType,
		ValueType:  models.ValueTypeFixed,
		Value:      m.value,
		SourceText: m.text,
		Start:      m.start,
		End:        m.end,
	}
	if m.form.percentage() {
		adj.ValueType = models.ValueTypePercentage
	}
	adj.ComputedAmount = adj.AmountAgainst(original)
	return adj
}

// Parse returns the adjustments found in note and a human-readable trace of
// every match, rejection and running total. It never fails: notes with
// nothing recognizable yield no adjustments.
func (p *Parser) Parse(note string, originalAmount decimal.Decimal) ([]models.FinancialAdjustment, []string) {
	if models.IsNullLike(note) {
		return nil, []string{"note empty: no adjustments"}
	}
	text := normalize(note)
	trace := []string{fmt.Sprintf("note: %q", text)}

	if adj, ok := p.finalAmount(text, originalAmount, &trace); ok {
		trace = append(trace, fmt.Sprintf("special arrangement %s overrides all other patterns", adj.ComputedAmount.StringFixed(2)))
		return []models.FinancialAdjustment{adj}, trace
	}

	matches := p.resolveOwnership(p.scan(text, &trace), &trace)

	var adjustments []models.FinancialAdjustment
	discount, hasDiscount := p.selectDiscount(text, matches, originalAmount, &trace)
	if hasDiscount {
		adjustments = append(adjustments, discount)
	}
	fees := p.collectFees(matches, originalAmount, &trace)
	adjustments = append(adjustments, fees...)

	running := originalAmount
	if hasDiscount {
		running = utils.ClampZero(running.Sub(discount.ComputedAmount))
		trace = append(trace, fmt.Sprintf("running: %s - discount %s = %s",
			originalAmount.StringFixed(2), discount.ComputedAmount.StringFixed(2), running.StringFixed(2)))
	}
	for _, fee := range fees {
		amount := fee.AmountAgainst(running)
		next := utils.ClampZero(running.Add(amount))
		trace = append(trace, fmt.Sprintf("running: %s + %s %s = %s",
			running.StringFixed(2), fee.GLType, amount.StringFixed(2), next.StringFixed(2)))
		running = next
	}
	if len(adjustments) == 0 {
		trace = append(trace, "no adjustments recognized")
	}
	return adjustments, trace
}

func normalize(note string) string {
	return strings.ToLower(strings.Join(strings.Fields(note), " "))
}

func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

func (p *Parser) finalAmount(text string, original decimal.Decimal, trace *[]string) (models.FinancialAdjustment, bool) {
	type finalMatch struct {
		rule       string
		start, end int
		amount     decimal.Decimal
	}
	var found []finalMatch
	for _, rule := range finalRules {
		for _, loc := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			amount, err := parseNumber(text[loc[2]:loc[3]])
			if err != nil {
				continue
			}
			found = append(found, finalMatch{rule: rule.name, start: loc[0], end: loc[1], amount: amount})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })

	for _, f := range found {
		if f.amount.GreaterThan(original) {
			*trace = append(*trace, fmt.Sprintf("final amount %q: %s exceeds original %s, ignored",
				text[f.start:f.end], f.amount.StringFixed(2), original.StringFixed(2)))
			continue
		}
		reduction := original.Sub(f.amount)
		*trace = append(*trace, fmt.Sprintf("final amount %q (%s): pay %s of %s",
			text[f.start:f.end], f.rule, f.amount.StringFixed(2), original.StringFixed(2)))
		return models.FinancialAdjustment{
			Kind:           models.AdjustmentKindSpecialArrangement,
			GLType:         models.GLTypeSpecialArrangement,
			ValueType:      models.ValueTypeFixed,
			Value:          reduction,
			ComputedAmount: reduction,
			SourceText:     text[f.start:f.end],
			Start:          f.start,
			End:            f.end,
		}, true
	}
	return models.FinancialAdjustment{}, false
}

// scan runs every discount and fee form over text.
func (p *Parser) scan(text string, trace *[]string) []match {
	var out []match
	families := []struct {
		fee  bool
		cats []category
	}{
		{false, discountCategories},
		{true, feeCategories},
	}
	for _, family := range families {
		for ci, cat := range family.cats {
			for _, form := range cat.forms {
				for _, loc := range form.re.FindAllStringSubmatchIndex(text, -1) {
					m, ok := p.toMatch(text, loc, form.form)
					if !ok {
						continue
					}
					m.fee = family.fee
					m.catIdx = ci
					m.cat = cat
					if m.form.percentage() && (!m.value.IsPositive() || m.value.GreaterThan(utils.DecimalHundred)) {
						*trace = append(*trace, fmt.Sprintf("rejected %q: percentage %s outside (0,100]", m.text, m.value.String()))
						continue
					}
					if !m.value.IsPositive() {
						*trace = append(*trace, fmt.Sprintf("rejected %q: non-positive amount", m.text))
						continue
					}
					out = append(out, m)
				}
			}
		}
	}
	return out
}

// toMatch extracts the number and the keyword distance from a submatch index.
func (p *Parser) toMatch(text string, loc []int, form ruleForm) (match, bool) {
	var kwStart, kwEnd, numStart, numEnd int
	switch form {
	case formPercentAfter, formFixedAfter:
		kwStart, kwEnd, numStart, numEnd = loc[2], loc[3], loc[4], loc[5]
	default:
		numStart, numEnd, kwStart, kwEnd = loc[2], loc[3], loc[4], loc[5]
	}
	if numStart < 0 || kwStart < 0 {
		return match{}, false
	}
	if !form.percentage() && !standaloneAmount(text, numStart, numEnd) {
		return match{}, false
	}
	value, err := parseNumber(text[numStart:numEnd])
	if err != nil {
		return match{}, false
	}
	var gapText string
	if kwStart > numStart {
		gapText = text[numEnd:kwStart]
	} else {
		gapText = text[kwEnd:numStart]
	}
	gap := len(strings.TrimSpace(genericWords.ReplaceAllString(gapText, " ")))
	return match{
		form:      form,
		value:     value,
		numberPos: numStart,
		gap:       gap,
		start:     loc[0],
		end:       loc[1],
		text:      text[loc[0]:loc[1]],
	}, true
}

// standaloneAmount rejects numbers that are really percentages, dates or times.
func standaloneAmount(text string, numStart, numEnd int) bool {
	if numStart > 0 {
		switch text[numStart-1] {
		case '/', ':', '.', '-':
			return false
		}
	}
	rest := strings.TrimLeft(text[numEnd:], " ")
	if strings.HasPrefix(rest, "%") || strings.HasPrefix(rest, "percent") || strings.HasPrefix(rest, "pct") {
		return false
	}
	if numEnd < len(text) {
		switch text[numEnd] {
		case '/', ':':
			return false
		}
	}
	return true
}

// resolveOwnership keeps, for each number in the note, only the match whose
// keyword is closest to it. Equal distances prefer keyword-then-number forms,
// then discounts, then earlier categories.
func (p *Parser) resolveOwnership(matches []match, trace *[]string) []match {
	better := func(a, b match) bool {
		if a.gap != b.gap {
			return a.gap < b.gap
		}
		aAfter := a.form == formPercentAfter || a.form == formFixedAfter
		bAfter := b.form == formPercentAfter || b.form == formFixedAfter
		if aAfter != bAfter {
			return aAfter
		}
		if a.fee != b.fee {
			return !a.fee
		}
		return a.catIdx < b.catIdx
	}
	owner := map[int]int{}
	for i, m := range matches {
		cur, ok := owner[m.numberPos]
		if !ok || better(m, matches[cur]) {
			owner[m.numberPos] = i
		}
	}
	var kept []match
	for i, m := range matches {
		if owner[m.numberPos] == i {
			kept = append(kept, m)
			continue
		}
		winner := matches[owner[m.numberPos]]
		if winner.cat.glType != m.cat.glType || winner.form.percentage() != m.form.percentage() {
			*trace = append(*trace, fmt.Sprintf("number at %d claimed by %s, ignoring %s", m.numberPos, winner.cat.glType, m.label()))
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].numberPos < kept[j].numberPos })
	return kept
}

func (p *Parser) selectDiscount(text string, matches []match, original decimal.Decimal, trace *[]string) (models.FinancialAdjustment, bool) {
	var candidates []models.FinancialAdjustment
	var catOrder []int
	hasScholarshipFigure := false
	for _, m := range matches {
		if m.fee {
			continue
		}
		adj := m.adjustment(original)
		*trace = append(*trace, fmt.Sprintf("discount candidate %s = %s", m.label(), adj.ComputedAmount.StringFixed(2)))
		candidates = append(candidates, adj)
		catOrder = append(catOrder, m.catIdx)
		if m.cat.glType == models.GLTypeScholarship {
			hasScholarshipFigure = true
		}
	}
	if loc := fullScholarship.FindStringIndex(text); loc != nil && !hasScholarshipFigure {
		adj := models.FinancialAdjustment{
			Kind:       models.AdjustmentKindScholarship,
			GLType:     models.GLTypeScholarship,
			ValueType:  models.ValueTypePercentage,
			Value:      utils.DecimalHundred,
			SourceText: text[loc[0]:loc[1]],
			Start:      loc[0],
			End:        loc[1],
		}
		adj.ComputedAmount = adj.AmountAgainst(original)
		*trace = append(*trace, fmt.Sprintf("discount candidate scholarship 100%% (full scholarship) = %s", adj.ComputedAmount.StringFixed(2)))
		candidates = append(candidates, adj)
		catOrder = append(catOrder, scholarshipCategoryIndex())
	}
	if len(candidates) == 0 {
		return models.FinancialAdjustment{}, false
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		c, b := candidates[i].ComputedAmount, candidates[best].ComputedAmount
		if c.GreaterThan(b) || (c.Equal(b) && catOrder[i] < catOrder[best]) {
			best = i
		}
	}
	for i, c := range candidates {
		if i != best {
			*trace = append(*trace, fmt.Sprintf("discount %s/%s %s discarded: smaller than or tied with selected",
				c.Kind, c.GLType, c.ComputedAmount.StringFixed(2)))
		}
	}
	sel := candidates[best]
	*trace = append(*trace, fmt.Sprintf("discount selected %s = %s", sel.Describe(), sel.ComputedAmount.StringFixed(2)))
	return sel, true
}

func scholarshipCategoryIndex() int {
	for i, c := range discountCategories {
		if c.glType == models.GLTypeScholarship {
			return i
		}
	}
	return len(discountCategories)
}

func (p *Parser) collectFees(matches []match, original decimal.Decimal, trace *[]string) []models.FinancialAdjustment {
	var kept []match
	var fees []models.FinancialAdjustment
	total := decimal.Zero
	for _, m := range matches {
		if !m.fee {
			continue
		}
		if dup, ok := p.duplicateOf(m, kept); ok {
			*trace = append(*trace, fmt.Sprintf("fee %s duplicates %s, ignored", m.label(), dup.label()))
			continue
		}
		kept = append(kept, m)
		adj := m.adjustment(original)
		fees = append(fees, adj)
		total = total.Add(adj.ComputedAmount)
		*trace = append(*trace, fmt.Sprintf("fee %s = %s (fees so far %s)", m.label(), adj.ComputedAmount.StringFixed(2), total.StringFixed(2)))
	}
	return fees
}

// duplicateOf reports a kept fee read from the same token as m: the same
// number, or matched text overlapping m's, with an equal value.
func (p *Parser) duplicateOf(m match, kept []match) (match, bool) {
	for _, k := range kept {
		sameToken := m.numberPos == k.numberPos || (m.start < k.end && k.start < m.end)
		if sameToken && m.value.Sub(k.value).Abs().LessThanOrEqual(p.FeeDedupeTolerance) {
			return k, true
		}
	}
	return match{}, false
}
