package notes

import (
	"regexp"

	"bitbucket.org/mmdatafocus/ledger_rebuild/models"
)

// amountExpr matches a money token: optional currency prefix, digits with
// optional thousands separators and decimals, optional currency suffix.
// Group 1 is the numeric part.
const amountExpr = `(?:\$|฿|thb)?\s?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(?:\s?(?:baht|thb|฿|บาท))?`

// percentExpr matches "10%", "12.5 %" and "10 percent". Group 1 is the number.
const percentExpr = `(\d+(?:\.\d+)?)\s?(?:%|percent\b|pct\b|เปอร์เซ็นต์)`

// gap between a keyword and its amount; cannot cross another number or a percent sign
const gapAfter = `[^\d%]{0,25}?`

// gap between an amount and a following keyword
const gapBefore = `[\s\-:]{0,3}`

type finalRule struct {
	name string
	re   *regexp.Regexp
}

var finalRules = []finalRule{
	{"pay only", regexp.MustCompile(`pay(?:s|ing)?\s?only\s?:?\s?` + amountExpr)},
	{"final amount", regexp.MustCompile(`final\s(?:amount|price|payment)\s?(?:of|is|=|:)?\s?` + amountExpr)},
	{"special arrangement", regexp.MustCompile(`special\s(?:arrangement|arr\.?)[^\d%]{0,40}?` + amountExpr)},
	{"agreed amount", regexp.MustCompile(`agreed\s(?:amount|price|fee)\s?(?:of|is|=|:)?\s?` + amountExpr)},
	{"จ่ายเพียง", regexp.MustCompile(`จ่ายเพียง\s?` + amountExpr)},
}

type ruleForm int

const (
	formPercentAfter ruleForm = iota
	formPercentBefore
	formFixedAfter
	formFixedBefore
)

func (f ruleForm) percentage() bool {
	return f == formPercentAfter || f == formPercentBefore
}

func (f ruleForm) String() string {
	switch f {
	case formPercentAfter:
		return "keyword-percent"
	case formPercentBefore:
		return "percent-keyword"
	case formFixedAfter:
		return "keyword-amount"
	}
	return "amount-keyword"
}

type formRegexp struct {
	form ruleForm
	re   *regexp.Regexp
}

// category is one keyword family of discounts or fees.
type category struct {
	kind   models.AdjustmentKind
	glType models.GLType
	forms  []formRegexp
}

// newCategory builds the four forms of a keyword family. The keyword is
// captured so the distance between keyword and number can be measured:
// after-forms capture (keyword, number), before-forms capture (number, keyword).
func newCategory(kind models.AdjustmentKind, glType models.GLType, keyword string) category {
	return newSplitCategory(kind, glType, keyword, keyword)
}

// newSplitCategory is newCategory with a different keyword for the forms
// where the keyword leads the number and those where it follows.
func newSplitCategory(kind models.AdjustmentKind, glType models.GLType, leading, trailing string) category {
	lead := "(" + leading + ")"
	trail := "(" + trailing + ")"
	return category{
		kind:   kind,
		glType: glType,
		forms: []formRegexp{
			{formPercentAfter, regexp.MustCompile(lead + gapAfter + percentExpr)},
			{formPercentBefore, regexp.MustCompile(percentExpr + gapAfter + trail)},
			{formFixedAfter, regexp.MustCompile(lead + gapAfter + amountExpr)},
			{formFixedBefore, regexp.MustCompile(amountExpr + gapBefore + trail)},
		},
	}
}

// Keyword alternations. Word boundaries only work for ASCII in RE2, so the
// Thai alternatives are listed outside the \b group.
var discountCategories = []category{
	newCategory(models.AdjustmentKindDiscount, models.GLTypeEarlyBird,
		`(?:\b(?:early[\s\-]?bird|early\s(?:payment|registration))\b|ชำระก่อน)`),
	newCategory(models.AdjustmentKindDiscount, models.GLTypeStaff,
		`(?:\b(?:staff|employee|teacher'?s?\s(?:child|kid))\b|พนักงาน|บุตรครู)`),
	newCategory(models.AdjustmentKindDiscount, models.GLTypeReligious,
		`(?:\b(?:monks?|nuns?|clergy|religious|novice)\b|พระ|สามเณร)`),
	newCategory(models.AdjustmentKindDiscount, models.GLTypeFamily,
		`(?:\b(?:siblings?|brothers?|sisters?|family|twins?)\b|พี่น้อง)`),
	newCategory(models.AdjustmentKindScholarship, models.GLTypeScholarship,
		`(?:\b(?:scholarships?|grants?|bursary|bursaries)\b|ทุน)`),
	// "off" only counts after its figure ("10% off"); "paid off 300" is not a discount
	newSplitCategory(models.AdjustmentKindDiscount, models.GLTypeGeneral,
		`(?:\b(?:discount(?:ed)?|disc|reduction|reduced)\b\.?|ส่วนลด|ลด)`,
		`(?:\b(?:discount(?:ed)?|disc|off|reduction|reduced)\b\.?|ส่วนลด|ลด)`),
}

// genericWords are ignored when measuring how far a keyword is from its
// number, along with currency signs and separators, so "staff discount 10%"
// attributes the figure to staff.
var genericWords = regexp.MustCompile(`\b(?:discount(?:ed)?|disc|off|reduction|reduced|of|is|for|rate|thb)\b\.?|ส่วนลด|[\$฿:=\-]`)

// fullScholarship marks a note as a full tuition scholarship with no figure.
var fullScholarship = regexp.MustCompile(`\bfull(?:y)?[\s\-]?(?:scholarship|grant|bursary)\b|ทุนเต็ม|100%\s?scholarship`)

var feeCategories = []category{
	newCategory(models.AdjustmentKindFee, models.GLTypeLateFee,
		`(?:\blate\s?(?:payment\s)?(?:fees?|charges?|penalty|fine)\b|ค่าปรับ)`),
	newCategory(models.AdjustmentKindFee, models.GLTypeAdminFee,
		`(?:\b(?:admin(?:istration|istrative)?|processing|registration|reg\.?)\s?(?:fees?|charges?)\b|ค่าธรรมเนียม)`),
	newCategory(models.AdjustmentKindFee, models.GLTypeAdditionalFee,
		`(?:\b(?:additional|extra|other|misc(?:ellaneous)?)\s?(?:fees?|charges?)\b|ค่าใช้จ่ายเพิ่มเติม)`),
}
