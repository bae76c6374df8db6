package models

type AdjustmentKind string

const (
	AdjustmentKindDiscount           AdjustmentKind = "discount"
	AdjustmentKindFee                AdjustmentKind = "fee"
	AdjustmentKindScholarship        AdjustmentKind = "scholarship"
	AdjustmentKindSpecialArrangement AdjustmentKind = "special_arrangement"
)

// GLType is the general-ledger sub-category of an adjustment.
type GLType string

const (
	GLTypeEarlyBird          GLType = "early_bird"
	GLTypeStaff              GLType = "staff"
	GLTypeReligious          GLType = "religious"
	GLTypeFamily             GLType = "family"
	GLTypeScholarship        GLType = "scholarship"
	GLTypeGeneral            GLType = "general"
	GLTypeSpecialArrangement GLType = "special_arrangement"
	GLTypeLateFee            GLType = "late_fee"
	GLTypeAdminFee           GLType = "admin_fee"
	GLTypeAdditionalFee      GLType = "additional_fee"
)

type ValueType string

const (
	ValueTypeFixed      ValueType = "fixed"
	ValueTypePercentage ValueType = "percentage"
)

type ValidationStatus string

const (
	ValidationStatusReconciled       ValidationStatus = "RECONCILED"
	ValidationStatusVarianceDetected ValidationStatus = "VARIANCE_DETECTED"
	ValidationStatusEstimated        ValidationStatus = "ESTIMATED"
)

type InvoiceStatus string

const (
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "CASH"
	PaymentMethodCheck       PaymentMethod = "CHECK"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodTransfer    PaymentMethod = "TRANSFER"
	PaymentMethodScholarship PaymentMethod = "SCHOLARSHIP"
	PaymentMethodOther       PaymentMethod = "OTHER"
)

type BatchRunStatus string

const (
	BatchRunStatusInitialized BatchRunStatus = "INITIALIZED"
	BatchRunStatusProcessing  BatchRunStatus = "PROCESSING"
	BatchRunStatusCompleted   BatchRunStatus = "COMPLETED"
	BatchRunStatusPaused      BatchRunStatus = "PAUSED"
	BatchRunStatusFailed      BatchRunStatus = "FAILED"
)

// IsTerminal reports whether no further batches will run under this status
// without an explicit resume.
func (s BatchRunStatus) IsTerminal() bool {
	return s == BatchRunStatusCompleted || s == BatchRunStatusPaused || s == BatchRunStatusFailed
}

// IsResumable reports whether a run in this status may be continued from its checkpoint.
func (s BatchRunStatus) IsResumable() bool {
	return s == BatchRunStatusPaused || s == BatchRunStatusProcessing || s == BatchRunStatusFailed
}
