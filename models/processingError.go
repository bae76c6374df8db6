package models

import (
	"errors"
	"fmt"
)

// FailureCategory is the closed set of per-record outcomes other than success.
type FailureCategory string

const (
	FailureMissingStudent       FailureCategory = "MISSING_STUDENT"
	FailureMissingTerm          FailureCategory = "MISSING_TERM"
	FailureNullTermDropped      FailureCategory = "NULL_TERM_DROPPED"
	FailureMissingData          FailureCategory = "MISSING_DATA"
	FailureInvalidFinancialData FailureCategory = "INVALID_FINANCIAL_DATA"
	FailureInvalidPaymentData   FailureCategory = "INVALID_PAYMENT_DATA"
	FailureProcessingError      FailureCategory = "PROCESSING_ERROR"
)

// AllFailureCategories lists the taxonomy in reporting order.
var AllFailureCategories = []FailureCategory{
	FailureMissingStudent,
	FailureMissingTerm,
	FailureNullTermDropped,
	FailureMissingData,
	FailureInvalidFinancialData,
	FailureInvalidPaymentData,
	FailureProcessingError,
}

// IsSkip reports whether records in this category are intentionally skipped
// rather than counted as failures.
func (c FailureCategory) IsSkip() bool {
	return c == FailureNullTermDropped
}

// IsMissingEntity reports whether remediation means loading reference data.
func (c FailureCategory) IsMissingEntity() bool {
	return c == FailureMissingStudent || c == FailureMissingTerm
}

// ProcessingError is the typed error every pipeline component returns for a
// record it cannot reconstruct.
type ProcessingError struct {
	Category FailureCategory
	Message  string
	Err      error
}

func NewProcessingError(category FailureCategory, message string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Message: message, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// ClassifyError returns err as a *ProcessingError, wrapping anything
// unclassified as PROCESSING_ERROR. nil stays nil.
func ClassifyError(err error) *ProcessingError {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe
	}
	return NewProcessingError(FailureProcessingError, "unexpected error", err)
}
