package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the settlement state of an invoice.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusPaid     PaymentStatus = "PAID"
	StatusPartial  PaymentStatus = "PARTIAL"
	StatusCanceled PaymentStatus = "CANCELED"
	StatusOverdue  PaymentStatus = "OVERDUE"
)

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid checks if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusPartial, StatusCanceled, StatusOverdue:
		return true
	}
	return false
}

// InvoiceKind represents the document kind of an invoice.
type InvoiceKind string

const (
	KindStandard   InvoiceKind = "STANDARD"
	KindCanceled   InvoiceKind = "CANCELED"
	KindCorrection InvoiceKind = "CORRECTION"
	KindProforma   InvoiceKind = "PROFORMA"
)

// String returns the string representation of InvoiceKind
func (k InvoiceKind) String() string {
	return string(k)
}

// IsValid checks if the invoice kind is valid
func (k InvoiceKind) IsValid() bool {
	switch k {
	case KindStandard, KindCanceled, KindCorrection, KindProforma:
		return true
	}
	return false
}

// Invoice represents an outstanding sales invoice imported from an
// accounting export. Instances are treated as immutable snapshots for
// the duration of one matching run.
type Invoice struct {
	ID                string          `json:"id" csv:"id"`
	Number            string          `json:"number" csv:"number"`
	IssueDate         time.Time       `json:"issueDate" csv:"issue_date"`
	DueDate           time.Time       `json:"dueDate" csv:"due_date"`
	GrossAmount       decimal.Decimal `json:"grossAmount" csv:"gross_amount"`
	NetAmount         decimal.Decimal `json:"netAmount" csv:"net_amount"`
	Currency          string          `json:"currency" csv:"currency"`
	BuyerName         string          `json:"buyerName" csv:"buyer_name"`
	BuyerTaxID        string          `json:"buyerTaxId,omitempty" csv:"buyer_tax_id"`
	BuyerSubaccount   string          `json:"buyerSubaccount,omitempty" csv:"buyer_subaccount"`
	SellerBankAccount string          `json:"sellerBankAccount,omitempty" csv:"seller_bank_account"`
	Status            PaymentStatus   `json:"status" csv:"status"`
	Kind              InvoiceKind     `json:"kind" csv:"kind"`
}

// NewInvoice creates a new Invoice instance with the required fields set
func NewInvoice(id, number string, gross decimal.Decimal, currency, buyerName string, issueDate, dueDate time.Time) *Invoice {
	return &Invoice{
		ID:          id,
		Number:      number,
		GrossAmount: gross,
		Currency:    currency,
		BuyerName:   buyerName,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		Status:      StatusPending,
		Kind:        KindStandard,
	}
}

// Validate performs basic validation on the Invoice
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}

	if strings.TrimSpace(inv.Number) == "" {
		return fmt.Errorf("invoice number cannot be empty")
	}

	if inv.GrossAmount.IsZero() || inv.GrossAmount.IsNegative() {
		return fmt.Errorf("invoice gross amount must be positive, got %s", inv.GrossAmount)
	}

	if strings.TrimSpace(inv.Currency) == "" {
		return fmt.Errorf("invoice currency cannot be empty")
	}

	if inv.IssueDate.IsZero() {
		return fmt.Errorf("invoice issue date cannot be zero")
	}

	if inv.DueDate.IsZero() {
		return fmt.Errorf("invoice due date cannot be zero")
	}

	if !inv.Status.IsValid() {
		return fmt.Errorf("invalid payment status: %s", inv.Status)
	}

	if !inv.Kind.IsValid() {
		return fmt.Errorf("invalid invoice kind: %s", inv.Kind)
	}

	return nil
}

// IsMatchable reports whether the invoice is eligible as a matching
// candidate: unpaid (pending, overdue or partially paid) and not a
// canceled, correction or proforma document.
func (inv *Invoice) IsMatchable() bool {
	switch inv.Status {
	case StatusPending, StatusOverdue, StatusPartial:
	default:
		return false
	}

	switch inv.Kind {
	case KindCanceled, KindCorrection, KindProforma:
		return false
	}

	return true
}

// IssueMonth returns the invoice issue month truncated to the first day,
// used as the grouping period for sum matching.
func (inv *Invoice) IssueMonth() time.Time {
	return time.Date(inv.IssueDate.Year(), inv.IssueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	return fmt.Sprintf("Invoice{ID: %s, Number: %s, Gross: %s %s, Buyer: %s, Due: %s}",
		inv.ID, inv.Number, inv.GrossAmount.String(), inv.Currency, inv.BuyerName,
		inv.DueDate.Format("2006-01-02"))
}

// MarshalJSON implements custom JSON marshaling for Invoice
func (inv *Invoice) MarshalJSON() ([]byte, error) {
	type Alias Invoice
	return json.Marshal(&struct {
		GrossAmount string `json:"grossAmount"`
		NetAmount   string `json:"netAmount"`
		IssueDate   string `json:"issueDate"`
		DueDate     string `json:"dueDate"`
		*Alias
	}{
		GrossAmount: inv.GrossAmount.String(),
		NetAmount:   inv.NetAmount.String(),
		IssueDate:   inv.IssueDate.Format("2006-01-02"),
		DueDate:     inv.DueDate.Format("2006-01-02"),
		Alias:       (*Alias)(inv),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Invoice
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	type Alias Invoice
	aux := &struct {
		GrossAmount string `json:"grossAmount"`
		NetAmount   string `json:"netAmount"`
		IssueDate   string `json:"issueDate"`
		DueDate     string `json:"dueDate"`
		*Alias
	}{
		Alias: (*Alias)(inv),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	inv.GrossAmount, err = decimal.NewFromString(aux.GrossAmount)
	if err != nil {
		return fmt.Errorf("invalid gross amount format: %w", err)
	}

	if aux.NetAmount != "" {
		inv.NetAmount, err = decimal.NewFromString(aux.NetAmount)
		if err != nil {
			return fmt.Errorf("invalid net amount format: %w", err)
		}
	}

	inv.IssueDate, err = ParseDateWithFormats(aux.IssueDate)
	if err != nil {
		return fmt.Errorf("invalid issue date format: %w", err)
	}

	inv.DueDate, err = ParseDateWithFormats(aux.DueDate)
	if err != nil {
		return fmt.Errorf("invalid due date format: %w", err)
	}

	return nil
}

// Payment represents a single incoming (credit) bank transaction produced
// by a bank statement parser. Only credit transactions are ever presented
// to the matcher; the amount is always positive.
type Payment struct {
	ID               string          `json:"id" csv:"id"`
	TransactionDate  time.Time       `json:"transactionDate" csv:"transaction_date"`
	Amount           decimal.Decimal `json:"amount" csv:"amount"`
	Currency         string          `json:"currency" csv:"currency"`
	SenderName       string          `json:"senderName" csv:"sender_name"`
	SenderAccount    string          `json:"senderAccount,omitempty" csv:"sender_account"`
	SenderSubaccount string          `json:"senderSubaccount,omitempty" csv:"sender_subaccount"`
	Title            string          `json:"title" csv:"title"`
	ExtendedTitle    string          `json:"extendedTitle,omitempty" csv:"extended_title"`
	Reference        string          `json:"reference,omitempty" csv:"reference"`
}

// NewPayment creates a new Payment instance
func NewPayment(id string, amount decimal.Decimal, currency, senderName, title string, date time.Time) *Payment {
	return &Payment{
		ID:              id,
		Amount:          amount,
		Currency:        currency,
		SenderName:      senderName,
		Title:           title,
		TransactionDate: date,
	}
}

// Validate performs basic validation on the Payment
func (p *Payment) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("payment ID cannot be empty")
	}

	if p.Amount.IsZero() || p.Amount.IsNegative() {
		return fmt.Errorf("payment amount must be positive, got %s", p.Amount)
	}

	if strings.TrimSpace(p.Currency) == "" {
		return fmt.Errorf("payment currency cannot be empty")
	}

	if p.TransactionDate.IsZero() {
		return fmt.Errorf("payment transaction date cannot be zero")
	}

	return nil
}

// SearchText returns the combined free text of the payment (title plus
// extended title) used by the text extraction heuristics.
func (p *Payment) SearchText() string {
	if p.ExtendedTitle == "" {
		return p.Title
	}
	return p.Title + " " + p.ExtendedTitle
}

// String returns a string representation of the Payment
func (p *Payment) String() string {
	return fmt.Sprintf("Payment{ID: %s, Amount: %s %s, Sender: %s, Date: %s}",
		p.ID, p.Amount.String(), p.Currency, p.SenderName,
		p.TransactionDate.Format("2006-01-02"))
}

// MarshalJSON implements custom JSON marshaling for Payment
func (p *Payment) MarshalJSON() ([]byte, error) {
	type Alias Payment
	return json.Marshal(&struct {
		Amount          string `json:"amount"`
		TransactionDate string `json:"transactionDate"`
		*Alias
	}{
		Amount:          p.Amount.String(),
		TransactionDate: p.TransactionDate.Format("2006-01-02"),
		Alias:           (*Alias)(p),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Payment
func (p *Payment) UnmarshalJSON(data []byte) error {
	type Alias Payment
	aux := &struct {
		Amount          string `json:"amount"`
		TransactionDate string `json:"transactionDate"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	p.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	p.TransactionDate, err = ParseDateWithFormats(aux.TransactionDate)
	if err != nil {
		return fmt.Errorf("invalid transaction date format: %w", err)
	}

	return nil
}

// MatchType distinguishes how a confirmed match was created.
type MatchType string

const (
	MatchTypeAuto   MatchType = "AUTO"
	MatchTypeManual MatchType = "MANUAL"
)

// ConfirmedMatch is the durable record the persistence layer creates when
// a match is accepted. The matcher never writes these itself; the type is
// part of the contract with the storage layer. One invoice maps to at most
// one confirmed match and vice versa, except for confirmed group matches
// where several invoices share one payment.
type ConfirmedMatch struct {
	InvoiceID       string    `json:"invoiceId"`
	PaymentID       string    `json:"paymentId"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Type            MatchType `json:"matchType"`
	MatchedAt       time.Time `json:"matchedAt"`
}

// Utility functions for type conversion and validation

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Strip currency symbols and thousand separators; accept the comma
	// decimal separator used by several national bank exports.
	s = strings.NewReplacer("$", "", "€", "", "zł", "", " ", "", " ", "").Replace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParsePaymentStatus parses and validates a payment status from string
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING", "UNPAID", "ISSUED":
		return StatusPending, nil
	case "PAID", "SETTLED":
		return StatusPaid, nil
	case "PARTIAL", "PARTIALLY_PAID":
		return StatusPartial, nil
	case "CANCELED", "CANCELLED", "VOID":
		return StatusCanceled, nil
	case "OVERDUE":
		return StatusOverdue, nil
	default:
		return "", fmt.Errorf("invalid payment status '%s'", s)
	}
}

// ParseInvoiceKind parses and validates an invoice kind from string
func ParseInvoiceKind(s string) (InvoiceKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "STANDARD", "VAT", "INVOICE":
		return KindStandard, nil
	case "CANCELED", "CANCELLED":
		return KindCanceled, nil
	case "CORRECTION", "CREDIT_NOTE":
		return KindCorrection, nil
	case "PROFORMA", "PRO_FORMA":
		return KindProforma, nil
	default:
		return "", fmt.Errorf("invalid invoice kind '%s'", s)
	}
}

// ParseDateWithFormats attempts to parse a calendar date from string using
// the formats commonly found in invoice and bank statement exports.
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"02.01.2006",
		"02-01-2006",
		"02/01/2006",
		"2006/01/02",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// SameAmountWithinTolerance compares two decimal amounts allowing a
// relative tolerance expressed as a fraction (0.001 means 0.1%).
func SameAmountWithinTolerance(a, b decimal.Decimal, tolerance float64) bool {
	if a.Equal(b) {
		return true
	}

	larger := decimal.Max(a.Abs(), b.Abs())
	if larger.IsZero() {
		return false
	}

	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(larger.Mul(decimal.NewFromFloat(tolerance)))
}
