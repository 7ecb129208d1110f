package domain

import "strings"

// Contact holds the reachable channels for the person behind a finding.
type Contact struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
	OptOut bool   `json:"opt_out,omitempty"`
}

// HasPhone reports whether a non-blank phone number is present.
func (c Contact) HasPhone() bool { return strings.TrimSpace(c.Phone) != "" }

// HasEmail reports whether a non-blank email address is present.
func (c Contact) HasEmail() bool { return strings.TrimSpace(c.Email) != "" }

// Reachable is true when at least one channel is usable.
func (c Contact) Reachable() bool { return c.HasPhone() || c.HasEmail() }

// AutoPilotContext is the per-invocation projection of a finding plus
// contact data. It is never persisted.
type AutoPilotContext struct {
	OpportunityID string      `json:"opportunity_id,omitempty"`
	FindingID     string      `json:"finding_id,omitempty"`
	FindingType   FindingType `json:"finding_type"`
	Severity      int         `json:"severity"`
	Treated       bool        `json:"treated"`
	Contact       Contact     `json:"contact"`

	// Action-specific fields.
	InvoiceAmountCents int64  `json:"invoice_amount_cents,omitempty"`
	PaymentLink        string `json:"payment_link,omitempty"`
	ActivationLink     string `json:"activation_link,omitempty"`
	BusinessName       string `json:"business_name,omitempty"`
	Title              string `json:"title,omitempty"`
	RecommendedAction  string `json:"recommended_action,omitempty"`
}

// Key identifies the finding for locking and log lookups.
func (c *AutoPilotContext) Key() string {
	if c.FindingID != "" {
		return c.FindingID
	}
	return c.OpportunityID
}

// NewAutoPilotContext projects a finding and its contact into a fresh context.
func NewAutoPilotContext(f *Finding, contact Contact) *AutoPilotContext {
	return &AutoPilotContext{
		OpportunityID:     f.ID,
		FindingID:         f.ID,
		FindingType:       f.Type,
		Severity:          f.Severity,
		Treated:           f.Handled,
		Contact:           contact,
		Title:             f.Title,
		RecommendedAction: f.RecommendedAction,
	}
}
