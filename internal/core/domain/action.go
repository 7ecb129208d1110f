package domain

import "time"

// ActionKind is the automated action selected for a finding.
type ActionKind string

const (
	ActionSendSMS    ActionKind = "SEND_SMS"
	ActionSendEmail  ActionKind = "SEND_EMAIL"
	ActionCreateTask ActionKind = "CREATE_TASK"
	ActionStop       ActionKind = "STOP"

	// ActionMarkTreated only appears in the action log, for close-out.
	ActionMarkTreated ActionKind = "MARK_TREATED"
)

// IsSend reports whether the action delivers a message to the contact.
func (k ActionKind) IsSend() bool {
	return k == ActionSendSMS || k == ActionSendEmail
}

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
	ChannelTask  Channel = "TASK"
	ChannelNone  Channel = "NONE"
)

// Field names a context value a template depends on.
type Field string

const (
	FieldInvoiceAmount  Field = "invoiceAmount"
	FieldPaymentLink    Field = "paymentLink"
	FieldActivationLink Field = "activationLink"
)

// Decision is the output of the decision engine.
type Decision struct {
	Kind           ActionKind `json:"kind"`
	Channel        Channel    `json:"channel"`
	CooldownHours  int        `json:"cooldown_hours,omitempty"`
	Label          string     `json:"label"`
	TemplateKey    string     `json:"template_key,omitempty"`
	RequiredFields []Field    `json:"required_fields,omitempty"`
}

// Cooldown returns the cooldown as a duration; zero means none.
func (d Decision) Cooldown() time.Duration {
	return time.Duration(d.CooldownHours) * time.Hour
}

type LogStatus string

const (
	LogStatusSuccess LogStatus = "SUCCESS"
	LogStatusFailed  LogStatus = "FAILED"
	LogStatusBlocked LogStatus = "BLOCKED"
	LogStatusSkipped LogStatus = "SKIPPED"
)

// BlockReason is the structured reason for a blocked or diverted run.
type BlockReason string

const (
	BlockAlreadyRunning  BlockReason = "ALREADY_RUNNING"
	BlockAlreadyTreated  BlockReason = "ALREADY_TREATED"
	BlockMissingContact  BlockReason = "MISSING_CONTACT"
	BlockOptOut          BlockReason = "OPTOUT"
	BlockCooldownActive  BlockReason = "COOLDOWN_ACTIVE"
	BlockMissingTemplate BlockReason = "MISSING_TEMPLATE"
)

// LogEntry is an immutable record of one attempted action.
type LogEntry struct {
	ID          string      `json:"id"                db:"id"`
	Timestamp   time.Time   `json:"timestamp"         db:"created_at"`
	Key         string      `json:"key"               db:"finding_key"`
	FindingType FindingType `json:"finding_type"      db:"finding_type"`
	Action      ActionKind  `json:"action"            db:"action"`
	Channel     Channel     `json:"channel"           db:"channel"`
	Status      LogStatus   `json:"status"            db:"status"`
	Reason      string      `json:"reason,omitempty"  db:"reason"`
	Details     string      `json:"details,omitempty" db:"details"`
}
