// Package decision maps an autopilot context to the single action to take.
//
// Rules are an ordered table evaluated first-match-wins. The table is fixed;
// there is no rule composition.
package decision

import "github.com/boucer/prospek360-recovery-engine/internal/core/domain"

// Template keys understood by the template package.
const (
	TemplatePaymentReminder     = "PAYMENT_REMINDER"
	TemplatePaymentFailed       = "PAYMENT_FAILED"
	TemplateActivationNudge     = "ACTIVATION_NUDGE"
	TemplateColdLeadNudge       = "COLD_LEAD_NUDGE"
	TemplateInactiveClientNudge = "INACTIVE_CLIENT_NUDGE"
)

const (
	LabelMissingContact = "Contact manquant"
	LabelLowConfidence  = "Confiance insuffisante"
)

// Rule is one row of the decision table.
type Rule struct {
	Name    string
	Matches func(c *domain.AutoPilotContext) bool
	Build   func(c *domain.AutoPilotContext) domain.Decision
}

// channelOrder lists preferred channels; TASK is always the last resort.
type channelOrder []domain.Channel

var (
	smsFirst   = channelOrder{domain.ChannelSMS, domain.ChannelEmail}
	emailFirst = channelOrder{domain.ChannelEmail, domain.ChannelSMS}
)

// pick returns the first channel the contact can be reached on, else TASK.
func (o channelOrder) pick(contact domain.Contact) domain.Channel {
	for _, ch := range o {
		switch {
		case ch == domain.ChannelSMS && contact.HasPhone():
			return ch
		case ch == domain.ChannelEmail && contact.HasEmail():
			return ch
		}
	}
	return domain.ChannelTask
}

// PreferredChannel is SMS if a phone is present, else EMAIL, else TASK.
func PreferredChannel(contact domain.Contact) domain.Channel {
	return smsFirst.pick(contact)
}

// KindFor maps a delivery channel to the action that uses it.
func KindFor(ch domain.Channel) domain.ActionKind {
	switch ch {
	case domain.ChannelSMS:
		return domain.ActionSendSMS
	case domain.ChannelEmail:
		return domain.ActionSendEmail
	case domain.ChannelTask:
		return domain.ActionCreateTask
	default:
		return domain.ActionStop
	}
}

func typeAtLeast(t domain.FindingType, minSeverity int) func(*domain.AutoPilotContext) bool {
	return func(c *domain.AutoPilotContext) bool {
		return c.FindingType == t && c.Severity >= minSeverity
	}
}

func nudge(
	order channelOrder,
	cooldownHours int,
	label, template string,
	required ...domain.Field,
) func(*domain.AutoPilotContext) domain.Decision {
	return func(c *domain.AutoPilotContext) domain.Decision {
		ch := order.pick(c.Contact)
		return domain.Decision{
			Kind:           KindFor(ch),
			Channel:        ch,
			CooldownHours:  cooldownHours,
			Label:          label,
			TemplateKey:    template,
			RequiredFields: required,
		}
	}
}

func stop(label string) func(*domain.AutoPilotContext) domain.Decision {
	return func(*domain.AutoPilotContext) domain.Decision {
		return domain.Decision{Kind: domain.ActionStop, Channel: domain.ChannelNone, Label: label}
	}
}

var rules = []Rule{
	{
		Name:    "missing_contact",
		Matches: func(c *domain.AutoPilotContext) bool { return !c.Contact.Reachable() },
		Build:   stop(LabelMissingContact),
	},
	{
		Name:    "payment_pending",
		Matches: typeAtLeast(domain.FindingTypePaymentPending, 4),
		Build: nudge(smsFirst, 48, "Relance de paiement", TemplatePaymentReminder,
			domain.FieldInvoiceAmount, domain.FieldPaymentLink),
	},
	{
		Name:    "payment_failed",
		Matches: typeAtLeast(domain.FindingTypePaymentFailed, 4),
		Build: nudge(smsFirst, 72, "Paiement échoué", TemplatePaymentFailed,
			domain.FieldPaymentLink),
	},
	{
		Name:    "activation_missing",
		Matches: typeAtLeast(domain.FindingTypeActivationMissing, 3),
		Build:   nudge(emailFirst, 72, "Relance d'activation", TemplateActivationNudge),
	},
	{
		Name:    "no_reply",
		Matches: typeAtLeast(domain.FindingTypeNoReply, 3),
		Build:   nudge(smsFirst, 120, "Relance de prospect", TemplateColdLeadNudge),
	},
	{
		Name:    "inactive_client",
		Matches: typeAtLeast(domain.FindingTypeInactiveClient, 3),
		Build:   nudge(emailFirst, 168, "Relance client inactif", TemplateInactiveClientNudge),
	},
	{
		Name:    "follow_up_required",
		Matches: typeAtLeast(domain.FindingTypeFollowUpRequired, 2),
		Build: func(*domain.AutoPilotContext) domain.Decision {
			return domain.Decision{
				Kind:    domain.ActionCreateTask,
				Channel: domain.ChannelTask,
				Label:   "Suivi requis",
			}
		},
	},
	{
		Name:    "low_confidence",
		Matches: func(*domain.AutoPilotContext) bool { return true },
		Build:   stop(LabelLowConfidence),
	},
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Decide returns the decision of the first matching rule.
func Decide(c *domain.AutoPilotContext) domain.Decision {
	d, _ := DecideWithRule(c)
	return d
}

// DecideWithRule is Decide plus the name of the rule that matched.
func DecideWithRule(c *domain.AutoPilotContext) (domain.Decision, string) {
	for _, r := range rules {
		if r.Matches(c) {
			return r.Build(c), r.Name
		}
	}
	// Unreachable: the last rule always matches.
	return stop(LabelLowConfidence)(c), "low_confidence"
}
