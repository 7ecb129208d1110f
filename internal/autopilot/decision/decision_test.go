package decision

import (
	"reflect"
	"testing"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

var (
	phoneOnly = domain.Contact{Phone: "+15145550100"}
	emailOnly = domain.Contact{Email: "client@example.com"}
	both      = domain.Contact{Phone: "+15145550100", Email: "client@example.com"}
)

func TestDecide_PaymentPendingExample(t *testing.T) {
	c := &domain.AutoPilotContext{
		FindingType:        domain.FindingTypePaymentPending,
		Severity:           5,
		Contact:            domain.Contact{Phone: "+1..."},
		InvoiceAmountCents: 5000,
		PaymentLink:        "https://pay",
	}

	d := Decide(c)
	if d.Kind != domain.ActionSendSMS {
		t.Errorf("expected SEND_SMS, got %s", d.Kind)
	}
	if d.CooldownHours != 48 {
		t.Errorf("expected 48h cooldown, got %d", d.CooldownHours)
	}
	if d.TemplateKey != "PAYMENT_REMINDER" {
		t.Errorf("expected PAYMENT_REMINDER, got %s", d.TemplateKey)
	}
	want := []domain.Field{domain.FieldInvoiceAmount, domain.FieldPaymentLink}
	if !reflect.DeepEqual(d.RequiredFields, want) {
		t.Errorf("expected required fields %v, got %v", want, d.RequiredFields)
	}
}

func TestDecide_Table(t *testing.T) {
	tests := []struct {
		name     string
		typ      domain.FindingType
		severity int
		contact  domain.Contact
		rule     string
		kind     domain.ActionKind
		channel  domain.Channel
		cooldown int
		template string
	}{
		{"no contact stops", domain.FindingTypePaymentPending, 5, domain.Contact{}, "missing_contact",
			domain.ActionStop, domain.ChannelNone, 0, ""},
		{"blank contact stops", domain.FindingTypeNoReply, 5, domain.Contact{Phone: "  "}, "missing_contact",
			domain.ActionStop, domain.ChannelNone, 0, ""},
		{"payment pending email fallback", domain.FindingTypePaymentPending, 4, emailOnly, "payment_pending",
			domain.ActionSendEmail, domain.ChannelEmail, 48, TemplatePaymentReminder},
		{"payment pending low severity", domain.FindingTypePaymentPending, 3, both, "low_confidence",
			domain.ActionStop, domain.ChannelNone, 0, ""},
		{"payment failed sms", domain.FindingTypePaymentFailed, 4, both, "payment_failed",
			domain.ActionSendSMS, domain.ChannelSMS, 72, TemplatePaymentFailed},
		{"activation prefers email", domain.FindingTypeActivationMissing, 3, both, "activation_missing",
			domain.ActionSendEmail, domain.ChannelEmail, 72, TemplateActivationNudge},
		{"activation sms fallback", domain.FindingTypeActivationMissing, 3, phoneOnly, "activation_missing",
			domain.ActionSendSMS, domain.ChannelSMS, 72, TemplateActivationNudge},
		{"no reply prefers sms", domain.FindingTypeNoReply, 3, both, "no_reply",
			domain.ActionSendSMS, domain.ChannelSMS, 120, TemplateColdLeadNudge},
		{"no reply email fallback", domain.FindingTypeNoReply, 4, emailOnly, "no_reply",
			domain.ActionSendEmail, domain.ChannelEmail, 120, TemplateColdLeadNudge},
		{"inactive client prefers email", domain.FindingTypeInactiveClient, 3, both, "inactive_client",
			domain.ActionSendEmail, domain.ChannelEmail, 168, TemplateInactiveClientNudge},
		{"inactive client low severity", domain.FindingTypeInactiveClient, 2, both, "low_confidence",
			domain.ActionStop, domain.ChannelNone, 0, ""},
		{"follow up creates task", domain.FindingTypeFollowUpRequired, 2, phoneOnly, "follow_up_required",
			domain.ActionCreateTask, domain.ChannelTask, 0, ""},
		{"follow up low severity", domain.FindingTypeFollowUpRequired, 1, phoneOnly, "low_confidence",
			domain.ActionStop, domain.ChannelNone, 0, ""},
		{"unknown type", domain.FindingType("DUPLICATE_CONTACT"), 5, both, "low_confidence",
			domain.ActionStop, domain.ChannelNone, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &domain.AutoPilotContext{FindingType: tt.typ, Severity: tt.severity, Contact: tt.contact}
			d, rule := DecideWithRule(c)
			if rule != tt.rule {
				t.Errorf("rule = %s, want %s", rule, tt.rule)
			}
			if d.Kind != tt.kind || d.Channel != tt.channel {
				t.Errorf("got %s/%s, want %s/%s", d.Kind, d.Channel, tt.kind, tt.channel)
			}
			if d.CooldownHours != tt.cooldown {
				t.Errorf("cooldown = %d, want %d", d.CooldownHours, tt.cooldown)
			}
			if d.TemplateKey != tt.template {
				t.Errorf("template = %q, want %q", d.TemplateKey, tt.template)
			}
		})
	}
}

func TestDecide_Labels(t *testing.T) {
	if d := Decide(&domain.AutoPilotContext{}); d.Label != LabelMissingContact {
		t.Errorf("expected %q, got %q", LabelMissingContact, d.Label)
	}
	d := Decide(&domain.AutoPilotContext{FindingType: "OTHER", Severity: 5, Contact: both})
	if d.Label != LabelLowConfidence {
		t.Errorf("expected %q, got %q", LabelLowConfidence, d.Label)
	}
}

func TestRules_OrderAndCoverage(t *testing.T) {
	want := []string{
		"missing_contact",
		"payment_pending",
		"payment_failed",
		"activation_missing",
		"no_reply",
		"inactive_client",
		"follow_up_required",
		"low_confidence",
	}
	got := Rules()
	if len(got) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(got))
	}
	for i, r := range got {
		if r.Name != want[i] {
			t.Errorf("rule %d = %s, want %s", i, r.Name, want[i])
		}
	}

	// Missing contact outranks every typed rule.
	c := &domain.AutoPilotContext{FindingType: domain.FindingTypeFollowUpRequired, Severity: 5}
	if _, rule := DecideWithRule(c); rule != "missing_contact" {
		t.Errorf("expected missing_contact to win, got %s", rule)
	}
}

func TestPreferredChannel(t *testing.T) {
	cases := []struct {
		contact domain.Contact
		want    domain.Channel
	}{
		{both, domain.ChannelSMS},
		{phoneOnly, domain.ChannelSMS},
		{emailOnly, domain.ChannelEmail},
		{domain.Contact{}, domain.ChannelTask},
	}
	for _, c := range cases {
		if got := PreferredChannel(c.contact); got != c.want {
			t.Errorf("PreferredChannel(%+v) = %s, want %s", c.contact, got, c.want)
		}
	}
}
