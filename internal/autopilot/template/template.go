// Package template renders outbound message text for autopilot decisions.
package template

import (
	"fmt"
	"sort"
	"strings"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

// Rendered is a ready-to-send message. Subject is only used for email.
type Rendered struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type builder struct {
	required []domain.Field
	build    func(c *domain.AutoPilotContext) Rendered
}

var registry = map[string]builder{
	"PAYMENT_REMINDER": {
		required: []domain.Field{domain.FieldInvoiceAmount, domain.FieldPaymentLink},
		build: func(c *domain.AutoPilotContext) Rendered {
			return Rendered{
				Subject: "Rappel de paiement",
				Body: fmt.Sprintf("%s, un paiement de %s est toujours en attente%s. Vous pouvez le régler ici : %s",
					greeting(c), FormatAmount(c.InvoiceAmountCents), from(c), c.PaymentLink),
			}
		},
	},
	"PAYMENT_FAILED": {
		required: []domain.Field{domain.FieldPaymentLink},
		build: func(c *domain.AutoPilotContext) Rendered {
			amount := ""
			if c.InvoiceAmountCents > 0 {
				amount = " de " + FormatAmount(c.InvoiceAmountCents)
			}
			return Rendered{
				Subject: "Votre paiement n'a pas pu être traité",
				Body: fmt.Sprintf("%s, votre paiement%s n'a pas pu être traité%s. Merci de mettre à jour votre moyen de paiement : %s",
					greeting(c), amount, from(c), c.PaymentLink),
			}
		},
	},
	"ACTIVATION_NUDGE": {
		build: func(c *domain.AutoPilotContext) Rendered {
			body := fmt.Sprintf("%s, votre compte%s n'est pas encore activé.", greeting(c), from(c))
			if strings.TrimSpace(c.ActivationLink) != "" {
				body += " Activez-le en un clic : " + c.ActivationLink
			} else {
				body += " Répondez à ce message et nous vous aiderons à démarrer."
			}
			return Rendered{Subject: "Activez votre compte", Body: body}
		},
	},
	"COLD_LEAD_NUDGE": {
		build: func(c *domain.AutoPilotContext) Rendered {
			return Rendered{
				Subject: "Toujours intéressé ?",
				Body: fmt.Sprintf("%s, nous n'avons pas eu de nouvelles depuis un moment%s. Êtes-vous toujours intéressé ? Un simple oui suffit.",
					greeting(c), from(c)),
			}
		},
	},
	"INACTIVE_CLIENT_NUDGE": {
		build: func(c *domain.AutoPilotContext) Rendered {
			return Rendered{
				Subject: "On s'ennuie de vous",
				Body: fmt.Sprintf("%s, cela fait un moment que nous ne vous avons pas vu%s. Pouvons-nous vous aider avec quelque chose ?",
					greeting(c), from(c)),
			}
		},
	},
}

// Render returns the message for key, or nil when the key is unknown or a
// required context field is missing.
func Render(key string, c *domain.AutoPilotContext) *Rendered {
	b, ok := registry[key]
	if !ok || c == nil {
		return nil
	}
	if len(Missing(c, b.required...)) > 0 {
		return nil
	}
	r := b.build(c)
	return &r
}

// Missing returns the fields that are absent from c.
func Missing(c *domain.AutoPilotContext, fields ...domain.Field) []domain.Field {
	var out []domain.Field
	for _, f := range fields {
		if !has(c, f) {
			out = append(out, f)
		}
	}
	return out
}

// Keys lists the registered template keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func has(c *domain.AutoPilotContext, f domain.Field) bool {
	switch f {
	case domain.FieldInvoiceAmount:
		return c.InvoiceAmountCents > 0
	case domain.FieldPaymentLink:
		return strings.TrimSpace(c.PaymentLink) != ""
	case domain.FieldActivationLink:
		return strings.TrimSpace(c.ActivationLink) != ""
	default:
		return false
	}
}

func greeting(c *domain.AutoPilotContext) string {
	if name := strings.TrimSpace(c.Contact.Name); name != "" {
		return "Bonjour " + name
	}
	return "Bonjour"
}

func from(c *domain.AutoPilotContext) string {
	if name := strings.TrimSpace(c.BusinessName); name != "" {
		return " chez " + name
	}
	return ""
}

// FormatAmount formats cents the Quebec French way, e.g. 1234567 -> "12 345,67 $".
func FormatAmount(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := fmt.Sprint(cents / 100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	s := fmt.Sprintf("%s,%02d $", b.String(), cents%100)
	if neg {
		return "-" + s
	}
	return s
}
