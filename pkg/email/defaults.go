package email

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// DefaultTemplates returns plain transactional bodies for every lifecycle
// event. They avoid plan names on purpose: the mailer only knows plan IDs,
// and applications that want richer copy inject their own composers via
// WithTemplates.
func DefaultTemplates() Templates {
	return Templates{
		SubscriptionStarted: func(p ComposeParams) Message {
			lines := []string{"Welcome aboard. Your subscription is now active."}
			if p.Subscription.CurrentPrice != nil {
				lines = append(lines, "You will be billed "+p.Subscription.CurrentPrice.Format()+" per billing period.")
			}
			lines = append(lines, cardLine(p)...)
			return Message{
				Subject: "Your subscription is active",
				Body:    htmlBody("Subscription confirmed", lines...),
			}
		},
		PlanChanged: func(p ComposeParams) Message {
			lines := []string{"Your subscription has been moved to its new plan."}
			if p.Subscription.CurrentPrice != nil {
				lines = append(lines, "Your new price is "+p.Subscription.CurrentPrice.Format()+" per billing period.")
			}
			return Message{
				Subject: "Your plan has changed",
				Body:    htmlBody("Plan changed", lines...),
			}
		},
		SubscriptionCancelled: func(p ComposeParams) Message {
			return Message{
				Subject: "Your subscription has been cancelled",
				Body: htmlBody("Subscription cancelled",
					"Your subscription has been cancelled and will not renew.",
					"You can subscribe again at any time."),
			}
		},
		CardUpdated: func(p ComposeParams) Message {
			lines := []string{"The payment method on your account was updated."}
			lines = append(lines, cardLine(p)...)
			return Message{
				Subject: "Your payment method was updated",
				Body:    htmlBody("Payment method updated", lines...),
			}
		},
		CardDeclined: func(p ComposeParams) Message {
			return Message{
				Subject: "Your card was declined",
				Body: htmlBody("Card declined",
					"We could not charge the card you provided.",
					"Please try a different payment method."),
			}
		},
		PaymentReceipt: func(p ComposeParams) Message {
			line := "We received your payment."
			if p.Amount != nil {
				line = "We received your payment of " + p.Amount.Format() + "."
			}
			return Message{
				Subject: "Payment received",
				Body:    htmlBody("Payment received", line, "Thank you."),
			}
		},
		PaymentFailed: func(p ComposeParams) Message {
			return Message{
				Subject: "Payment failed",
				Body: htmlBody("Payment failed",
					"Your latest payment did not go through.",
					"Please update your payment method to keep your subscription active."),
			}
		},
		ChargeDisputed: func(p ComposeParams) Message {
			return Message{
				Subject: "A payment was disputed",
				Body: htmlBody("Payment disputed",
					"A charge on account "+p.Subscription.AccountID.String()+" was disputed.",
					"Review the dispute in your payment provider dashboard."),
			}
		},
	}
}

func cardLine(p ComposeParams) []string {
	if p.Subscription.CardLast4 == "" {
		return nil
	}
	return []string{"Payments are charged to the card ending in " + p.Subscription.CardLast4 + "."}
}

// htmlBody wraps heading and paragraphs in a minimal table-free layout that
// renders consistently across email clients. All text is escaped.
func htmlBody(heading string, paragraphs ...string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<div style="font-family:sans-serif;max-width:560px;margin:0 auto;padding:24px;">`); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<h2>%s</h2>", html.EscapeString(heading)); err != nil {
			return err
		}
		for _, p := range paragraphs {
			if _, err := fmt.Fprintf(w, "<p>%s</p>", html.EscapeString(p)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}
