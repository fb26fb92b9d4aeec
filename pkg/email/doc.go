// Package email delivers billing lifecycle emails.
//
// Two delivery backends implement EmailSender: a Postmark client for
// production and a DevSender that writes emails to disk for local work.
// On top of them, LifecycleMailer implements billingkit.Hooks and turns
// finalize and webhook events into transactional emails.
//
// # Usage
//
//	import (
//		"github.com/dmitrymomot/billingkit"
//		"github.com/dmitrymomot/billingkit/pkg/config"
//		"github.com/dmitrymomot/billingkit/pkg/email"
//	)
//
//	cfg := config.MustLoad[email.Config]()
//	sender := email.MustNewPostmarkClient(cfg)
//
//	mailer := email.NewLifecycleMailer(sender, resolveAccountEmail,
//		email.WithDisputeRecipient(cfg.SupportEmail),
//	)
//
//	flow, err := billingkit.NewOrchestrator(ctx, plans, provider,
//		billingkit.WithHooks(mailer),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	svc := billingkit.NewService(flow, store)
//
// The resolver maps an account ID to its billing address; the embedding
// application owns that lookup.
//
// # Templates
//
// Bodies are templ components. DefaultTemplates ships plain transactional
// copy for every event; WithTemplates replaces individual composers:
//
//	mailer := email.NewLifecycleMailer(sender, resolve,
//		email.WithTemplates(email.Templates{
//			PaymentReceipt: func(p email.ComposeParams) email.Message {
//				return email.Message{
//					Subject: "Receipt from Acme",
//					Body:    views.Receipt(p),
//				}
//			},
//		}),
//	)
//
// # Error Handling
//
// LifecycleMailer never returns an error from a hook: a broken email
// backend must not abort a billing pass that already changed provider
// state. Failures are logged with the configured logger. The senders
// themselves return ErrInvalidParams, ErrInvalidConfig, and
// ErrFailedToSendEmail for direct use.
package email
