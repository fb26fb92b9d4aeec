// Package logger provides a context-aware wrapper around Go's slog package
// adding functional options for configuration, billing-flavored attribute
// constructors, and transparent injection of values stored in
// context.Context.
//
// The single factory New creates a *slog.Logger configured by Option
// functions: output format, minimum level, static attributes applied to every
// record, and ContextExtractor callbacks that pull request-scoped attributes
// out of the context each time a record is handled.
//
// # Architecture
//
// New picks slog.NewTextHandler or slog.NewJSONHandler based on the
// configured Format, then wraps it with LogHandlerDecorator. The decorator
// runs registered ContextExtractor callbacks inside Handle, so values like
// the current account ID are read at log time rather than frozen when the
// logger was built.
//
// Attribute constructors in attr.go (AccountID, PlanID, SubscriptionID,
// Provider, Amount, ...) keep key naming consistent across services emitting
// billing events.
//
// # Usage
//
//	import (
//		"github.com/dmitrymomot/billingkit"
//		"github.com/dmitrymomot/billingkit/pkg/logger"
//	)
//
//	func main() {
//		log := logger.New(
//			logger.WithProduction("billing"),
//			logger.WithContextExtractors(billingkit.AccountLogAttr),
//		)
//		logger.SetAsDefault(log)
//
//		ctx := billingkit.WithAccount(context.Background(), accountID)
//		log.InfoContext(ctx, "plan changed",
//			logger.PlanID(2),
//			logger.Provider("stripe"),
//		)
//	}
//
// billingkit.AccountLogAttr satisfies ContextExtractor, so every record
// logged with a context produced by billingkit.WithAccount carries the
// account automatically.
//
// # Configuration
//
//   - WithDevelopment / WithStaging / WithProduction: per-environment presets.
//   - WithEnvironment: pick a preset from a config string.
//   - WithFormat / WithTextFormatter / WithJSONFormatter: output format.
//   - WithLevel: minimum slog.Level.
//   - WithAttr: static attributes.
//   - WithContextExtractors / WithContextValue: context injection.
//
// # Error Handling
//
// Error and Errors produce attributes only for non-nil errors, so
//
//	log.Info("charge settled", logger.Error(err))
//
// needs no nil check at the call site.
package logger
