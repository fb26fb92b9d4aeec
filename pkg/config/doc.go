// Package config provides a type-safe, generic and cached way to load
// application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11 behind a
// small API that:
//
//   - Loads values from one or more .env files, falling back to the default
//     .env in the working directory.
//   - Parses the environment into any Go struct using env field tags.
//   - Caches each successfully loaded configuration type so it is parsed at
//     most once per process.
//   - Offers panicking variants (MustLoadEnv, MustLoad) for configuration the
//     process cannot start without.
//   - Allows an explicit cache reset for tests that mutate the environment.
//
// # Architecture
//
// A package-level cache stores parsed struct copies keyed by their type name.
// Each key holds a sync.Once so concurrent first loads of the same type parse
// exactly once; later calls copy out of the cache.
//
// # Usage
//
// The billing provider configs carry env tags already, so wiring a provider
// from the environment is two calls:
//
//	var cfg billingkit.StripeConfig
//	config.MustLoad(&cfg)
//
//	provider, err := billingkit.NewStripeProvider(cfg)
//
// # Error Handling
//
// Load failures wrap ErrParsingConfig (with the underlying parser error
// joined), so callers can branch on the class of failure:
//
//	if errors.Is(err, config.ErrParsingConfig) {
//		// missing or malformed environment
//	}
package config
