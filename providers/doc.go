// Package providers contains the OAuth 2.0 exchange client and the built-in
// provider presets (slack, google, microsoft).
//
// Token endpoint calls run with a per-attempt timeout and are retried once,
// only when the failure is a transient network error. Provider error
// responses surface as core ExchangeFailed errors with the raw body kept in
// a core.ProviderResponseError for logging.
package providers
