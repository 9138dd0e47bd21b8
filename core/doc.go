// Package core contains the integration credential contracts, the PKCE and
// state primitives, session lifecycle and the orchestration service. Crypto
// and provider adapters depend on this package; core must not depend on them.
package core
