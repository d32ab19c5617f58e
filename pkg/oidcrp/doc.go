// Package oidcrp is the relying-party toolkit: it validates opaque bearer
// tokens against a remote introspection authority and resolves user-supplied
// identifiers to OpenID Connect issuers via WebFinger discovery.
//
// Both halves cache aggressively. Introspection results are held until the
// token's own expiry; issuer resolutions are held in a read-through cache
// that coalesces concurrent lookups for the same identifier.
package oidcrp
