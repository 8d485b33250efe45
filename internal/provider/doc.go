// Package provider defines the capability through which the reconciliation
// core reads and mutates live cloud state.
//
// The core never embeds provider-specific logic: it fetches live records and
// submits operations through the Provider interface, and classifies failures
// only via the Retryable flag on Error. Concrete adapters live under
// internal/platform.
package provider
