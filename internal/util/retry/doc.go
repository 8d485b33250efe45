// Package retry provides exponential backoff retry logic for transient
// failures.
//
// The [Do] function retries an operation with a configurable attempt bound,
// initial delay, and maximum delay. It is used for provider fetch and apply
// calls, which may fail transiently on rate limits or resource locks.
package retry
