// Package psjobs inspects the terminals attached to interactive sessions and
// the job-controlled processes running inside each of them.
//
// Listings are point-in-time: a Pseudoterminal or ProcessRecord is only valid
// for the instant it was sampled and is re-queried on every discovery pass.
// Lines that do not fit the expected column grammar (headers, uptime lines,
// blank or truncated rows) are skipped rather than reported as errors.
package psjobs
