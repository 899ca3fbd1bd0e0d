// Package scheduler fires named autorun triggers.
//
// A trigger is a cron expression, an "@every" descriptor, an HH:MM interval or
// a Go duration. The scheduler only decides when; each trigger's job is
// expected to hand work off without blocking (for example by submitting a run
// to the run manager) and report admission errors.
package scheduler
