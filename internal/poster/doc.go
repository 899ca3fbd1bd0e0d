// Package poster is the run orchestration engine.
//
// A Manager admits at most one run at a time and executes it on a single
// supervised worker. The worker acquires a browser session and hands it to the
// Executor, which walks the schedule job by job:
//
//	check cancel -> open composer -> select media -> compose text
//	  -> publish | schedule publish -> pace
//
// Cancellation is cooperative. The CancelToken is checked at job boundaries,
// per attached media item, and before every pacing step. Calls into the
// browser session or the content generator are never interrupted by a stop
// request; they observe only process shutdown.
package poster
