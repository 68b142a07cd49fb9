// Package jobs hosts the background worker: an Asynq server plus the task
// handlers that run the automatic transfer engine, warm report caches and
// scan the general ledger for unbalanced postings.
package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
)
