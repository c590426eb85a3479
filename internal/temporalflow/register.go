package temporalflow

import "go.temporal.io/sdk/worker"

// RegisterWorkflows registers the cycle workflow on a Temporal worker.
func RegisterWorkflows(w worker.Worker) {
	w.RegisterWorkflow(CycleWorkflow)
}

// RegisterActivities registers the bound activity methods on a Temporal
// worker. a must be the same Activities instance used to build collectors,
// dedup state and detector history for this worker process.
func RegisterActivities(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ReconcileActivity)
	w.RegisterActivity(a.CollectActivity)
	w.RegisterActivity(a.DedupActivity)
	w.RegisterActivity(a.ScoreActivity)
	w.RegisterActivity(a.AggregateActivity)
	w.RegisterActivity(a.DetectActivity)
	w.RegisterActivity(a.SubmitActivity)
}
