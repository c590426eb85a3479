package temporalflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sentibridge/oracle/internal/domain"
)

// CycleWorkflowInput mirrors orchestrator.Config's per-cycle parameters.
type CycleWorkflowInput struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	Assets          []string
	ChainID         int64
	ContractAddress string
	GasCeiling      uint64
	CycleTimeout    time.Duration // stands in for the ticker orchestrator's deadline D
}

// CycleWorkflowOutput reports what the cycle submitted.
type CycleWorkflowOutput struct {
	SamplesSubmitted int
	SamplesVetoed    int
	TxHashes         []string
}

// CycleWorkflow runs one collect->dedup->score->aggregate->detect->submit
// cycle as a durable Temporal workflow. StartToCloseTimeout on the activity
// options stands in for the ticker orchestrator's cycle deadline D, and
// Temporal's built-in activity retry policy stands in for the Collector's
// own exponential backoff on transient source errors.
func CycleWorkflow(ctx workflow.Context, input CycleWorkflowInput) (CycleWorkflowOutput, error) {
	logger := workflow.GetLogger(ctx)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: input.CycleTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	if err := workflow.ExecuteActivity(ctx, a.ReconcileActivity, ReconcileInput{ChainID: input.ChainID}).Get(ctx, nil); err != nil {
		logger.Warn("nonce reconciliation failed, proceeding with cached nonce state", "error", err)
	}

	var collected CollectOutput
	if err := workflow.ExecuteActivity(ctx, a.CollectActivity, CollectInput{
		WindowStart: input.WindowStart,
		WindowEnd:   input.WindowEnd,
		Assets:      input.Assets,
	}).Get(ctx, &collected); err != nil {
		return CycleWorkflowOutput{}, err
	}

	var deduped DedupOutput
	if err := workflow.ExecuteActivity(ctx, a.DedupActivity, DedupInput{Items: collected.Items}).Get(ctx, &deduped); err != nil {
		return CycleWorkflowOutput{}, err
	}

	var scored ScoreOutput
	if err := workflow.ExecuteActivity(ctx, a.ScoreActivity, ScoreInput{Items: deduped.Items}).Get(ctx, &scored); err != nil {
		return CycleWorkflowOutput{}, err
	}

	windowEndTS := input.WindowEnd.Unix()
	var aggregated AggregateOutput
	if err := workflow.ExecuteActivity(ctx, a.AggregateActivity, AggregateInput{
		Items:       scored.Items,
		WindowEndTS: windowEndTS,
	}).Get(ctx, &aggregated); err != nil {
		return CycleWorkflowOutput{}, err
	}

	itemsByAsset := groupByAsset(scored.Items)

	output := CycleWorkflowOutput{}
	surviving := make([]domain.AssetSample, 0, len(aggregated.Samples))
	for _, sample := range aggregated.Samples {
		var detected DetectOutput
		err := workflow.ExecuteActivity(ctx, a.DetectActivity, DetectInput{
			Asset: sample.Asset,
			Items: itemsByAsset[sample.Asset],
		}).Get(ctx, &detected)
		if err != nil {
			logger.Warn("manipulation detection failed, asset not submitted this cycle", "asset", sample.Asset, "error", err)
			continue
		}

		if detected.Vetoed {
			output.SamplesVetoed++
			continue
		}
		sample.ManipulationScore = detected.Score
		if !sample.Valid() {
			logger.Warn("sample failed invariant check, dropping", "asset", sample.Asset)
			continue
		}
		surviving = append(surviving, sample)
	}

	if len(surviving) == 0 {
		return output, nil
	}

	deadline := workflow.Now(ctx).Add(input.CycleTimeout)
	var submitted SubmitOutput
	if err := workflow.ExecuteActivity(ctx, a.SubmitActivity, SubmitInput{
		Samples:  surviving,
		Deadline: deadline,
	}).Get(ctx, &submitted); err != nil {
		return CycleWorkflowOutput{}, err
	}

	output.SamplesSubmitted = len(surviving)
	output.TxHashes = submitted.TxHashes
	return output, nil
}
