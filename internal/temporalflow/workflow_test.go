package temporalflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/sentibridge/oracle/internal/domain"
)

func TestCycleWorkflowHappyPath(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{})

	items := []domain.Item{
		{ID: "a1", Source: domain.SourceNews, Text: "ok", AuthorWeight: 0.5, AssetTags: []string{"$BTC"}},
	}
	scored := []domain.ScoredItem{
		{Item: items[0], Polarity: 0.4, Confidence: 0.8},
	}
	samples := []domain.AssetSample{
		{Asset: "$BTC", ScoreFP: 400_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 1, WindowEndTS: 1000},
	}

	env.OnActivity("ReconcileActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("CollectActivity", mock.Anything, mock.Anything).Return(CollectOutput{Items: items}, nil)
	env.OnActivity("DedupActivity", mock.Anything, mock.Anything).Return(DedupOutput{Items: items}, nil)
	env.OnActivity("ScoreActivity", mock.Anything, mock.Anything).Return(ScoreOutput{Items: scored}, nil)
	env.OnActivity("AggregateActivity", mock.Anything, mock.Anything).Return(AggregateOutput{Samples: samples}, nil)
	env.OnActivity("DetectActivity", mock.Anything, mock.Anything).Return(DetectOutput{Score: 0.1, Vetoed: false}, nil)
	env.OnActivity("SubmitActivity", mock.Anything, mock.Anything).Return(SubmitOutput{TxHashes: []string{"0xabc"}}, nil)

	env.ExecuteWorkflow(CycleWorkflow, CycleWorkflowInput{
		WindowStart:     time.Unix(0, 0),
		WindowEnd:       time.Unix(1000, 0),
		Assets:          []string{"$BTC"},
		ChainID:         1,
		ContractAddress: "0x0000000000000000000000000000000000000001",
		GasCeiling:      2_000_000,
		CycleTimeout:    30 * time.Second,
	})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow returned error: %v", err)
	}

	var out CycleWorkflowOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("failed to decode workflow result: %v", err)
	}
	if out.SamplesSubmitted != 1 {
		t.Errorf("expected 1 submitted sample, got %d", out.SamplesSubmitted)
	}
	if len(out.TxHashes) != 1 {
		t.Errorf("expected 1 tx hash, got %d", len(out.TxHashes))
	}
}

func TestCycleWorkflowVetoedAssetNotSubmitted(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(&Activities{})

	items := []domain.Item{
		{ID: "a1", Source: domain.SourceNews, Text: "ok", AuthorWeight: 0.1, AssetTags: []string{"$BTC"}},
	}
	scored := []domain.ScoredItem{
		{Item: items[0], Polarity: 0.4, Confidence: 0.8},
	}
	samples := []domain.AssetSample{
		{Asset: "$BTC", ScoreFP: 400_000_000_000_000_000, ConfidenceBP: 8000, SampleSize: 1, WindowEndTS: 1000},
	}

	env.OnActivity("ReconcileActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("CollectActivity", mock.Anything, mock.Anything).Return(CollectOutput{Items: items}, nil)
	env.OnActivity("DedupActivity", mock.Anything, mock.Anything).Return(DedupOutput{Items: items}, nil)
	env.OnActivity("ScoreActivity", mock.Anything, mock.Anything).Return(ScoreOutput{Items: scored}, nil)
	env.OnActivity("AggregateActivity", mock.Anything, mock.Anything).Return(AggregateOutput{Samples: samples}, nil)
	env.OnActivity("DetectActivity", mock.Anything, mock.Anything).Return(DetectOutput{Score: 0.9, Vetoed: true}, nil)

	env.ExecuteWorkflow(CycleWorkflow, CycleWorkflowInput{
		WindowStart:  time.Unix(0, 0),
		WindowEnd:    time.Unix(1000, 0),
		Assets:       []string{"$BTC"},
		ChainID:      1,
		CycleTimeout: 30 * time.Second,
	})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow returned error: %v", err)
	}

	var out CycleWorkflowOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("failed to decode workflow result: %v", err)
	}
	if out.SamplesSubmitted != 0 {
		t.Errorf("expected 0 submitted samples for a vetoed asset, got %d", out.SamplesSubmitted)
	}
	if out.SamplesVetoed != 1 {
		t.Errorf("expected 1 vetoed sample, got %d", out.SamplesVetoed)
	}
}
