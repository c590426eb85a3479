package manipulation

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentibridge/oracle/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectorCoordinatedSpamVetoed(t *testing.T) {
	d := New(DefaultConfig(), testLogger())

	base := time.Now()
	items := make([]domain.ScoredItem, 500)
	for i := range items {
		text := "buy now buy now buy now buy now buy now"
		if i >= 450 { // remaining 10% distinct, as in the scenario
			text = fmt.Sprintf("unrelated commentary number %d here today", i)
		}
		items[i] = domain.ScoredItem{
			Item: domain.Item{
				Text:         text,
				AuthorWeight: 0.1,
				CreatedAt:    base.Add(time.Duration(i) * 50 * time.Millisecond),
				Source:       domain.SourceTwitterLike,
			},
			Polarity:   0.5,
			Confidence: 0.8,
		}
	}

	score, breakdown := d.Evaluate("B", items)
	if !d.Vetoed(score) {
		t.Fatalf("expected coordinated spam to be vetoed, score=%v breakdown=%+v", score, breakdown)
	}
}

func TestDetectorOrganicTrafficNotVetoed(t *testing.T) {
	d := New(DefaultConfig(), testLogger())

	base := time.Now()
	items := make([]domain.ScoredItem, 10)
	for i := range items {
		items[i] = domain.ScoredItem{
			Item: domain.Item{
				Text:         fmt.Sprintf("distinct organic opinion about the market today %d", i),
				AuthorWeight: 0.6,
				CreatedAt:    base.Add(time.Duration(i) * 37 * time.Second),
				Source:       domain.SourceNews,
			},
			Polarity:   0.4,
			Confidence: 0.7,
		}
	}

	score, _ := d.Evaluate("A", items)
	if d.Vetoed(score) {
		t.Fatalf("expected organic traffic not to be vetoed, score=%v", score)
	}
}

func TestBotDensitySignal(t *testing.T) {
	items := []domain.ScoredItem{
		{Item: domain.Item{AuthorWeight: 0.1}},
		{Item: domain.Item{AuthorWeight: 0.1}},
		{Item: domain.Item{AuthorWeight: 0.9}},
	}
	got, active := botDensity(items)
	want := 2.0 / 3.0
	if !active {
		t.Fatalf("botDensity should be active with %d items", len(items))
	}
	if got != want {
		t.Errorf("botDensity = %v, want %v", got, want)
	}
}
