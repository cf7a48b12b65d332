package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dossier/internal/domain"
)

// StubAnalyzer produces canned report sections without real work. Replace
// with a real analysis pipeline.
type StubAnalyzer struct {
	// Delay between sections, zero in tests.
	Delay time.Duration
}

var sections = map[domain.AnalysisKind][]string{
	domain.KindMarketIntelligence: {"market overview", "competitive landscape", "demand signals"},
	domain.KindDueDiligence:       {"financials", "operations", "legal exposure"},
	domain.KindValuation:          {"comparable transactions", "revenue multiples", "estimate"},
}

func (a StubAnalyzer) Analyze(ctx context.Context, job domain.Job, cp Checkpoint) (json.RawMessage, error) {
	secs := sections[job.Kind]
	var done []string
	for i, sec := range secs {
		if a.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.Delay):
			}
		}
		done = append(done, sec)
		progress := (i + 1) * 100 / (len(secs) + 1)
		canceled, err := cp(progress, strings.Join(done, "\n"))
		if err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
		if canceled {
			return nil, ErrCanceled
		}
	}
	result, err := json.Marshal(map[string]any{
		"subjectId": job.SubjectID,
		"kind":      job.Kind,
		"sections":  done,
		"summary":   fmt.Sprintf("%s report for %s", job.Kind, job.SubjectID),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
