package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchRequest is one question addressed to one conversation.
type BatchRequest struct {
	Conversation *Conversation
	Question     string
}

// BatchResult pairs a request with its outcome.
type BatchResult struct {
	Result *Result
	Err    error
}

// AnswerBatch runs independent conversations concurrently. Results are
// returned in request order. A failed request does not cancel the
// others; each entry carries its own error.
func (o *Orchestrator) AnswerBatch(ctx context.Context, requests []BatchRequest) []BatchResult {
	results := make([]BatchResult, len(requests))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrent)
	for i, req := range requests {
		g.Go(func() error {
			result, err := o.Answer(ctx, req.Conversation, req.Question)
			results[i] = BatchResult{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
