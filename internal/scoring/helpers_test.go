package scoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ahrav/go-grader/internal/llm/transport"
)

// rubricJSON renders a model response with the given criterion scores in
// accuracy, completeness, clarity, depth order.
func rubricJSON(scores [4]float64, feedback string) string {
	return fmt.Sprintf(`Here is my evaluation:
{
  "evaluation": {
    "max_marks": 10,
    "rubric_scores": {
      "accuracy": {"score": %v, "max_score": 4, "level": "Good", "justification": "mostly correct"},
      "completeness": {"score": %v, "max_score": 3, "level": "Satisfactory", "justification": "misses a case"},
      "clarity": {"score": %v, "max_score": 2, "level": "Excellent", "justification": "clear"},
      "depth": {"score": %v, "max_score": 1, "level": "Excellent", "justification": "insightful"}
    },
    "total_score": 99,
    "feedback": %q
  }
}`, scores[0], scores[1], scores[2], scores[3], feedback)
}

// fakeCompleter answers each call with respond(req) and records calls.
type fakeCompleter struct {
	respond func(req *transport.Request) (string, error)

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu     sync.Mutex
	labels []string
}

func (f *fakeCompleter) Complete(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.labels = append(f.labels, req.Label)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &transport.Response{Text: text}, nil
}

func promptContains(req *transport.Request, s string) bool {
	for _, p := range req.Parts {
		if strings.Contains(p.Text, s) {
			return true
		}
	}
	return false
}
