package chat

import (
	"context"
	"sync"

	"github.com/edubot/tutord/internal/knowledge"
)

type recorderKey struct{}

// recorder collects the passages retrieved by the search tool during a
// single Generate call, keyed by document URL. Citations in the final
// answer are only accepted when they point at a recorded passage, which
// stops the model from fabricating sources. Thread-safe because the
// model may issue parallel tool calls.
type recorder struct {
	mu       sync.Mutex
	passages map[string]knowledge.Passage
}

func newRecorder() *recorder {
	return &recorder{passages: make(map[string]knowledge.Passage)}
}

// withRecorder attaches a fresh recorder to ctx for one generation.
func withRecorder(ctx context.Context) (context.Context, *recorder) {
	r := newRecorder()
	return context.WithValue(ctx, recorderKey{}, r), r
}

// recorderFrom returns the recorder attached to ctx, or nil when the
// tool runs outside a Generate call.
func recorderFrom(ctx context.Context) *recorder {
	r, _ := ctx.Value(recorderKey{}).(*recorder)
	return r
}

// record stores retrieved passages, keeping the highest relevance score
// when the same document is retrieved more than once.
func (r *recorder) record(passages []knowledge.Passage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range passages {
		prev, ok := r.passages[p.DocURL]
		if !ok || p.RelevanceScore > prev.RelevanceScore {
			r.passages[p.DocURL] = p
		}
	}
}

// lookup returns the recorded passage for a document URL, if any.
func (r *recorder) lookup(docURL string) (knowledge.Passage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.passages[docURL]
	return p, ok
}
