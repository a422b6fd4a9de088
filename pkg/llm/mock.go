package llm

import (
	"context"
	"sync"

	"github.com/entrhq/surf/pkg/types"
)

// MockRunner is a scripted RoundRunner for tests. Each call to
// RunRound pops the next queued result; the final result is repeated
// once the script is exhausted so autonomous loops terminate on the
// continuation heuristic rather than on a nil response.
type MockRunner struct {
	mu      sync.Mutex
	Rounds  []*RoundResult
	Err     error
	History [][]*types.Message
	calls   int
}

// RunRound implements RoundRunner.
func (m *MockRunner) RunRound(ctx context.Context, history []*types.Message, opts RoundOptions) (*RoundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Record a copy of the history for assertions.
	snapshot := make([]*types.Message, len(history))
	copy(snapshot, history)
	m.History = append(m.History, snapshot)

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Rounds) == 0 {
		return &RoundResult{Message: "done", Finished: true}, nil
	}

	idx := m.calls
	if idx >= len(m.Rounds) {
		idx = len(m.Rounds) - 1
	}
	m.calls++
	return m.Rounds[idx], nil
}

// CallCount returns how many rounds were requested.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
