package llm

import "context"

// FakeCompleter is an in-memory Completer for tests. Responses is consumed
// in order; once exhausted the last entry repeats.
type FakeCompleter struct {
	Responses []Completion
	Err       error
	Calls     []string // captures each userPrompt, for assertions
	next      int
}

func (f *FakeCompleter) Complete(_ context.Context, _ string, userPrompt string) (Completion, error) {
	f.Calls = append(f.Calls, userPrompt)
	if f.Err != nil {
		return Completion{}, f.Err
	}
	if len(f.Responses) == 0 {
		return Completion{}, nil
	}
	idx := f.next
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	} else {
		f.next++
	}
	return f.Responses[idx], nil
}
