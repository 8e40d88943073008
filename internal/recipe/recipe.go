// Package recipe synthesizes a container build recipe for a repository by
// prompting a text-completion model, retrying with the prior failure
// appended until an attempt budget is exhausted.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andywolf/agentium/internal/llm"
)

// ErrRecipeSynthesisFailed is returned once every synthesis attempt has been
// exhausted. The Workspace Runner maps this to the build_failed status.
var ErrRecipeSynthesisFailed = errors.New("recipe: synthesis failed after all attempts")

const maxAttempts = 3

const systemPrompt = `You generate a single Dockerfile for an automated coding-agent sandbox.
Respond with only the Dockerfile contents, no prose, no markdown code fences.
The Dockerfile you produce MUST satisfy every one of these invariants:
1. A base image selected for the target language (fall back to a general-purpose Linux base if unsure).
2. Install shell utilities (curl, git, sudo, ca-certificates), the provider CLI (downloaded from the
   provider's release index for the container's architecture), and the coding-agent binary (via its
   documented installer).
3. Create a non-root user with password-less sudo.
4. Pre-seed known_hosts entries for the provider's git host.
5. Clone the fork repository to /home/<user>/repo and add an "upstream" remote pointing at the origin URL.
6. Extend PATH to include the coding-agent binary's install location.
7. End with a long-running default command (e.g. "tail -f /dev/null") so the container stays alive
   for exec-based driving.`

// Request describes the repository a recipe is being synthesized for.
type Request struct {
	RepositoryFullName string
	OriginURL          string
	ForkURL            string
	PrimaryLanguage    string
	PreviousError      string // non-empty on a retry after a failed build
}

// Synthesizer produces container build recipes via a Completer, retrying on
// failure with the prior error folded into the next prompt.
type Synthesizer struct {
	completer llm.Completer
}

// New builds a Synthesizer backed by completer.
func New(completer llm.Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Synthesize produces a Dockerfile for req, retrying up to maxAttempts times
// on completion errors. buildErrorFn, if non-nil, is invoked after each
// attempt with the produced recipe to let the caller try building it; a
// non-nil return value is treated as a build failure and fed into the next
// attempt's prompt. Passing a nil buildErrorFn produces exactly one
// completion with no build-time feedback loop.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request, tryBuild func(dockerfile string) error) (string, error) {
	var lastErr error
	attemptErr := req.PreviousError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prompt := buildPrompt(req, attemptErr)

		completion, err := s.completer.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			lastErr = err
			attemptErr = err.Error()
			continue
		}

		dockerfile := stripCodeFences(completion.Text)
		if dockerfile == "" {
			lastErr = fmt.Errorf("recipe: attempt %d produced an empty recipe", attempt)
			attemptErr = lastErr.Error()
			continue
		}

		if tryBuild == nil {
			return dockerfile, nil
		}
		if buildErr := tryBuild(dockerfile); buildErr != nil {
			lastErr = buildErr
			attemptErr = buildErr.Error()
			continue
		}
		return dockerfile, nil
	}

	return "", fmt.Errorf("%w: %v", ErrRecipeSynthesisFailed, lastErr)
}

func buildPrompt(req Request, previousError string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", req.RepositoryFullName)
	fmt.Fprintf(&b, "Origin URL: %s\n", req.OriginURL)
	fmt.Fprintf(&b, "Fork URL: %s\n", req.ForkURL)
	fmt.Fprintf(&b, "Primary language: %s\n", req.PrimaryLanguage)
	if previousError != "" {
		fmt.Fprintf(&b, "\nThe previous attempt failed with this error; fix the recipe accordingly:\n%s\n", previousError)
	}
	return b.String()
}

// stripCodeFences removes a leading/trailing ``` fence (with an optional
// language tag on the opening fence) if the model wrapped its response in one
// despite being asked not to.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
