package mission

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/conduct/internal/llm"
	"github.com/ShayCichocki/conduct/pkg/models"
)

// Verifier corroborates a cycle's claim that the objective is reached.
type Verifier interface {
	Verify(ctx context.Context, request string, res *models.SessionResult) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, request string, res *models.SessionResult) (bool, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, request string, res *models.SessionResult) (bool, error) {
	return f(ctx, request, res)
}

// verifiedMarker is the token the second pass answers with when the first
// pass holds up.
const verifiedMarker = "VERIFIED"

var (
	conclusionBlock = regexp.MustCompile(`(?is)<conclusion>(.*?)</conclusion>`)
	metWord         = regexp.MustCompile(`(?i)\bMET\b`)
	notMet          = regexp.MustCompile(`(?i)\bNOT\s+MET\b`)
)

const reasoningPrompt = `TASK: Decide whether the objective below has been fully met.
OBJECTIVE: %s

FINDINGS OF THE LATEST CYCLE:
%s

Solve this step by step. State your assumptions and any evidence that is missing.
Format:
<thought>
[step-by-step reasoning]
</thought>
<conclusion>
MET or NOT MET, with one sentence of justification
</conclusion>`

const checkPrompt = `Analyze the following reasoning and conclusion:
%s

Check for:
1. Logical errors.
2. Claims not supported by the findings.
3. Parts of the objective left unaddressed.

If the conclusion is wrong, answer with the corrected conclusion.
If it is correct, answer "VERIFIED" followed by the original conclusion.`

// ReasoningVerifier checks the marker with two completions: a reasoning pass
// and a self-check of that reasoning.
type ReasoningVerifier struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewReasoningVerifier creates a verifier over c.
func NewReasoningVerifier(c llm.Completer, logger *zap.Logger) *ReasoningVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReasoningVerifier{completer: c, logger: logger}
}

// Verify returns true only when the reasoning pass concludes MET and the
// self-check confirms it.
func (v *ReasoningVerifier) Verify(ctx context.Context, request string, res *models.SessionResult) (bool, error) {
	var b strings.Builder
	for _, f := range res.CycleFindings() {
		fmt.Fprintf(&b, "- [%s] %s", f.Severity, f.Title)
		if f.Status != "" {
			fmt.Fprintf(&b, " (status: %s)", f.Status)
		}
		if f.Description != "" {
			fmt.Fprintf(&b, ": %s", f.Description)
		}
		b.WriteString("\n")
	}

	first, err := v.completer.Complete(ctx, []llm.Message{
		llm.User(fmt.Sprintf(reasoningPrompt, request, b.String())),
	}, llm.Options{TaskCategory: models.TaskTypeAnalysis, Temperature: 0.2, MaxTokens: 2048})
	if err != nil {
		return false, fmt.Errorf("reasoning pass: %w", err)
	}

	second, err := v.completer.Complete(ctx, []llm.Message{
		llm.User(fmt.Sprintf(checkPrompt, first)),
	}, llm.Options{TaskCategory: models.TaskTypeAnalysis, Temperature: 0, MaxTokens: 1024})
	if err != nil {
		return false, fmt.Errorf("verification pass: %w", err)
	}

	verified := strings.Contains(strings.ToUpper(second), verifiedMarker) && concludesMet(first)
	v.logger.Info("objective verification finished",
		zap.String("session", res.SessionID),
		zap.Bool("verified", verified))
	return verified, nil
}

// concludesMet reports whether the conclusion block says MET rather than NOT MET.
func concludesMet(response string) bool {
	text := response
	if m := conclusionBlock.FindStringSubmatch(response); m != nil {
		text = m[1]
	}
	return metWord.MatchString(text) && !notMet.MatchString(text)
}

var _ Verifier = (*ReasoningVerifier)(nil)
