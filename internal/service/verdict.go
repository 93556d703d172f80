package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/moats-ai/moats-backend/internal/model"
)

const (
	defaultJudgeMaxPassages = 3
	defaultJudgeTimeout     = 120 * time.Second
	judgeMaxTokens          = 300

	judgeSystemPrompt = "You verify claims against evidence. Follow output format exactly."
)

// JudgeClient abstracts the chat language model used only when structural
// comparison is inconclusive.
type JudgeClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)
}

// VerdictGenerator turns a structural comparison and retrieved evidence into
// a final per-claim verdict, escalating to the LM judge only for
// no-comparison results.
type VerdictGenerator struct {
	judge        JudgeClient
	maxPassages  int
	judgeTimeout time.Duration
}

// NewVerdictGenerator creates a VerdictGenerator.
func NewVerdictGenerator(judge JudgeClient) *VerdictGenerator {
	return &VerdictGenerator{
		judge:        judge,
		maxPassages:  defaultJudgeMaxPassages,
		judgeTimeout: defaultJudgeTimeout,
	}
}

// SetMaxPassages overrides how many passages the judge prompt includes.
func (g *VerdictGenerator) SetMaxPassages(n int) {
	if n > 0 {
		g.maxPassages = n
	}
}

// SetJudgeTimeout overrides the judge call deadline.
func (g *VerdictGenerator) SetJudgeTimeout(d time.Duration) {
	if d > 0 {
		g.judgeTimeout = d
	}
}

// Generate produces the verdict for a single claim. It calls the judge at
// most once, and only when passages exist but comparison was inconclusive.
func (g *VerdictGenerator) Generate(ctx context.Context, claim ClaimStructure, passages []EvidencePassage, cmp Comparison) model.ClaimVerdict {
	if len(passages) == 0 {
		return model.ClaimVerdict{
			ClaimText:  claim.Text,
			Verdict:    model.VerdictNoEvidence,
			Confidence: 0.95,
			Reason:     "No relevant passages found in your documents.",
		}
	}

	best := passages[0]

	switch cmp.Result {
	case ComparisonMatch:
		return model.ClaimVerdict{
			ClaimText:      claim.Text,
			Verdict:        model.VerdictSupported,
			Confidence:     cmp.Confidence,
			EvidenceText:   best.Text,
			EvidenceSource: best.Source,
			EvidencePage:   best.Page,
			Reason:         cmp.Explanation,
		}
	case ComparisonContradiction:
		return model.ClaimVerdict{
			ClaimText:         claim.Text,
			Verdict:           model.VerdictContradicted,
			Confidence:        cmp.Confidence,
			EvidenceText:      best.Text,
			EvidenceSource:    best.Source,
			EvidencePage:      best.Page,
			Reason:            cmp.Explanation,
			ContradictionType: cmp.ContradictionType,
		}
	case ComparisonPartial:
		return model.ClaimVerdict{
			ClaimText:         claim.Text,
			Verdict:           model.VerdictPartial,
			Confidence:        cmp.Confidence,
			EvidenceText:      best.Text,
			EvidenceSource:    best.Source,
			EvidencePage:      best.Page,
			Reason:            cmp.Explanation,
			ContradictionType: cmp.ContradictionType,
		}
	}

	return g.judgeVerdict(ctx, claim, passages)
}

// judgeVerdict asks the chat model for a verdict when symbolic comparison
// cannot decide. A failed call degrades to NoEvidence with a diagnostic
// reason rather than failing the claim.
func (g *VerdictGenerator) judgeVerdict(ctx context.Context, claim ClaimStructure, passages []EvidencePassage) model.ClaimVerdict {
	prompt := buildJudgePrompt(claim.Text, passages, g.maxPassages)

	callCtx, cancel := context.WithTimeout(ctx, g.judgeTimeout)
	defer cancel()

	best := passages[0]

	response, err := g.judge.Chat(callCtx, judgeSystemPrompt, prompt, 0.0, judgeMaxTokens)
	if err != nil {
		return model.ClaimVerdict{
			ClaimText:      claim.Text,
			Verdict:        model.VerdictNoEvidence,
			Confidence:     0.0,
			EvidenceText:   best.Text,
			EvidenceSource: best.Source,
			EvidencePage:   best.Page,
			Reason:         fmt.Sprintf("Verification judge unavailable: %v", err),
			UsedLLM:        true,
		}
	}

	verdict, confidence, reason := parseJudgeResponse(response)

	return model.ClaimVerdict{
		ClaimText:      claim.Text,
		Verdict:        verdict,
		Confidence:     confidence,
		EvidenceText:   best.Text,
		EvidenceSource: best.Source,
		EvidencePage:   best.Page,
		Reason:         reason,
		UsedLLM:        true,
	}
}

// buildJudgePrompt formats the claim and the first up-to-maxPassages
// passages for the judge.
func buildJudgePrompt(claimText string, passages []EvidencePassage, maxPassages int) string {
	if len(passages) > maxPassages {
		passages = passages[:maxPassages]
	}

	var evidence strings.Builder
	for i, p := range passages {
		if i > 0 {
			evidence.WriteString("\n\n")
		}
		page := "?"
		if p.Page != nil {
			page = strconv.Itoa(*p.Page)
		}
		fmt.Fprintf(&evidence, "[%s, page %s]: %s", p.Source, page, p.Text)
	}

	return fmt.Sprintf(`You are verifying a claim against source documents.

CLAIM: %s

EVIDENCE FROM DOCUMENTS:
%s

Based on the evidence, determine:
1. Does the evidence SUPPORT, CONTRADICT, or PARTIALLY SUPPORT the claim?
2. If there's no relevant evidence, say NO_EVIDENCE.

Respond in this exact format:
VERDICT: [SUPPORTED/CONTRADICTED/PARTIAL/NO_EVIDENCE]
CONFIDENCE: [0.0-1.0]
REASON: [One sentence explaining why]
`, claimText, evidence.String())
}

// parseJudgeResponse extracts the three-line protocol. Anything unparseable
// falls back to NoEvidence at 0.5 confidence; out-of-range confidence is
// clamped to [0,1].
func parseJudgeResponse(response string) (model.Verdict, float64, string) {
	verdict := model.VerdictNoEvidence
	confidence := 0.5
	reason := "Could not determine from evidence."

	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			value := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:")))
			value = strings.Trim(value, "[]")
			switch value {
			case "SUPPORTED":
				verdict = model.VerdictSupported
			case "CONTRADICTED":
				verdict = model.VerdictContradicted
			case "PARTIAL":
				verdict = model.VerdictPartial
			default:
				verdict = model.VerdictNoEvidence
			}
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			raw = strings.Trim(raw, "[]")
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				confidence = f
			} else {
				confidence = 0.5
			}
		case strings.HasPrefix(line, "REASON:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "REASON:"))
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return verdict, confidence, reason
}
