package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/moats-ai/moats-backend/internal/model"
)

const defaultClaimParallelism = 1

// VerificationPipeline drives the full claim verification flow:
// segmentation → extraction → retrieval → comparison → verdict → aggregation.
// A pipeline holds no per-request state and is safe for concurrent use.
type VerificationPipeline struct {
	segmenter  *Segmenter
	extractor  *Extractor
	comparator *Comparator
	retriever  *EvidenceRetriever
	verdicts   *VerdictGenerator

	parallelism int
	metrics     *VerifyMetrics // nil = no metrics
}

// NewVerificationPipeline wires the pipeline components together.
func NewVerificationPipeline(
	segmenter *Segmenter,
	extractor *Extractor,
	comparator *Comparator,
	retriever *EvidenceRetriever,
	verdicts *VerdictGenerator,
) *VerificationPipeline {
	return &VerificationPipeline{
		segmenter:   segmenter,
		extractor:   extractor,
		comparator:  comparator,
		retriever:   retriever,
		verdicts:    verdicts,
		parallelism: defaultClaimParallelism,
	}
}

// SetParallelism bounds how many claims are verified concurrently. Verdict
// order always matches claim order regardless of this setting.
func (p *VerificationPipeline) SetParallelism(n int) {
	if n > 0 {
		p.parallelism = n
	}
}

// SetMetrics attaches pipeline metrics.
func (p *VerificationPipeline) SetMetrics(m *VerifyMetrics) {
	p.metrics = m
}

// Verify checks every claim in text against the documents of a library.
// Downstream failures are localized per claim; only cancellation aborts the
// whole request, in which case no partial result is returned.
func (p *VerificationPipeline) Verify(ctx context.Context, text, libraryID string) (*model.VerificationResult, error) {
	start := time.Now()

	claims := p.segmenter.Segment(text)
	if len(claims) == 0 {
		return &model.VerificationResult{
			TrustScore: 0.0,
			Claims:     []model.ClaimVerdict{},
		}, nil
	}

	verdicts := make([]model.ClaimVerdict, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, claimText := range claims {
		g.Go(func() error {
			v, err := p.verifyClaim(gctx, claimText, libraryID)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only cancellation propagates; no partial result leaves the pipeline.
		return nil, err
	}

	result := aggregate(verdicts)

	if p.metrics != nil {
		for _, v := range result.Claims {
			p.metrics.ClaimsTotal.WithLabelValues(string(v.Verdict)).Inc()
			if v.UsedLLM {
				p.metrics.JudgeCalls.Inc()
			}
		}
		p.metrics.VerifyDuration.Observe(time.Since(start).Seconds())
	}

	slog.Info("verification completed",
		"library_id", libraryID,
		"claims", result.TotalClaims,
		"trust_score", result.TrustScore,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// verifyClaim runs C2–C5 for one claim. The only error it returns is
// cancellation.
func (p *VerificationPipeline) verifyClaim(ctx context.Context, claimText, libraryID string) (model.ClaimVerdict, error) {
	if err := ctx.Err(); err != nil {
		return model.ClaimVerdict{}, err
	}

	claimStructure := p.extractor.Extract(claimText)

	passages := p.retriever.Retrieve(ctx, claimText, libraryID)
	if err := ctx.Err(); err != nil {
		return model.ClaimVerdict{}, err
	}

	if len(passages) == 0 {
		return model.ClaimVerdict{
			ClaimText:  claimText,
			Verdict:    model.VerdictNoEvidence,
			Confidence: 0.95,
			Reason:     "No relevant passages found in your documents.",
		}, nil
	}

	evidenceStructure := p.extractor.Extract(passages[0].Text)
	cmp := p.comparator.Compare(claimStructure, evidenceStructure)

	verdict := p.verdicts.Generate(ctx, claimStructure, passages, cmp)
	if err := ctx.Err(); err != nil {
		return model.ClaimVerdict{}, err
	}
	return verdict, nil
}

// aggregate computes the trust score and per-verdict counts. Supported
// weighs 1.0, Partial 0.6, Contradicted 0.0; NoEvidence claims are excluded
// from both numerator and denominator.
func aggregate(verdicts []model.ClaimVerdict) *model.VerificationResult {
	result := &model.VerificationResult{
		Claims:      verdicts,
		TotalClaims: len(verdicts),
	}

	weightedSum := 0.0
	totalWeight := 0.0

	for _, v := range verdicts {
		switch v.Verdict {
		case model.VerdictSupported:
			result.SupportedCount++
			weightedSum += 1.0 * v.Confidence
			totalWeight += v.Confidence
		case model.VerdictPartial:
			result.PartialCount++
			weightedSum += 0.6 * v.Confidence
			totalWeight += v.Confidence
		case model.VerdictContradicted:
			result.ContradictedCount++
			totalWeight += v.Confidence
		case model.VerdictNoEvidence:
			result.NoEvidenceCount++
		}
	}

	if totalWeight > 0 {
		result.TrustScore = math.Round(weightedSum/totalWeight*100) / 100
	}

	return result
}
