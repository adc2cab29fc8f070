package pipeline

import (
	"context"

	"go.uber.org/zap"

	"confsentry/internal/jsonx"
)

// runStage executes one backend call through the full recovery chain:
// generate, extract, repair, then the stage validator supplied by the
// caller.
func (p *Pipeline) callAndRecover(ctx context.Context, prompt string) (string, error) {
	raw, err := p.gen.Generate(ctx, prompt, p.maxTokens)
	if err != nil {
		return "", err
	}
	return jsonx.ExtractAndRepair(raw)
}

// runStage1 identifies the asset from the raw configuration.
func (p *Pipeline) runStage1(ctx context.Context, configText string) (*AssetInfo, error) {
	var asset *AssetInfo
	err := p.retry.execute(ctx, StageAsset, p.log, func(ctx context.Context, feedback string) error {
		doc, err := p.callAndRecover(ctx, buildStage1Prompt(configText, feedback))
		if err != nil {
			return err
		}
		a, err := validateStage1(doc, configText)
		if err != nil {
			return err
		}
		asset = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("asset identified",
		zap.String("vendor", asset.Vendor),
		zap.String("os_type", asset.OSType),
		zap.String("role", asset.Role),
		zap.String("confidence", asset.Confidence.String()))
	return asset, nil
}

// runStage2 selects the compliance criteria for the identified asset,
// serving from the cache when a set for the same asset class exists.
// The returned bool reports a cache hit.
func (p *Pipeline) runStage2(ctx context.Context, asset *AssetInfo) (CriteriaSet, bool, error) {
	if p.cache != nil {
		checks, ok, err := p.cache.Lookup(ctx, asset.Vendor, asset.OSType, asset.Role)
		if err != nil {
			// A broken cache must not fail the run; fall through and
			// generate fresh criteria.
			p.log.Warn("criteria cache lookup failed", zap.Error(err))
		} else if ok {
			p.log.Info("criteria served from cache", zap.Int("checks", len(checks)))
			return checks, true, nil
		}
	}

	var checks CriteriaSet
	err := p.retry.execute(ctx, StageCriteria, p.log, func(ctx context.Context, feedback string) error {
		doc, err := p.callAndRecover(ctx, buildStage2Prompt(asset, feedback))
		if err != nil {
			return err
		}
		cs, err := validateStage2(doc)
		if err != nil {
			return err
		}
		checks = cs
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	p.log.Info("criteria selected", zap.Int("checks", len(checks)))

	if p.cache != nil {
		if err := p.cache.Put(ctx, asset.Vendor, asset.OSType, asset.Role, checks); err != nil {
			p.log.Warn("criteria cache store failed", zap.Error(err))
		}
	}
	return checks, false, nil
}

// runStage3 assesses the original configuration text against the criteria.
// Deliberately the raw config, not a parsed intermediate: the model sees
// exactly what the operator exported.
func (p *Pipeline) runStage3(ctx context.Context, configText string, asset *AssetInfo, checks CriteriaSet) ([]AssessmentResult, *Summary, error) {
	var (
		results []AssessmentResult
		summary *Summary
	)
	err := p.retry.execute(ctx, StageAssessment, p.log, func(ctx context.Context, feedback string) error {
		doc, err := p.callAndRecover(ctx, buildStage3Prompt(configText, asset, checks, feedback))
		if err != nil {
			return err
		}
		rs, sum, err := validateStage3(doc, checks)
		if err != nil {
			return err
		}
		results, summary = rs, sum
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	p.log.Info("assessment complete",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Float64("compliance_score", summary.ComplianceScore))
	return results, summary, nil
}
