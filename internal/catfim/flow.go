package catfim

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/catkey"
	"github.com/sells-group/catfim/internal/inundate"
	"github.com/sells-group/catfim/internal/model"
	"github.com/sells-group/catfim/internal/stages"
)

// flowGauge processes one gauge in flow mode and returns its status. An
// empty status means success.
func (r *Runner) flowGauge(ctx context.Context, job *hucJob, m *model.SiteMetadata) (string, error) {
	lid := m.LID()
	log := job.log.With(zap.String("lid", lid))

	th, err := r.deps.Thresholds.FetchThresholds(ctx, lid)
	if err != nil || th == nil {
		log.Warn("threshold lookup failed", zap.Error(err))
		return model.StatusThresholdFetch, nil
	}
	if present, _ := th.Stages.Present(); len(present) == 0 {
		return model.StatusNoThresholds, nil
	}
	if stages.AllFlowsMissing(th.Flows) {
		return model.StatusMissingAllFlows, nil
	}

	segs := r.segmentIDs(m, log)
	if len(segs) == 0 {
		return model.StatusNoSegments, nil
	}
	flows, warning, ok := stages.ResolveFlows(th.Flows)
	if !ok {
		return warning, nil
	}

	paths := make([]string, len(flows))
	for i, f := range flows {
		paths[i] = stages.FlowFilePath(r.layout.Flows(), job.huc, lid, f.Category)
		if err := stages.WriteFlowFile(paths[i], segs, f.CMS); err != nil {
			return "", err
		}
	}

	site := stages.SiteFromMetadata(m, job.huc)
	if err := stages.WriteAttributes(stages.AttributesPath(r.layout.Attributes(), lid), stages.FlowAttributes(site, th)); err != nil {
		return "", err
	}

	produced := false
	for i, f := range flows {
		q, err := stages.ReadFlowFile(paths[i])
		if err != nil {
			return "", err
		}
		written, err := r.inundateProduct(ctx, job, lid, catkey.Flow(f.Category),
			inundate.FlowMasks(q, r.cfg.Inundation.DepthCapM))
		if err != nil {
			return "", err
		}
		produced = produced || written
	}
	if !produced {
		return model.StatusAllStagesFailed, nil
	}
	return warning, nil
}
