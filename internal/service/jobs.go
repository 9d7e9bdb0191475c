package service

import (
	"context"
	"fmt"

	"github.com/davidfague/bmtool/internal/reportstore"
)

// Job phases.
const (
	PhaseReduce = "reduce"
	PhaseStore  = "store"
)

// ExecuteJob runs a queued matrix job: it reduces the job's matrix and
// stores the grid as a report linked to the job.
func (s *PlotService) ExecuteJob(ctx context.Context, store *reportstore.Store, jobID string) error {
	job, err := store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	req, err := MatrixRequestFromParams(job.Kind, job.Params)
	if err != nil {
		return err
	}

	if err := store.UpdateJobPhase(jobID, PhaseReduce); err != nil {
		s.logger.Warn("failed to update job phase", "job_id", jobID, "error", err)
	}
	res, err := s.ReduceMatrix(ctx, req)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := store.UpdateJobPhase(jobID, PhaseStore); err != nil {
		s.logger.Warn("failed to update job phase", "job_id", jobID, "error", err)
	}
	title := res.Title
	if t := job.Params["title"]; t != "" {
		title = t
	}
	report := &reportstore.Report{
		Kind:   job.Kind,
		Title:  title,
		Params: job.Params,
		Grid:   res.Grid,
	}
	err = s.stage(ctx, "store", job.Kind, func(context.Context) error {
		return store.SaveReport(report)
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	if err := store.SetJobReport(jobID, report.ID); err != nil {
		return fmt.Errorf("failed to link report: %w", err)
	}
	s.logger.Info("job report saved", "job_id", jobID, "report_id", report.ID, "kind", job.Kind)
	return nil
}
