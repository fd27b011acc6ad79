package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/crawl-engine/pkg/models"
	"github.com/Sriram-PR/crawl-engine/pkg/orchestrate"
)

// handleCrawlURL handles the crawl_url tool
func (s *Server) handleCrawlURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	seed, err := orchestrate.NormalizeSeed(rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	depth := request.GetInt("depth", s.cfg.DefaultDepth)
	if depth < 0 {
		return mcp.NewToolResultError(fmt.Sprintf("depth must be >= 0, got %d", depth)), nil
	}
	if s.cfg.MaxDepth > 0 && depth > s.cfg.MaxDepth {
		return mcp.NewToolResultError(fmt.Sprintf("depth %d exceeds the server limit of %d", depth, s.cfg.MaxDepth)), nil
	}

	job, created := s.jobManager.CreateJob(seed, depth)
	if !created {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"status":  "already_running",
			"message": "A crawl is already in progress for this seed",
			"job_id":  job.ID,
			"seed":    seed,
		})), nil
	}

	go s.runCrawlJob(job)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"status":  "started",
		"message": "Crawl started successfully",
		"job_id":  job.ID,
		"seed":    seed,
		"depth":   depth,
	})), nil
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := jobSummary(job)
	if job.Report != nil {
		result["report"] = job.Report
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleListJobs handles the list_jobs tool
func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs := s.jobManager.ListJobs()
	summaries := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, jobSummary(job))
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"jobs":       summaries,
		"total_jobs": len(summaries),
	})), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if _, ok := s.jobManager.GetJob(jobID); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	cancelled := s.jobManager.CancelJob(jobID)
	message := "Job cancelled"
	if !cancelled {
		message = "Job already finished"
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":    jobID,
		"cancelled": cancelled,
		"message":   message,
	})), nil
}

// runCrawlJob runs a crawl job in the background
func (s *Server) runCrawlJob(job Job) {
	jobLog := s.log.WithFields(logrus.Fields{"job_id": job.ID, "seed": job.Seed})
	jobCtx, ok := s.jobManager.Start(job.ID)
	if !ok {
		jobLog.Info("Job cancelled before start")
		return
	}

	started := time.Now()
	result, err := s.cfg.Crawler.Crawl(jobCtx, job.Seed, job.Depth)
	report := models.NewCrawlReport(job.Seed, job.Depth, result, err, started, time.Since(started))
	s.jobManager.Finish(job.ID, &report, err)

	switch {
	case err == nil:
		jobLog.WithField("visited", report.VisitedCount).Info("Crawl job completed")
	case errors.Is(err, context.Canceled):
		jobLog.Info("Crawl job cancelled")
	default:
		jobLog.Warnf("Crawl job failed: %v", err)
	}
}

func jobSummary(job Job) map[string]interface{} {
	result := map[string]interface{}{
		"job_id":     job.ID,
		"seed":       job.Seed,
		"depth":      job.Depth,
		"status":     job.Status,
		"started_at": job.StartedAt.Format(time.RFC3339),
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.Report != nil {
		result["visited_count"] = job.Report.VisitedCount
		result["failed_count"] = job.Report.FailedCount
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	return result
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
