package core

import (
	"context"
	"time"
)

// ToolMetricBMC records per-tool-invocation timing, the data the REST
// transport's /api/v1/metrics endpoint and health reporting read from.
type ToolMetricBMC struct {
	mm *ModelManager
}

func NewToolMetricBMC(mm *ModelManager) *ToolMetricBMC { return &ToolMetricBMC{mm: mm} }

func (b *ToolMetricBMC) Record(ctx context.Context, projectID, agentID int, toolName string, duration time.Duration, success bool) error {
	var agent any
	if agentID != 0 {
		agent = agentID
	}
	_, err := b.mm.DB.Conn().ExecContext(ctx, `
		INSERT INTO tool_metrics (project_id, tool_name, agent_id, duration_ms, success, recorded_ts)
		VALUES (?, ?, ?, ?, ?, ?)`, projectID, toolName, agent, duration.Milliseconds(), success, time.Now().UTC())
	if err != nil {
		return Internal(err)
	}
	return nil
}

// ToolMetricSummary aggregates call count and average latency per tool.
type ToolMetricSummary struct {
	ToolName   string  `json:"tool_name"`
	CallCount  int     `json:"call_count"`
	AvgMS      float64 `json:"avg_ms"`
	FailureCount int   `json:"failure_count"`
}

func (b *ToolMetricBMC) SummaryForProject(ctx context.Context, projectID int) ([]ToolMetricSummary, error) {
	rows, err := b.mm.DB.Conn().QueryContext(ctx, `
		SELECT tool_name, COUNT(*), AVG(duration_ms), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM tool_metrics WHERE project_id = ? GROUP BY tool_name ORDER BY tool_name`, projectID)
	if err != nil {
		return nil, Internal(err)
	}
	defer rows.Close()

	var out []ToolMetricSummary
	for rows.Next() {
		var s ToolMetricSummary
		if err := rows.Scan(&s.ToolName, &s.CallCount, &s.AvgMS, &s.FailureCount); err != nil {
			return nil, Internal(err)
		}
		out = append(out, s)
	}
	return out, nil
}
