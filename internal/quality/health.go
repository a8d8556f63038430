package quality

import (
	"math"

	"github.com/datawarden-io/datawarden/internal/verdict"
)

// Health score bands and badges. The badge is part of the wire format:
// dashboards render it directly.
const (
	BadgeHealthy  = "✅"
	BadgeDegraded = "⚠️"
	BadgeCritical = "❌"
	BadgeBlocked  = "🚫"
	BadgeHalted   = "🛑"

	criticalFloor = 30.0
	maxIssues     = 5
	maxAdvice     = 3
)

// Status contribution to the health score. The verdict weighs as much
// as the quality metrics: a clean PASS over mediocre data and a warned
// pass over pristine data land in the same band.
const (
	statusScorePass     = 100.0
	statusScoreWarnings = 70.0
	statusScoreFail     = 0.0
)

// Indicate computes the consumer-facing health indicator from the
// quality metrics and the run outcome. The score and the safe-to-use
// flag are pure arithmetic; the narrative insights are rule-based.
func Indicate(
	metrics *verdict.QualityMetrics,
	status verdict.Status,
	warnings, criticalErrors []string,
) *verdict.HealthIndicator {
	scores := make([]float64, 0, 2)
	issues := make([]string, 0, maxIssues)

	if metrics != nil {
		scores = append(scores, metrics.OverallScore)

		switch metrics.Status {
		case StatusCritical:
			issues = append(issues, "Critical quality issues detected")
		case StatusDegraded:
			issues = append(issues, "Some quality metrics are degraded")
		}
	}

	switch status {
	case verdict.StatusPass:
		scores = append(scores, statusScorePass)
	case verdict.StatusPassWithWarnings:
		scores = append(scores, statusScoreWarnings)
		issues = append(issues, warnings...)
	case verdict.StatusFail:
		scores = append(scores, statusScoreFail)
		issues = append(issues, criticalErrors...)
	}

	score := 50.0
	if len(scores) > 0 {
		total := 0.0
		for i := 0; i < len(scores); i++ {
			total += scores[i]
		}

		score = total / float64(len(scores))
	}

	indicator := &verdict.HealthIndicator{
		Score:    round1(score),
		Issues:   capStrings(issues, maxIssues),
		Insights: insightsFor(score, metrics),
	}

	switch {
	case score >= healthyScore:
		indicator.Badge = BadgeHealthy
		indicator.SafeToUse = true
	case score >= degradedScore:
		indicator.Badge = BadgeDegraded
		indicator.SafeToUse = true
	case score >= criticalFloor:
		indicator.Badge = BadgeCritical
	default:
		indicator.Badge = BadgeBlocked
	}

	// A FAIL verdict is never safe, whatever the arithmetic says.
	if status == verdict.StatusFail {
		indicator.SafeToUse = false
	}

	return indicator
}

// FailureHealth is the fixed indicator for runs halted before any data
// was profiled: nothing to score, nothing safe to use.
func FailureHealth(criticalErrors []string) *verdict.HealthIndicator {
	return &verdict.HealthIndicator{
		Score:     0,
		Badge:     BadgeHalted,
		SafeToUse: false,
		Issues:    append([]string{}, criticalErrors...),
		Insights: verdict.HealthInsights{
			Summary: "Pipeline halted due to critical errors.",
			Recommendations: []string{
				"Fix critical schema violations immediately.",
				"Review the contract or data source.",
			},
			RiskLevel: "High",
		},
	}
}

// insightsFor narrates the score band and appends metric-specific advice.
func insightsFor(score float64, metrics *verdict.QualityMetrics) verdict.HealthInsights {
	var insights verdict.HealthInsights

	switch {
	case score >= healthyScore:
		insights.Summary = "Data is healthy and ready for production use"
		insights.Recommendations = []string{
			"Continue monitoring for any degradation",
			"No immediate action required",
		}
		insights.RiskLevel = "Low"
	case score >= degradedScore:
		insights.Summary = "Data has minor issues but is usable with caution"
		insights.Recommendations = []string{
			"Review non-critical warnings",
			"Monitor for further degradation",
			"Consider fixing issues during next maintenance window",
		}
		insights.RiskLevel = "Medium"
	case score >= 50:
		insights.Summary = "Data quality is degraded and requires attention"
		insights.Recommendations = []string{
			"Investigate root causes of quality issues",
			"Consider blocking new data ingestion",
			"Alert data source owners",
		}
		insights.RiskLevel = "High"
	default:
		insights.Summary = "Data has critical issues and should not be used"
		insights.Recommendations = []string{
			"Block data from production immediately",
			"Investigate critical errors",
			"Contact data source team urgently",
		}
		insights.RiskLevel = "High"
	}

	if metrics != nil {
		if metrics.Completeness < 80 {
			insights.Recommendations = append(insights.Recommendations,
				"High null rate detected - investigate data collection")
		}

		if metrics.Freshness < 80 {
			insights.Recommendations = append(insights.Recommendations,
				"Data is stale - check upstream pipeline delays")
		}

		if metrics.Uniqueness < 90 {
			insights.Recommendations = append(insights.Recommendations,
				"Duplicate records found - check for pipeline replays")
		}
	}

	insights.Recommendations = capStrings(insights.Recommendations, maxAdvice)

	return insights
}

func capStrings(in []string, limit int) []string {
	if len(in) <= limit {
		return in
	}

	return in[:limit]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
