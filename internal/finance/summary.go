package finance

import (
	"time"

	"lunexops/internal/model"
	"lunexops/internal/status"
)

// Summary is the revenue panel of the dashboard.
type Summary struct {
	TotalRevenue    float64                          `json:"total_revenue"`
	Collected       float64                          `json:"collected"`
	Outstanding     float64                          `json:"outstanding"`
	CollectionRate  float64                          `json:"collection_rate"`
	AverageDealSize float64                          `json:"average_deal_size"`
	RevenueByStatus map[status.ProjectStatus]float64 `json:"revenue_by_status"`
	CurrentMonth    *model.MonthlyRevenue            `json:"current_month"`
	PreviousMonth   *model.MonthlyRevenue            `json:"previous_month"`
	MonthlyGrowth   float64                          `json:"monthly_growth"`
}

func Summarize(projects []model.Project, records []model.MonthlyRevenue, now time.Time) Summary {
	year, month := now.Year(), now.Month()
	prevYear, prevMonth := PreviousMonth(year, month)
	current := FindMonth(records, year, month)
	previous := FindMonth(records, prevYear, prevMonth)

	return Summary{
		TotalRevenue:    TotalRevenue(projects),
		Collected:       Collected(projects),
		Outstanding:     Outstanding(projects),
		CollectionRate:  CollectionRate(projects),
		AverageDealSize: AverageDealSize(projects),
		RevenueByStatus: RevenueByStatus(projects),
		CurrentMonth:    current,
		PreviousMonth:   previous,
		MonthlyGrowth:   MonthlyGrowth(current, previous),
	}
}

// Stats is the headline block of the CEO dashboard.
type Stats struct {
	TotalLeads        int     `json:"total_leads"`
	NewLeads          int     `json:"new_leads"`
	ConvertedLeads    int     `json:"converted_leads"`
	ConversionRate    float64 `json:"conversion_rate"`
	PipelineValue     float64 `json:"pipeline_value"`
	TotalProjects     int     `json:"total_projects"`
	CompletedProjects int     `json:"completed_projects"`
	PendingPayments   int     `json:"pending_payments"`
	CompletionRate    float64 `json:"completion_rate"`
}

// DashboardStats computes lead and project counters. Rates are percentages.
func DashboardStats(leads []model.Lead, projects []model.Project) Stats {
	var st Stats
	st.TotalLeads = len(leads)
	for _, l := range leads {
		switch l.Status {
		case status.LeadNew:
			st.NewLeads++
		case status.LeadClosedWon:
			st.ConvertedLeads++
		}
		if l.EstimatedValue != nil && !l.Status.IsTerminal() {
			st.PipelineValue += *l.EstimatedValue
		}
	}
	if st.TotalLeads > 0 {
		st.ConversionRate = float64(st.ConvertedLeads) / float64(st.TotalLeads) * 100
	}

	st.TotalProjects = len(projects)
	for _, p := range projects {
		switch p.Status {
		case status.ProjectCompleted:
			st.CompletedProjects++
		case status.ProjectOnHold:
			st.PendingPayments++
		}
	}
	if st.TotalProjects > 0 {
		st.CompletionRate = float64(st.CompletedProjects) / float64(st.TotalProjects) * 100
	}
	return st
}
