// Package scoring rates incoming leads from the answers on the intake forms.
package scoring

import (
	"math"
	"strings"

	"lunexops/internal/model"
)

type Category string

const (
	CategoryHot  Category = "hot"
	CategoryWarm Category = "warm"
	CategoryCold Category = "cold"
)

// Factor weights, in percent of the final score.
const (
	weightBudget   = 40
	weightTimeline = 25
	weightService  = 15
	weightCompany  = 10
	weightWebsite  = 5
	weightGoals    = 5
)

var budgetScores = map[string]int{
	model.BudgetOver100k:  100,
	model.Budget50kTo100k: 80,
	model.Budget25kTo50k:  60,
	model.Budget10kTo25k:  40,
	model.BudgetUnder10k:  20,
}

var timelineScores = map[string]int{
	"asap":     90,
	"1-month":  80,
	"2-months": 60,
	"3-months": 40,
	"flexible": 20,
}

var serviceScores = map[string]int{
	"luxury":      90,
	"law-firm":    85,
	"consulting":  80,
	"financial":   75,
	"real-estate": 70,
	"ecommerce":   65,
	"other":       50,
}

var budgetPriority = map[string]model.Priority{
	model.BudgetOver100k:  model.PriorityUrgent,
	model.Budget50kTo100k: model.PriorityHigh,
	model.Budget25kTo50k:  model.PriorityMedium,
	model.Budget10kTo25k:  model.PriorityLow,
	model.BudgetUnder10k:  model.PriorityLow,
}

type Factor struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Weight int    `json:"weight"`
}

type Result struct {
	Score    int      `json:"score"`
	Category Category `json:"category"`
	Factors  []Factor `json:"factors"`
}

// Input holds the form answers the score is computed from.
type Input struct {
	BudgetRange string
	Timeline    string
	ServiceType string
	Company     string
	WebsiteURL  string
	Goals       string
}

// Score returns a 0-100 weighted score. Unknown answers score 0 for their factor.
func Score(in Input) Result {
	key := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	factors := []Factor{
		{Name: "budget", Score: budgetScores[key(in.BudgetRange)], Weight: weightBudget},
		{Name: "timeline", Score: timelineScores[key(in.Timeline)], Weight: weightTimeline},
		{Name: "service_type", Score: serviceScores[key(in.ServiceType)], Weight: weightService},
		{Name: "company", Score: presence(in.Company, 0, 70, 30), Weight: weightCompany},
		{Name: "website", Score: presence(in.WebsiteURL, 0, 60, 40), Weight: weightWebsite},
		{Name: "goals", Score: presence(in.Goals, 10, 80, 30), Weight: weightGoals},
	}

	var total float64
	for _, f := range factors {
		total += float64(f.Score*f.Weight) / 100
	}
	score := int(math.Round(total))

	return Result{Score: score, Category: categorize(score), Factors: factors}
}

func presence(s string, minLen, yes, no int) int {
	if len(strings.TrimSpace(s)) > minLen {
		return yes
	}
	return no
}

func categorize(score int) Category {
	switch {
	case score >= 70:
		return CategoryHot
	case score >= 40:
		return CategoryWarm
	default:
		return CategoryCold
	}
}

// PriorityForBudget derives the initial lead priority from its budget bucket.
// Unknown or empty buckets get medium.
func PriorityForBudget(budget string) model.Priority {
	if p, ok := budgetPriority[strings.ToLower(strings.TrimSpace(budget))]; ok {
		return p
	}
	return model.PriorityMedium
}
