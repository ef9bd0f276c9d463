package scoring

import (
	"testing"

	"lunexops/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		want     int
		category Category
	}{
		{
			name: "best case",
			in: Input{
				BudgetRange: "over-100k",
				Timeline:    "asap",
				ServiceType: "luxury",
				Company:     "Acme",
				WebsiteURL:  "https://acme.example",
				Goals:       "Relaunch our booking flow",
			},
			// 40 + 22.5 + 13.5 + 7 + 3 + 4 = 90
			want:     90,
			category: CategoryHot,
		},
		{
			name: "empty form",
			in:   Input{},
			// 0 + 0 + 0 + 3 + 2 + 1.5 = 6.5
			want:     7,
			category: CategoryCold,
		},
		{
			name: "mid range",
			in: Input{
				BudgetRange: "25k-50k",
				Timeline:    "2-months",
				ServiceType: "ecommerce",
			},
			// 24 + 15 + 9.75 + 3 + 2 + 1.5 = 55.25
			want:     55,
			category: CategoryWarm,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			if got.Score != tt.want {
				t.Fatalf("score = %d, want %d", got.Score, tt.want)
			}
			if got.Category != tt.category {
				t.Fatalf("category = %s, want %s", got.Category, tt.category)
			}
			if len(got.Factors) != 6 {
				t.Fatalf("factors = %d, want 6", len(got.Factors))
			}
		})
	}
}

func TestShortGoalsScoreLow(t *testing.T) {
	short := Score(Input{Goals: "new site"})
	long := Score(Input{Goals: "a new site with online booking"})
	if short.Score >= long.Score {
		t.Fatalf("short goals %d should score below long goals %d", short.Score, long.Score)
	}
}

func TestPriorityForBudget(t *testing.T) {
	tests := map[string]model.Priority{
		"over-100k": model.PriorityUrgent,
		"50k-100k":  model.PriorityHigh,
		"25k-50k":   model.PriorityMedium,
		"10k-25k":   model.PriorityLow,
		"under-10k": model.PriorityLow,
		"":          model.PriorityMedium,
		"1m-plus":   model.PriorityMedium,
	}
	for budget, want := range tests {
		if got := PriorityForBudget(budget); got != want {
			t.Errorf("PriorityForBudget(%q) = %s, want %s", budget, got, want)
		}
	}
}
