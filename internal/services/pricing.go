package services

import (
	"math"

	"github.com/upmolt/backend/internal/models"
)

// TaskPrice returns the hire price for tier and the savings against the
// agent's market rate.
func TaskPrice(agent *models.Agent, tier models.Tier) (price, saved float64) {
	mult := tier.Multiplier()
	price = math.Round(agent.PriceUSD * mult)
	saved = math.Max(0, math.Round(agent.MarketRateUSD*mult)-price)
	return price, saved
}

// PlanFor returns the agent's terms for tier, falling back to the platform
// defaults.
func PlanFor(agent *models.Agent, tier models.Tier) (models.PlanTerms, bool) {
	if p, ok := agent.SubscriptionPlans[tier]; ok && p.TasksPerMonth > 0 {
		return p, true
	}
	p, ok := models.DefaultPlans[tier]
	return p, ok
}

func SubscriptionPrice(basePrice float64, p models.PlanTerms) float64 {
	return math.Round(basePrice * float64(p.TasksPerMonth) * (1 - p.DiscountPct/100))
}

// AverageRating is the mean rounded to one decimal.
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}
