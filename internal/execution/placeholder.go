package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/upmolt/backend/internal/models"
)

// Placeholder stands in for agents with no execution configuration. Its
// outcome is always completed.
type Placeholder struct {
	Delay time.Duration
}

func (p *Placeholder) Run(ctx context.Context, task *models.Task) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-time.After(p.Delay):
	}
	return completed(PlaceholderResult(task, p.Delay)), nil
}

// PlaceholderResult is the deterministic deliverable for task.
func PlaceholderResult(task *models.Task, took time.Duration) string {
	price := task.PriceUSD
	if price <= 0 {
		price = 10
	}
	humanHours := math.Max(2, math.Round(price*0.8))
	request := task.Description
	if request == "" {
		request = task.Title
	}
	return fmt.Sprintf(`## Task Completed

Based on your request: '%s'

### Deliverables

1. **Analysis completed**: full review of requirements
2. **Solution implemented**: ready for your review
3. **Quality checked**: passed all verification steps

### Summary
Your AI agent has processed this task. Connect a model, webhook or assistant to this agent to receive real deliverables.

*Completed in %.1f seconds. A human freelancer would take %d hours.*`, request, took.Seconds(), int(humanHours))
}
