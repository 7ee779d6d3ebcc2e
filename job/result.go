package job

import (
	"fmt"

	"safemigrator/models"
)

// BatchResult wraps a batch report in the result envelope.
func BatchResult(r *models.BatchReport) models.Result {
	summary := fmt.Sprintf("run %s: %d eligible, %d processed, %d succeeded, %d skipped",
		r.RunID, r.Eligible, len(r.Outcomes), r.Succeeded(), len(r.Skipped))
	if r.Stopped != "" {
		summary += " (stopped: " + r.Stopped + ")"
	}
	return models.Result{Success: r.Succeeded() == len(r.Outcomes), Summary: summary, Items: r.Outcomes}
}

// ItemsResult wraps per-asset outcomes of verb.
func ItemsResult(verb string, items []models.Outcome) models.Result {
	ok := 0
	for _, o := range items {
		if o.Kind == "" {
			ok++
		}
	}
	return models.Result{
		Success: ok == len(items),
		Summary: fmt.Sprintf("%s: %d of %d succeeded", verb, ok, len(items)),
		Items:   items,
	}
}

// ErrorResult reports an operation that could not run at all.
func ErrorResult(err error) models.Result {
	return models.Result{Summary: err.Error()}
}
