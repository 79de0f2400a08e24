package models

// Task is one row of the remote task spreadsheet. Number is nil when the
// number text does not start with digits.
type Task struct {
	Number      *int   `json:"number"`
	NumberText  string `json:"number_text"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Hint        string `json:"hint"`
}

// ProtectedData is what the data source returns for a valid credential
type ProtectedData struct {
	Tasks   []Task `json:"tasks"`
	IsAdmin bool   `json:"is_admin"`
	Count   int    `json:"count"`
}

// Task statuses used by the spreadsheet
const (
	TaskStatusSolved        = "Р"
	TaskStatusCurrentSeries = "Н"
	TaskStatusPostponedHint = "П"
	TaskStatusPostponed     = "От"
)

// TaskStatistics counts tasks by status for the dashboard header
type TaskStatistics struct {
	Total         int `json:"total"`
	Solved        int `json:"solved"`
	CurrentSeries int `json:"current_series"`
	Postponed     int `json:"postponed"`
}

// ComputeTaskStatistics counts tasks by status. Postponed includes both
// postponed variants.
func ComputeTaskStatistics(tasks []Task) TaskStatistics {
	stats := TaskStatistics{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusSolved:
			stats.Solved++
		case TaskStatusCurrentSeries:
			stats.CurrentSeries++
		case TaskStatusPostponed, TaskStatusPostponedHint:
			stats.Postponed++
		}
	}
	return stats
}
