package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
	"sumup_pos_app/internal/services"
)

// RefreshTerminalStatusesTaskDef encapsulates the periodic terminal status
// refresh. It runs with missing terminals tolerated so a row removed
// between scheduling and execution never fails the job.
type RefreshTerminalStatusesTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *RefreshTerminalStatusesTaskDef) TaskID() string {
	return "refresh_terminal_statuses"
}

// CreateTask builds the recurring ScheduledTask record for this task
func (t *RefreshTerminalStatusesTaskDef) CreateTask(recurringInterval string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), map[string]interface{}{}, time.Now(), &recurringInterval, models.ScheduledTaskTypeRecurring, 3)
}

// HandleExecution refreshes every registered terminal's statuses
func (t *RefreshTerminalStatusesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	settings, err := services.GetSettings(db)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		log.Printf("[Task: %s] sumup is disabled, skipping", t.TaskID())
		return map[string]interface{}{"status": "skipped", "reason": "sumup_disabled"}, nil
	}

	terminals := services.NewTerminalService(db, services.NewSumUpService())
	report, err := terminals.RefreshStatuses(ctx, nil, false)
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: %s] %s", t.TaskID(), report.Message)
	return map[string]interface{}{
		"status":  "success",
		"updated": report.Updated,
		"failed":  len(report.Failed),
		"message": report.Message,
	}, nil
}

// RefreshTerminalStatusesTask is the singleton instance
var RefreshTerminalStatusesTask = &RefreshTerminalStatusesTaskDef{}
