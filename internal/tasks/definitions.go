package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(RefreshTerminalStatusesTask.TaskID(), RefreshTerminalStatusesTask.HandleExecution)
}
