package telemetry

import "time"

// Event names.
const (
	EventServerStarted = "server_started"
	EventTaskStarted   = "task_started"
	EventTaskFinished  = "task_finished"
	EventTaskRejected  = "task_rejected"
)

// TaskStarted describes a new job. Prompts are never sent.
func TaskStarted(kind, model, provider string, search bool) Properties {
	return Properties{
		"kind":           kind,
		"model":          model,
		"provider":       provider,
		"search_enabled": search,
	}
}

// TaskFinished describes how a job ended.
func TaskFinished(kind, model, status string, steps int, elapsed time.Duration) Properties {
	return Properties{
		"kind":        kind,
		"model":       model,
		"status":      status,
		"steps":       steps,
		"duration_ms": elapsed.Milliseconds(),
	}
}

// TaskRejected counts admission denials by reason count only.
func TaskRejected(kind string, violations int) Properties {
	return Properties{
		"kind":       kind,
		"violations": violations,
	}
}
