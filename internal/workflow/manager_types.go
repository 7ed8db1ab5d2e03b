package workflow

import (
	"voxbox/internal/queue"
	"voxbox/internal/stage"
)

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}
