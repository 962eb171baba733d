package config

import "time"

// Pipeline default values, mirroring engine.DefaultConfig's knobs.
const (
	DefaultPipelineWorkers          = 0
	DefaultPipelineMemoryBudget     = ""
	DefaultPipelineQueueCeiling     = ""
	DefaultPipelineGOGC             = 0
	DefaultPipelineBallastSize      = ""
	DefaultPipelineShutdownDeadline = 30 * time.Second
)
