package config

const (
	defaultQueuePath         = "~/.local/share/lectern/queue.json"
	defaultOutputDir         = "~/ClassNotes"
	defaultLogDir            = "~/.local/share/lectern/logs"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultWorkerCommand     = "process-video"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultQueuePollInterval = 1
	defaultCancelGraceSecs   = 10
	defaultNotifyReqTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueuePath: defaultQueuePath,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Worker: Worker{
			Command: defaultWorkerCommand,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			CancelGraceSeconds: defaultCancelGraceSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyReqTimeout,
			Jobs:           true,
			Queue:          true,
			Errors:         true,
		},
	}
}
