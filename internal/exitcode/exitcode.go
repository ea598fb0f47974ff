package exitcode

const (
	Success      = 0
	UsageError   = 1
	ConfigError  = 2
	DBConnError  = 3
	StageError   = 4
	QualityError = 5
	MergeError   = 6
)
