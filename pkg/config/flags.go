package config

// 命令行参数，由 cmd 包绑定
var (
	ConfigFileFlag string
	LogLevelFlag   string
	ForegroundFlag bool
)
