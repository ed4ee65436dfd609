package version

// 构建时通过 -ldflags "-X" 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info 版本信息
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
}

// Get 获取版本信息
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
}

// String 完整版本信息，用于启动日志与 -version
func (i Info) String() string {
	return i.Version + " (" + i.GitCommit + ") built at " + i.BuildTime
}
