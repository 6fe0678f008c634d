package tool

import (
	"context"
	"os"
	"runtime"
	"strings"
	"time"

	"kota/internal/domain"
	"kota/internal/value"
)

var startTime = time.Now()

// SysInfoTool reports facts about the host the assistant runs on.
type SysInfoTool struct{}

func NewSysInfoTool() *SysInfoTool {
	return &SysInfoTool{}
}

func (t *SysInfoTool) Name() string { return "system_info" }
func (t *SysInfoTool) Description() string {
	return "Get basic system information: hostname, OS and version, architecture, CPU count, working directory and Go runtime details."
}
func (t *SysInfoTool) Parameters() value.Value {
	return ToolParameters(nil, nil, nil)
}

func (t *SysInfoTool) Invoke(ctx context.Context, args value.Value) (value.Value, error) {
	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()

	info := value.NewMap()
	info.Set("hostname", value.String(hostname))
	info.Set("os", value.String(runtime.GOOS))
	info.Set("arch", value.String(runtime.GOARCH))
	if ver := osVersion(); ver != "" {
		info.Set("os_version", value.String(ver))
	}
	info.Set("cpus", value.Int(int64(runtime.NumCPU())))
	info.Set("working_dir", value.String(cwd))
	info.Set("go_version", value.String(runtime.Version()))
	info.Set("goroutines", value.Int(int64(runtime.NumGoroutine())))
	info.Set("uptime_seconds", value.Int(int64(time.Since(startTime).Seconds())))
	info.Set("time", value.String(time.Now().Format(time.RFC3339)))
	return value.FromMap(info), nil
}

func osVersion() string {
	if runtime.GOOS != "linux" {
		return ""
	}
	data, err := os.ReadFile("/etc/os-release")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		}
	}
	return ""
}

// Builtins returns the native tools every registry starts with.
func Builtins() []domain.Tool {
	return []domain.Tool{NewSysInfoTool()}
}
