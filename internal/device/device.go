package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/BarkinBalci/behavior-telemetry/internal/config"
)

// PlatformInfo describes the device the engine runs on
type PlatformInfo struct {
	DeviceModel string
	OSName      string
	OSVersion   string
	Locale      string
}

// AppInfo describes the host application
type AppInfo struct {
	Name    string
	Version string
	Build   string
	Package string
}

// PlatformProvider supplies platform metadata once per process lifetime
type PlatformProvider interface {
	Platform(ctx context.Context) (PlatformInfo, error)
}

// AppProvider supplies application version metadata once per process lifetime
type AppProvider interface {
	App(ctx context.Context) (AppInfo, error)
}

// Properties flattens platform and app metadata into event properties
func Properties(p PlatformInfo, a AppInfo) map[string]any {
	return map[string]any{
		"device_model": p.DeviceModel,
		"os_name":      p.OSName,
		"os_version":   p.OSVersion,
		"locale":       p.Locale,
		"app_name":     a.Name,
		"app_version":  a.Version,
		"app_build":    a.Build,
		"app_package":  a.Package,
	}
}

// RuntimePlatform reads platform metadata from the Go runtime and the
// environment, with optional overrides from configuration
type RuntimePlatform struct {
	cfg config.Device
}

func NewRuntimePlatform(cfg config.Device) *RuntimePlatform {
	return &RuntimePlatform{cfg: cfg}
}

func (r *RuntimePlatform) Platform(ctx context.Context) (PlatformInfo, error) {
	if err := ctx.Err(); err != nil {
		return PlatformInfo{}, err
	}

	model := r.cfg.Model
	if model == "" {
		host, err := os.Hostname()
		if err != nil {
			return PlatformInfo{}, fmt.Errorf("failed to resolve device model: %w", err)
		}
		model = host
	}

	return PlatformInfo{
		DeviceModel: model,
		OSName:      runtime.GOOS,
		OSVersion:   runtime.GOARCH + "/" + runtime.Version(),
		Locale:      locale(r.cfg.Locale),
	}, nil
}

// locale resolves the POSIX locale, e.g. "en_US.UTF-8" -> "en_US"
func locale(override string) string {
	if override != "" {
		return override
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" && v != "C" && v != "POSIX" {
			if i := strings.IndexAny(v, ".@"); i >= 0 {
				v = v[:i]
			}
			return v
		}
	}
	return "en_US"
}

// StaticApp serves app metadata fixed at build or deploy time
type StaticApp struct {
	info AppInfo
}

func NewStaticApp(cfg config.App) *StaticApp {
	return &StaticApp{info: AppInfo{
		Name:    cfg.Name,
		Version: cfg.Version,
		Build:   cfg.Build,
		Package: cfg.Package,
	}}
}

func (s *StaticApp) App(ctx context.Context) (AppInfo, error) {
	if err := ctx.Err(); err != nil {
		return AppInfo{}, err
	}
	if s.info.Name == "" {
		return AppInfo{}, errors.New("app name is not configured")
	}
	return s.info, nil
}
