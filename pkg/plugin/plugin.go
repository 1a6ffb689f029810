// Package plugin defines the contract between the ipscope server and its
// modules. Modules are composed at compile time in cmd/ipscope.
package plugin

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Plugin API versions accepted by the registry.
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// PluginInfo describes a module.
type PluginInfo struct {
	Name         string   // Unique identifier (e.g., "recon").
	Version      string   // Semantic version.
	Description  string   // One-line summary.
	Dependencies []string // Names of modules that must initialize first.
	APIVersion   int      // Plugin API version the module was built against.
	Required     bool     // Startup fails instead of disabling the module.
}

// Dependencies are handed to a module during Init.
type Dependencies struct {
	Config  Config
	Logger  *zap.Logger
	Store   Store
	Bus     EventBus
	Metrics prometheus.Registerer
}

// Plugin is implemented by every ipscope module.
type Plugin interface {
	Info() PluginInfo
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Route represents an HTTP route exposed by a plugin.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Config is the read-only configuration view a module receives. It is
// scoped to the module's own sub-tree (plugins.<name>).
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetIntSlice(key string) []int
	IsSet(key string) bool
	Sub(key string) Config
	Unmarshal(target any) error
}
