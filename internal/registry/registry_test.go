package registry_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/HerbHall/ipscope/internal/config"
	"github.com/HerbHall/ipscope/internal/inventory"
	"github.com/HerbHall/ipscope/internal/recon"
	"github.com/HerbHall/ipscope/internal/registry"
	"github.com/HerbHall/ipscope/internal/testutil"
	"github.com/HerbHall/ipscope/pkg/plugin"
)

// traced wraps a real module, recording lifecycle calls and optionally
// altering its metadata or failing Init.
type traced struct {
	plugin.Plugin
	trace   *[]string
	edit    func(*plugin.PluginInfo)
	initErr error
}

func (m *traced) Info() plugin.PluginInfo {
	info := m.Plugin.Info()
	if m.edit != nil {
		m.edit(&info)
	}
	return info
}

func (m *traced) record(step string) {
	if m.trace != nil {
		*m.trace = append(*m.trace, step+":"+m.Plugin.Info().Name)
	}
}

func (m *traced) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.record("init")
	if m.initErr != nil {
		return m.initErr
	}
	return m.Plugin.Init(ctx, deps)
}

func (m *traced) Start(ctx context.Context) error {
	m.record("start")
	return m.Plugin.Start(ctx)
}

func (m *traced) Stop(ctx context.Context) error {
	m.record("stop")
	return m.Plugin.Stop(ctx)
}

func (m *traced) Routes() []plugin.Route {
	if hp, ok := m.Plugin.(plugin.HTTPProvider); ok {
		return hp.Routes()
	}
	return nil
}

// depsFor hands out the dependencies cmd/ipscope builds, over an in-memory
// store and the configuration v.
func depsFor(t *testing.T, v *viper.Viper) func(string) plugin.Dependencies {
	t.Helper()
	db := testutil.NewStore(t)
	cfg := config.New(v)
	bus := testutil.NewMockBus()
	metrics := prometheus.NewRegistry()
	return func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg.Sub("plugins." + name),
			Logger:  testutil.Logger(t).Named(name),
			Store:   db,
			Bus:     bus,
			Metrics: metrics,
		}
	}
}

func names(ps []plugin.Plugin) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Info().Name
	}
	return out
}

func TestLifecycle_InventoryBeforeRecon(t *testing.T) {
	var trace []string
	reg := registry.New(testutil.Logger(t))
	// Registration order is the reverse of the dependency order.
	for _, p := range []plugin.Plugin{recon.New(), inventory.New()} {
		if err := reg.Register(&traced{Plugin: p, trace: &trace}); err != nil {
			t.Fatalf("Register(%s): %v", p.Info().Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	ctx := context.Background()
	if err := reg.InitAll(ctx, depsFor(t, nil)); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	reg.StopAll(ctx)

	want := []string{
		"init:inventory", "init:recon",
		"start:inventory", "start:recon",
		"stop:recon", "stop:inventory",
	}
	if !slices.Equal(trace, want) {
		t.Errorf("lifecycle = %v, want %v", trace, want)
	}
	if got := names(reg.Enabled()); !slices.Equal(got, []string{"inventory", "recon"}) {
		t.Errorf("Enabled() = %v", got)
	}

	routes := reg.AllRoutes()
	if len(routes["inventory"]) == 0 || len(routes["recon"]) == 0 {
		t.Fatalf("AllRoutes() = %v, want routes for both modules", routes)
	}
	hasScan := slices.ContainsFunc(routes["recon"], func(r plugin.Route) bool {
		return r.Method == "POST" && r.Path == "/subnets/{id}/scan"
	})
	if !hasScan {
		t.Error("recon routes lack POST /subnets/{id}/scan")
	}
}

func TestValidate_ReconDisabledWithoutInventory(t *testing.T) {
	reg := registry.New(testutil.Logger(t))
	if err := reg.Register(recon.New()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want recon disabled instead", err)
	}
	if !reg.IsDisabled("recon") {
		t.Error("recon should be disabled when inventory is not registered")
	}
	if len(reg.Enabled()) != 0 || len(reg.AllRoutes()) != 0 {
		t.Errorf("disabled recon still exposed: enabled=%v routes=%v", names(reg.Enabled()), reg.AllRoutes())
	}
	if err := reg.InitAll(context.Background(), depsFor(t, nil)); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
}

func TestValidate_InventoryRequired(t *testing.T) {
	tests := []struct {
		name string
		edit func(*plugin.PluginInfo)
	}{
		{"api too old", func(i *plugin.PluginInfo) { i.APIVersion = plugin.APIVersionMin - 1 }},
		{"api too new", func(i *plugin.PluginInfo) { i.APIVersion = plugin.APIVersionCurrent + 1 }},
		{"missing dependency", func(i *plugin.PluginInfo) { i.Dependencies = []string{"dhcp"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New(testutil.Logger(t))
			_ = reg.Register(&traced{Plugin: inventory.New(), edit: tt.edit})
			_ = reg.Register(recon.New())

			err := reg.Validate()
			if err == nil || !strings.Contains(err.Error(), `"inventory"`) {
				t.Fatalf("Validate() error = %v, want required inventory failure", err)
			}
		})
	}
}

func TestValidate_CascadeFromOptionalInventory(t *testing.T) {
	reg := registry.New(testutil.Logger(t))
	_ = reg.Register(&traced{Plugin: inventory.New(), edit: func(i *plugin.PluginInfo) {
		i.Required = false
		i.APIVersion = plugin.APIVersionCurrent + 1
	}})
	_ = reg.Register(recon.New())

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reg.IsDisabled("inventory") || !reg.IsDisabled("recon") {
		t.Errorf("disabled: inventory=%v recon=%v, want both", reg.IsDisabled("inventory"), reg.IsDisabled("recon"))
	}
}

func TestValidate_DependencyCycle(t *testing.T) {
	reg := registry.New(testutil.Logger(t))
	_ = reg.Register(&traced{Plugin: inventory.New(), edit: func(i *plugin.PluginInfo) {
		i.Dependencies = []string{"recon"}
	}})
	_ = reg.Register(recon.New())

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected cycle error, got nil")
	}
}

func TestInitAll_InventoryFailureAborts(t *testing.T) {
	var trace []string
	reg := registry.New(testutil.Logger(t))
	_ = reg.Register(&traced{Plugin: inventory.New(), trace: &trace, initErr: errors.New("disk full")})
	_ = reg.Register(&traced{Plugin: recon.New(), trace: &trace})
	if err := reg.Validate(); err != nil {
		t.Fatal(err)
	}

	err := reg.InitAll(context.Background(), depsFor(t, nil))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("InitAll() error = %v, want inventory init failure", err)
	}
	if !slices.Equal(trace, []string{"init:inventory"}) {
		t.Errorf("lifecycle = %v, recon must not initialize", trace)
	}
}

func TestInitAll_OptionalInventoryFailureSkipsRecon(t *testing.T) {
	var trace []string
	reg := registry.New(testutil.Logger(t))
	_ = reg.Register(&traced{
		Plugin:  inventory.New(),
		trace:   &trace,
		edit:    func(i *plugin.PluginInfo) { i.Required = false },
		initErr: errors.New("disk full"),
	})
	_ = reg.Register(&traced{Plugin: recon.New(), trace: &trace})
	_ = reg.Validate()

	if err := reg.InitAll(context.Background(), depsFor(t, nil)); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if !reg.IsDisabled("inventory") || !reg.IsDisabled("recon") {
		t.Error("inventory and its dependent recon should both be disabled")
	}
	if !slices.Equal(trace, []string{"init:inventory"}) {
		t.Errorf("lifecycle = %v, recon must not initialize", trace)
	}
}

func TestInitAll_BadReconConfigDisablesOnlyRecon(t *testing.T) {
	v := viper.New()
	v.Set("plugins.recon.probe_method", "arp")

	reg := registry.New(testutil.Logger(t))
	_ = reg.Register(inventory.New())
	_ = reg.Register(recon.New())
	_ = reg.Validate()

	if err := reg.InitAll(context.Background(), depsFor(t, v)); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if !reg.IsDisabled("recon") || reg.IsDisabled("inventory") {
		t.Errorf("disabled: inventory=%v recon=%v, want recon only", reg.IsDisabled("inventory"), reg.IsDisabled("recon"))
	}
	if _, ok := reg.AllRoutes()["recon"]; ok {
		t.Error("disabled recon still mounts routes")
	}
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
}

func TestRegister_Rejects(t *testing.T) {
	reg := registry.New(testutil.Logger(t))
	if err := reg.Register(inventory.New()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(inventory.New()); err == nil {
		t.Error("Register() accepted a second inventory module")
	}
	unnamed := &traced{Plugin: recon.New(), edit: func(i *plugin.PluginInfo) { i.Name = "" }}
	if err := reg.Register(unnamed); err == nil {
		t.Error("Register() accepted a module without a name")
	}

	if _, ok := reg.Get("inventory"); !ok {
		t.Error("Get(inventory) = false")
	}
	if _, ok := reg.Get("recon"); ok {
		t.Error("Get(recon) = true for an unregistered module")
	}
}
