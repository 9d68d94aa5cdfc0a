package runner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/lcrostarosa/lifeboat/internal/config"
	"github.com/lcrostarosa/lifeboat/internal/logging"
)

func staticProvider(cfg *config.Config, err error) ConfigProvider {
	return func(*cobra.Command) (*config.Config, error) {
		return cfg, err
	}
}

// tracer records the interceptor stages a wrapped handler passes through.
type tracer struct{ calls []string }

func (tr *tracer) stage(name string, fail error) Interceptor {
	return func(ctx *CommandContext, cmd *cobra.Command, args []string, next func() error) error {
		tr.calls = append(tr.calls, name)
		if fail != nil {
			return fail
		}
		err := next()
		tr.calls = append(tr.calls, "/"+name)
		return err
	}
}

func (tr *tracer) handler(ctx *CommandContext, cmd *cobra.Command, args []string) error {
	tr.calls = append(tr.calls, "handler")
	return nil
}

func TestInterceptorChain(t *testing.T) {
	denied := errors.New("backup root locked")
	tests := []struct {
		name    string
		fail    map[string]error
		want    []string
		wantErr error
	}{
		{
			name: "all pass",
			want: []string{"log", "config", "logfile", "handler", "/logfile", "/config", "/log"},
		},
		{
			name:    "middle stage stops the chain",
			fail:    map[string]error{"config": denied},
			want:    []string{"log", "config", "/log"},
			wantErr: denied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &tracer{}
			r := NewRunner(staticProvider(&config.Config{}, nil)).Use(
				tr.stage("log", tt.fail["log"]),
				tr.stage("config", tt.fail["config"]),
				tr.stage("logfile", tt.fail["logfile"]),
			)

			err := r.Wrap(tr.handler)(&cobra.Command{}, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(tr.calls) != len(tt.want) {
				t.Fatalf("calls = %v, want %v", tr.calls, tt.want)
			}
			for i := range tt.want {
				if tr.calls[i] != tt.want[i] {
					t.Errorf("calls[%d] = %q, want %q", i, tr.calls[i], tt.want[i])
				}
			}
		})
	}
}

func TestRequireConfig(t *testing.T) {
	loadErr := errors.New("load error")
	tests := []struct {
		name      string
		cfg       *config.Config
		cfgErr    error
		wantErr   error
		wantCalls bool
	}{
		{
			name:      "config loaded",
			cfg:       &config.Config{},
			wantCalls: true,
		},
		{
			name:    "config nil",
			wantErr: ErrNotInitialized,
		},
		{
			name:    "config error",
			cfgErr:  loadErr,
			wantErr: loadErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false

			runner := NewRunner(staticProvider(tt.cfg, tt.cfgErr)).Use(RequireConfig())
			handler := func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
				handlerCalled = true
				return nil
			}

			cmd := &cobra.Command{}
			err := runner.Wrap(handler)(cmd, nil)

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if handlerCalled != tt.wantCalls {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalls)
			}
		})
	}
}

func TestWithLogFile(t *testing.T) {
	t.Cleanup(func() { _ = logging.Init(logging.DefaultConfig()) })

	root := t.TempDir()
	cfg := config.Default(root)
	cfg.LogDir = filepath.Join(root, "logs")
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	var seen string
	runner := NewRunner(staticProvider(cfg, nil)).Use(RequireConfig(), WithLogFile(func() time.Time { return now }))
	handler := func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
		seen = ctx.LogFile
		logging.Debug("handler ran")
		return nil
	}

	cmd := &cobra.Command{Use: "backup"}
	cmd.Flags().Bool("verbose", true, "")
	if err := runner.Wrap(handler)(cmd, []string{"daily"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(cfg.LogDir, "backup_20260314_150926.log")
	if seen != want {
		t.Errorf("log file = %q, want %q", seen, want)
	}
	_ = logging.Sync()
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log entries in the invocation log")
	}
}

func TestContextLazyEngines(t *testing.T) {
	cfg := config.Default(t.TempDir())
	ctx := NewContext(cfg, nil, Engines{})

	a1 := ctx.Assessor()
	a2 := ctx.Assessor()
	if a1 == nil {
		t.Fatal("expected assessment engine, got nil")
	}
	if a1 != a2 {
		t.Error("expected the same assessment engine on repeated calls")
	}
	if ctx.Backups() == nil || ctx.Backups() != ctx.Backups() {
		t.Error("expected one backup engine")
	}
	if ctx.Recovery() == nil || ctx.Recovery() != ctx.Recovery() {
		t.Error("expected one recovery orchestrator")
	}
}

func TestContextNilConfig(t *testing.T) {
	ctx := NewContext(nil, errors.New("bad config"), Engines{})

	if ctx.HasConfig() {
		t.Error("expected HasConfig() to be false")
	}
	if ctx.Assessor() != nil {
		t.Error("expected nil assessment engine without config")
	}
	if ctx.Backups() != nil {
		t.Error("expected nil backup engine without config")
	}
	if ctx.Recovery() != nil {
		t.Error("expected nil recovery orchestrator without config")
	}
}

func TestBuilderPatterns(t *testing.T) {
	t.Cleanup(func() { _ = logging.Init(logging.DefaultConfig()) })

	root := t.TempDir()
	cfg := config.Default(root)
	builder := NewBuilder(staticProvider(cfg, nil), Engines{})

	tests := []struct {
		name   string
		runner *CommandRunner
	}{
		{"Base", builder.Base()},
		{"Config", builder.Config()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(ctx *CommandContext, cmd *cobra.Command, args []string) error {
				return nil
			}

			cmd := &cobra.Command{Use: "assess"}
			err := tt.runner.Wrap(handler)(cmd, nil)

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	unloaded := NewBuilder(staticProvider(nil, nil), Engines{})
	err := unloaded.Config().Wrap(func(*CommandContext, *cobra.Command, []string) error { return nil })(&cobra.Command{}, nil)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestRunnerClone(t *testing.T) {
	original := NewRunner(staticProvider(&config.Config{}, nil)).Use(WithLogging())
	cloned := original.Clone().Use(RequireConfig())

	// Original should have 1 interceptor
	if len(original.interceptors) != 1 {
		t.Errorf("expected original to have 1 interceptor, got %d", len(original.interceptors))
	}

	// Clone should have 2 interceptors
	if len(cloned.interceptors) != 2 {
		t.Errorf("expected clone to have 2 interceptors, got %d", len(cloned.interceptors))
	}
}
