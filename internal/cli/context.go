package cli

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openclaw/clawguard/internal/ledger"
	"github.com/openclaw/clawguard/internal/lock"
	"github.com/openclaw/clawguard/internal/manifest"
	"github.com/openclaw/clawguard/internal/workspace"
	"github.com/openclaw/clawguard/pkg/logging"
	"github.com/openclaw/clawguard/pkg/progress"
)

// session bundles the components one command invocation works with.
type session struct {
	ws     *workspace.Workspace
	ledger *ledger.Ledger
	store  *manifest.Store
}

// openWorkspace resolves the workspace root, loads its config and applies
// the configured logging unless the flag or environment overrode it.
func openWorkspace() (*session, error) {
	root, err := workspace.Resolve(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Open(root)
	if err != nil {
		return nil, err
	}

	log := logging.Global()
	if viper.GetString("log_level") == "" && ws.Config.Logging.Level != "" {
		if level, err := logging.ParseLevel(ws.Config.Logging.Level); err == nil {
			log.SetLevel(level)
		}
	}
	if ws.Config.Logging.Format != "" {
		log.SetFormat(logging.Format(ws.Config.Logging.Format))
	}

	l := ledger.New(ws)
	return &session{ws: ws, ledger: l, store: manifest.New(ws, recorderFor(l))}, nil
}

// recorderFor audits toolchain actions only once the ledger exists, so a
// plain `sign` never creates a chain without its init entry.
func recorderFor(l *ledger.Ledger) manifest.Recorder {
	if !l.Initialized() {
		return nil
	}
	return l
}

// recorder is the audit sink for components built after openWorkspace.
func (s *session) recorder() manifest.Recorder {
	return recorderFor(s.ledger)
}

// withLock runs fn holding the workspace lock.
func (s *session) withLock(purpose string, fn func() error) error {
	lk, err := lock.Acquire(s.ws.LockPath, purpose)
	if err != nil {
		return err
	}
	defer lk.Release()
	return fn()
}

// progressFor returns a terminal progress callback when stderr is a TTY and
// output is not JSON. The returned func finishes the progress line.
func progressFor(cmd *cobra.Command) (progress.Callback, func()) {
	if jsonOutput {
		return nil, func() {}
	}
	f, ok := cmd.ErrOrStderr().(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil, func() {}
	}
	t := progress.NewTerminal(f)
	return t.Callback(), t.Finish
}
