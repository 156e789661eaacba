// Package firewall applies and lifts address blocks through the host firewall.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"failguard/internal/config"
)

const (
	BackendAuto     = "auto"
	BackendIPTables = "iptables"
	BackendPF       = "pf"
	BackendNetsh    = "netsh"
	BackendMemory   = "memory"

	defaultChain      = "INPUT"
	defaultTable      = "failguard"
	defaultRulePrefix = "failguard"
	defaultTimeout    = 10 * time.Second
)

var ErrUnsupportedBackend = errors.New("firewall: unsupported backend")

// Backend is an enforcement mechanism. Every call is idempotent: blocking a
// blocked address or unblocking an unblocked one succeeds.
type Backend interface {
	Name() string
	Block(ctx context.Context, address string) error
	Unblock(ctx context.Context, address string) error
	IsBlocked(ctx context.Context, address string) (bool, error)
	ListBlocked(ctx context.Context) ([]string, error)
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct {
	sudo    bool
	timeout time.Duration
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.sudo {
		args = append([]string{name}, args...)
		name = "sudo"
	}

	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, name, args...).CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w (output: %s)", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// New builds the backend named in cfg using real command execution.
func New(cfg config.FirewallConfig) (Backend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithRunner(cfg, execRunner{sudo: cfg.UseSudo, timeout: timeout})
}

func NewWithRunner(cfg config.FirewallConfig, runner Runner) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" || name == BackendAuto {
		name = backendForOS(runtime.GOOS)
	}

	prefix := firstNonEmpty(cfg.RulePrefix, defaultRulePrefix)

	var backend Backend
	switch name {
	case BackendIPTables:
		backend = &IPTables{runner: runner, chain: firstNonEmpty(cfg.Chain, defaultChain), comment: prefix}
	case BackendPF:
		backend = &PF{runner: runner, table: firstNonEmpty(cfg.Table, defaultTable)}
	case BackendNetsh:
		backend = &Netsh{runner: runner, prefix: prefix}
	case BackendMemory:
		backend = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
	}

	log.Debug("Firewall backend selected", "backend", backend.Name())
	return backend, nil
}

func backendForOS(goos string) string {
	switch goos {
	case "linux":
		return BackendIPTables
	case "darwin", "freebsd", "openbsd", "netbsd":
		return BackendPF
	case "windows":
		return BackendNetsh
	default:
		return goos
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
