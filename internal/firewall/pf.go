package firewall

import (
	"context"
	"fmt"
	"strings"
)

// PF keeps blocked addresses in a pf table. The ruleset must reference the
// table, for example "block drop in quick from <failguard>".
type PF struct {
	runner Runner
	table  string
}

func (b *PF) Name() string { return BackendPF }

func (b *PF) Block(ctx context.Context, address string) error {
	if _, err := b.runner.Run(ctx, "pfctl", "-t", b.table, "-T", "add", address); err != nil {
		return fmt.Errorf("firewall: block %s: %w", address, err)
	}
	return nil
}

func (b *PF) Unblock(ctx context.Context, address string) error {
	blocked, err := b.IsBlocked(ctx, address)
	if err != nil {
		return err
	}
	if !blocked {
		return nil
	}
	if _, err := b.runner.Run(ctx, "pfctl", "-t", b.table, "-T", "delete", address); err != nil {
		return fmt.Errorf("firewall: unblock %s: %w", address, err)
	}
	return nil
}

func (b *PF) IsBlocked(ctx context.Context, address string) (bool, error) {
	addresses, err := b.ListBlocked(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range addresses {
		if a == address {
			return true, nil
		}
	}
	return false, nil
}

func (b *PF) ListBlocked(ctx context.Context) ([]string, error) {
	output, err := b.runner.Run(ctx, "pfctl", "-t", b.table, "-T", "show")
	if err != nil {
		return nil, fmt.Errorf("firewall: show table %s: %w", b.table, err)
	}
	var addresses []string
	for _, line := range strings.Split(string(output), "\n") {
		if a := strings.TrimSpace(line); a != "" {
			addresses = append(addresses, a)
		}
	}
	return addresses, nil
}
