package firewall

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// Netsh creates one inbound block rule per address in Windows Firewall.
type Netsh struct {
	runner Runner
	prefix string
}

func (b *Netsh) Name() string { return BackendNetsh }

func (b *Netsh) ruleName(address string) string {
	return b.prefix + "_" + address
}

func (b *Netsh) Block(ctx context.Context, address string) error {
	if blocked, _ := b.IsBlocked(ctx, address); blocked {
		return nil
	}
	_, err := b.runner.Run(ctx, "netsh", "advfirewall", "firewall", "add", "rule",
		"name="+b.ruleName(address),
		"dir=in",
		"action=block",
		"remoteip="+address,
		"enable=yes",
		"profile=any")
	if err != nil {
		return fmt.Errorf("firewall: block %s: %w", address, err)
	}
	return nil
}

func (b *Netsh) Unblock(ctx context.Context, address string) error {
	if blocked, _ := b.IsBlocked(ctx, address); !blocked {
		return nil
	}
	if _, err := b.runner.Run(ctx, "netsh", "advfirewall", "firewall", "delete", "rule", "name="+b.ruleName(address)); err != nil {
		return fmt.Errorf("firewall: unblock %s: %w", address, err)
	}
	return nil
}

// IsBlocked relies on "show rule" failing when no rule has the name.
func (b *Netsh) IsBlocked(ctx context.Context, address string) (bool, error) {
	_, err := b.runner.Run(ctx, "netsh", "advfirewall", "firewall", "show", "rule", "name="+b.ruleName(address))
	return err == nil, nil
}

func (b *Netsh) ListBlocked(ctx context.Context) ([]string, error) {
	output, err := b.runner.Run(ctx, "netsh", "advfirewall", "firewall", "show", "rule", "name=all", "dir=in")
	if err != nil {
		return nil, fmt.Errorf("firewall: list rules: %w", err)
	}

	namePrefix := b.prefix + "_"
	var addresses []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || strings.TrimSpace(key) != "Rule Name" {
			continue
		}
		if name := strings.TrimSpace(value); strings.HasPrefix(name, namePrefix) {
			addresses = append(addresses, strings.TrimPrefix(name, namePrefix))
		}
	}
	return addresses, scanner.Err()
}
