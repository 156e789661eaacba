package firewall

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
)

// IPTables drops traffic from blocked addresses with one commented rule per
// address in a single chain.
type IPTables struct {
	runner  Runner
	chain   string
	comment string
}

func (b *IPTables) Name() string { return BackendIPTables }

func (b *IPTables) Block(ctx context.Context, address string) error {
	binary, source, err := b.target(address)
	if err != nil {
		return err
	}
	if b.exists(ctx, binary, source) {
		return nil
	}
	args := append([]string{"-I", b.chain, "1"}, b.ruleSpec(source)...)
	if _, err := b.runner.Run(ctx, binary, args...); err != nil {
		return fmt.Errorf("firewall: block %s: %w", address, err)
	}
	return nil
}

func (b *IPTables) Unblock(ctx context.Context, address string) error {
	binary, source, err := b.target(address)
	if err != nil {
		return err
	}
	if !b.exists(ctx, binary, source) {
		return nil
	}
	args := append([]string{"-D", b.chain}, b.ruleSpec(source)...)
	if _, err := b.runner.Run(ctx, binary, args...); err != nil {
		return fmt.Errorf("firewall: unblock %s: %w", address, err)
	}
	return nil
}

func (b *IPTables) IsBlocked(ctx context.Context, address string) (bool, error) {
	binary, source, err := b.target(address)
	if err != nil {
		return false, err
	}
	return b.exists(ctx, binary, source), nil
}

// ListBlocked returns the IPv4 addresses carrying this backend's comment.
func (b *IPTables) ListBlocked(ctx context.Context) ([]string, error) {
	output, err := b.runner.Run(ctx, "iptables", "-S", b.chain)
	if err != nil {
		return nil, fmt.Errorf("firewall: list %s: %w", b.chain, err)
	}

	marker := "--comment " + b.comment
	var addresses []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, marker) || !strings.Contains(line, "-j DROP") {
			continue
		}
		fields := strings.Fields(line)
		for i := 0; i+1 < len(fields); i++ {
			if fields[i] == "-s" {
				addresses = append(addresses, strings.TrimSuffix(fields[i+1], "/32"))
				break
			}
		}
	}
	return addresses, scanner.Err()
}

// exists uses -C, which exits non-zero when the rule is absent.
func (b *IPTables) exists(ctx context.Context, binary, source string) bool {
	args := append([]string{"-C", b.chain}, b.ruleSpec(source)...)
	_, err := b.runner.Run(ctx, binary, args...)
	return err == nil
}

func (b *IPTables) ruleSpec(source string) []string {
	return []string{"-s", source, "-j", "DROP", "-m", "comment", "--comment", b.comment}
}

func (b *IPTables) target(address string) (string, string, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return "", "", fmt.Errorf("firewall: invalid address %q", address)
	}
	if v4 := ip.To4(); v4 != nil {
		return "iptables", v4.String() + "/32", nil
	}
	return "ip6tables", ip.String() + "/128", nil
}
