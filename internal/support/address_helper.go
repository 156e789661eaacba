package support

import (
	"fmt"
	"net"
	"strings"
)

// IsStrictIPv4 accepts exactly four dot-separated decimal octets of one to
// three digits, each in 0-255.
func IsStrictIPv4(value string) bool {
	parts := strings.Split(value, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}
	return true
}

// IsLocalAddress reports loopback, private, link-local and unspecified
// addresses. Unparseable input counts as local so callers drop it.
func IsLocalAddress(value string) bool {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return true
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// IgnoreList holds networks that must never be banned.
type IgnoreList struct {
	nets []*net.IPNet
}

// ParseIgnoreList accepts CIDR notation or bare addresses, the latter being
// treated as single-host networks.
func ParseIgnoreList(entries []string) (*IgnoreList, error) {
	list := &IgnoreList{}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("ignore list: invalid address %q", entry)
			}
			if ip.To4() != nil {
				entry += "/32"
			} else {
				entry += "/128"
			}
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("ignore list: invalid network %q: %w", raw, err)
		}
		list.nets = append(list.nets, network)
	}
	return list, nil
}

func (l *IgnoreList) Contains(address string) bool {
	if l == nil || len(l.nets) == 0 {
		return false
	}
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	for _, network := range l.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.nets)
}
