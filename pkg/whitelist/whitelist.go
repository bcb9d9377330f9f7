package whitelist

import (
	"net"
	"strings"

	"github.com/activecm/logvigil/util"
)

// DefaultClass is attached to whitelist entries with no explicit @class tag.
const DefaultClass = "whitelisted"

type (
	//List holds the CIDR spans of one whitelist block, tagged by class
	List struct {
		Vars map[string]string // per-rule variable map from the block preamble
		v4   []span
		v6   []span
	}

	span struct {
		block *net.IPNet
		class string
	}
)

// NewList creates an empty whitelist with the given per-rule variables.
func NewList(vars map[string]string) *List {
	if vars == nil {
		vars = make(map[string]string)
	}
	return &List{Vars: vars}
}

// Add inserts one CIDR entry. The address may carry an "ipv4=" or "ipv6="
// prefix forcing its bucket; otherwise the presence of ':' decides. A bare
// address gets a host mask.
func (l *List) Add(address string, class string) error {
	if class == "" {
		class = DefaultClass
	}

	forced := ""
	if strings.HasPrefix(address, "ipv4=") {
		forced = "ipv4"
		address = strings.TrimPrefix(address, "ipv4=")
	} else if strings.HasPrefix(address, "ipv6=") {
		forced = "ipv6"
		address = strings.TrimPrefix(address, "ipv6=")
	}

	blocks, err := util.ParseSubnets([]string{address})
	if err != nil {
		return err
	}
	entry := span{block: blocks[0], class: class}

	switch {
	case forced == "ipv6":
		l.v6 = append(l.v6, entry)
	case forced == "ipv4":
		l.v4 = append(l.v4, entry)
	case util.IsIPv6(address):
		l.v6 = append(l.v6, entry)
	default:
		l.v4 = append(l.v4, entry)
	}
	return nil
}

// Match reports the union of class labels for every span containing ip.
func (l *List) Match(ip net.IP, v6 bool) ([]string, bool) {
	spans := l.v4
	if v6 {
		spans = l.v6
	}
	var classes []string
	for _, entry := range spans {
		if entry.block.Contains(ip) {
			if !util.StringInSlice(entry.class, classes) {
				classes = append(classes, entry.class)
			}
		}
	}
	return classes, len(classes) > 0
}
