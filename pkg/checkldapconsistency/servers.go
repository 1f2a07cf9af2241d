package checkldapconsistency

import (
	"strings"

	"golang.org/x/exp/slices"
)

const (
	// LabelColumnWidth is the width of the leading check label column.
	LabelColumnWidth = 20

	// StateColumnWidth is the width of the trailing STATE column.
	StateColumnWidth = 5

	// MinServerColumnWidth is the minimum width of a per-server column.
	MinServerColumnWidth = 5

	// ServerColumnPadding is added to the longest short hostname.
	ServerColumnPadding = 4
)

// Server is one resolved directory server.
type Server struct {
	Name string // short hostname, used for the report header
	FQDN string // fully qualified name, used for connections and result keys
}

// ServerSet is the ordered set of servers this run operates on together with
// the column layout derived from it.
type ServerSet struct {
	Servers     []*Server
	ColumnWidth int
}

// ResolveServers builds the server set from an explicit server list or,
// when none is given, from SRV discovery below the domain. Explicit names
// without a domain part are qualified with the given domain.
func ResolveServers(explicit []string, domain string, resolver SrvResolver) (*ServerSet, error) {
	hosts := make([]string, 0, len(explicit))

	if len(explicit) > 0 {
		for _, name := range explicit {
			name = strings.TrimSuffix(strings.TrimSpace(name), ".")
			if name == "" {
				continue
			}
			if !strings.Contains(name, ".") {
				name = name + "." + domain
			}
			hosts = append(hosts, name)
		}
	} else {
		discovered, err := resolver.LookupSRV("ldap", "tcp", domain)
		if err != nil {
			return nil, discoveryErrorf("SRV discovery for _ldap._tcp.%s failed: %s", domain, err.Error())
		}
		for _, name := range discovered {
			hosts = append(hosts, strings.TrimSuffix(name, "."))
		}
		slices.Sort(hosts)
	}

	if len(hosts) == 0 {
		return nil, configErrorf("no directory servers, give a server list or a domain with LDAP SRV records")
	}

	set := &ServerSet{
		Servers:     make([]*Server, 0, len(hosts)),
		ColumnWidth: MinServerColumnWidth,
	}
	for _, fqdn := range hosts {
		server := &Server{
			Name: shortHostname(fqdn),
			FQDN: fqdn,
		}
		set.Servers = append(set.Servers, server)
		if width := len(server.Name) + ServerColumnPadding; width > set.ColumnWidth {
			set.ColumnWidth = width
		}
	}

	log.Debugf("resolved %d directory servers, column width %d", len(set.Servers), set.ColumnWidth)

	return set, nil
}

// Names returns the short names in set order.
func (set *ServerSet) Names() []string {
	names := make([]string, 0, len(set.Servers))
	for _, server := range set.Servers {
		names = append(names, server.Name)
	}

	return names
}

// TableWidth returns the total width of the report table.
func (set *ServerSet) TableWidth() int {
	return LabelColumnWidth + len(set.Servers)*set.ColumnWidth + StateColumnWidth
}

func shortHostname(fqdn string) string {
	if idx := strings.Index(fqdn, "."); idx > 0 {
		return fqdn[:idx]
	}

	return fqdn
}
