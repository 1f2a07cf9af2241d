package checkldapconsistency

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// SrvResolver looks up the hostnames behind a DNS SRV service record.
type SrvResolver interface {
	LookupSRV(service, proto, domain string) ([]string, error)
}

// DNSResolver resolves SRV records with the nameservers from the system
// resolver configuration.
type DNSResolver struct {
	Timeout    time.Duration
	ConfigFile string // resolver config, defaults to /etc/resolv.conf
}

func NewDNSResolver(timeout time.Duration) *DNSResolver {
	return &DNSResolver{
		Timeout:    timeout,
		ConfigFile: "/etc/resolv.conf",
	}
}

// LookupSRV returns the target hostnames of the given SRV record, ex.:
// LookupSRV("ldap", "tcp", "ipa.example.com") queries
// _ldap._tcp.ipa.example.com.
func (r *DNSResolver) LookupSRV(service, proto, domain string) ([]string, error) {
	conf, err := dns.ClientConfigFromFile(r.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read resolver config %s: %s", r.ConfigFile, err.Error())
	}

	client := &dns.Client{Timeout: r.Timeout}
	msg := &dns.Msg{}
	record := dns.Fqdn(fmt.Sprintf("_%s._%s.%s", service, proto, domain))
	msg.SetQuestion(record, dns.TypeSRV)
	msg.Id = dns.Id()

	var lastErr error
	for _, nameserver := range conf.Servers {
		reply, _, err := client.Exchange(msg, net.JoinHostPort(nameserver, conf.Port))
		if err != nil {
			lastErr = err
			log.Debugf("SRV lookup %s at %s failed: %s", record, nameserver, err.Error())

			continue
		}
		if reply.MsgHdr.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("SRV lookup %s returned %s", record, dns.RcodeToString[reply.MsgHdr.Rcode])

			continue
		}

		hosts := make([]string, 0, len(reply.Answer))
		for _, answer := range reply.Answer {
			if srv, ok := answer.(*dns.SRV); ok {
				hosts = append(hosts, srv.Target)
			}
		}

		return hosts, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no nameservers configured in %s", r.ConfigFile)
	}

	return nil, lastErr
}
