package topology

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/logging"
)

const (
	oidSysDescr = "1.3.6.1.2.1.1.1.0"
	oidSysName  = "1.3.6.1.2.1.1.5.0"

	resolvConf        = "/etc/resolv.conf"
	defaultDNSPort    = "53"
	fallbackResolver  = "127.0.0.1:53"
	snmpRetries       = 1
	maxSysDescrLength = 200
)

// resolver looks up the PTR name for an address.
type resolver interface {
	reverse(ctx context.Context, addr string) (string, bool)
}

// snmpQuerier fetches device identity over SNMP.
type snmpQuerier interface {
	identify(addr string) (sysName, sysDescr string, ok bool)
}

// dnsResolver resolves PTR records through a specific DNS server using
// miekg/dns, so enrichment works inside containers with broken stub
// resolvers.
type dnsResolver struct {
	server  string
	timeout time.Duration
	logger  *logging.Logger
}

func newDNSResolver(cfg config.DNSConfig, logger *logging.Logger) *dnsResolver {
	server := cfg.Resolver
	if server == "" {
		if conf, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(conf.Servers) > 0 {
			server = conf.Servers[0] + ":" + conf.Port
		} else {
			server = fallbackResolver
		}
	} else if !strings.Contains(server, ":") {
		server += ":" + defaultDNSPort
	}

	return &dnsResolver{
		server:  server,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func (r *dnsResolver) reverse(ctx context.Context, addr string) (string, bool) {
	name, err := dns.ReverseAddr(addr)
	if err != nil {
		return "", false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)

	client := &dns.Client{Timeout: r.timeout}
	response, _, err := client.ExchangeContext(ctx, msg, r.server)
	if err != nil || response == nil || response.Rcode != dns.RcodeSuccess {
		return "", false
	}

	for _, answer := range response.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), true
		}
	}
	return "", false
}

// snmpClient identifies devices via SNMP v2c sysName/sysDescr.
type snmpClient struct {
	community string
	port      uint16
	timeout   time.Duration
	logger    *logging.Logger
}

func newSNMPClient(cfg config.SNMPConfig, logger *logging.Logger) *snmpClient {
	return &snmpClient{
		community: cfg.Community,
		port:      cfg.Port,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

func (c *snmpClient) identify(addr string) (string, string, bool) {
	client := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      c.port,
		Community: c.community,
		Version:   gosnmp.Version2c,
		Timeout:   c.timeout,
		Retries:   snmpRetries,
	}

	if err := client.Connect(); err != nil {
		c.logger.Debug("snmp connect failed", "address", addr, "error", err)
		return "", "", false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysName, oidSysDescr})
	if err != nil {
		c.logger.Debug("snmp get failed", "address", addr, "error", err)
		return "", "", false
	}

	var sysName, sysDescr string
	for _, variable := range result.Variables {
		value, ok := variable.Value.([]byte)
		if !ok {
			continue
		}
		switch variable.Name {
		case "." + oidSysName:
			sysName = string(value)
		case "." + oidSysDescr:
			sysDescr = truncate(string(value), maxSysDescrLength)
		}
	}

	return sysName, sysDescr, sysName != "" || sysDescr != ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
