package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ulule/limiter/v3"
)

// ProxyTrust resolves the address rate limits and login lockouts are keyed
// on. The zero value trusts no proxy and always uses the socket peer.
type ProxyTrust struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts bare IPs and CIDR ranges.
func ParseTrustedProxies(entries []string) (ProxyTrust, error) {
	var p ProxyTrust
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return ProxyTrust{}, fmt.Errorf("invalid proxy address %q", e)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return ProxyTrust{}, fmt.Errorf("invalid proxy range %q", e)
		}
		p.nets = append(p.nets, n)
	}
	return p, nil
}

func (p ProxyTrust) Enabled() bool { return len(p.nets) > 0 }

func (p ProxyTrust) trusted(ip net.IP) bool {
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the socket peer unless that peer is a trusted proxy. Behind
// a trusted proxy it walks X-Forwarded-For from the right and returns the
// first hop that is not itself a trusted proxy.
func (p ProxyTrust) ClientIP(r *http.Request) string {
	peer := limiter.GetIP(r)
	if peer == nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !p.Enabled() || !p.trusted(peer) {
		return peer.String()
	}

	var hops []string
	for _, h := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(h, ",")...)
	}

	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip
		if !p.trusted(ip) {
			break
		}
	}
	return client.String()
}
