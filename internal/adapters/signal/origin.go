package signal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginPolicy decides which browser origins may open a socket. An empty
// allow list accepts every origin.
type OriginPolicy struct {
	allowed map[string]struct{}
	any     bool
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.any = true
			continue
		}
		n, ok := normalizeOrigin(o)
		if !ok {
			log.Warn().Str("module", "signal").Str("origin", o).Msg("ignoring invalid allowed origin")
			continue
		}
		p.allowed[n] = struct{}{}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

func (p *OriginPolicy) Check(r *http.Request) bool {
	if p.any {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		return true
	}
	n, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	_, ok = p.allowed[n]
	if !ok {
		log.Warn().Str("module", "signal").Str("origin", header).Msg("origin rejected")
	}
	return ok
}

// normalizeOrigin lower-cases scheme and host and drops default ports.
func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" &&
		!(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	return scheme + "://" + host, true
}
