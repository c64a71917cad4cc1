package rtc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrTURNCredentials = errors.New("turn urls require username and credential")

// ICEServers builds the ICE server list handed to browsers. The server never
// terminates media itself; clients use this to configure RTCPeerConnection.
func ICEServers(cfg *config.Config) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	stunURLs, err := cleanURLs(cfg.STUNURLs)
	if err != nil {
		return nil, fmt.Errorf("stun_urls: %w", err)
	}
	if len(stunURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stunURLs})
	}

	turnURLs, err := cleanURLs(cfg.TURNURLs)
	if err != nil {
		return nil, fmt.Errorf("turn_urls: %w", err)
	}
	if len(turnURLs) > 0 {
		user := strings.TrimSpace(cfg.TURNUsername)
		cred := strings.TrimSpace(cfg.TURNCredential)
		if user == "" || cred == "" {
			return nil, ErrTURNCredentials
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnURLs,
			Username:   user,
			Credential: cred,
		})
	}

	log.Info().Str("module", "adapters.rtc").Int("stun", len(stunURLs)).Int("turn", len(turnURLs)).Msg("ice servers configured")
	return servers, nil
}

// cleanURLs trims and validates every entry, dropping blanks.
func cleanURLs(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, err := stun.ParseURI(u); err != nil {
			return nil, fmt.Errorf("invalid ice url %q: %w", u, err)
		}
		out = append(out, u)
	}
	return out, nil
}
