package engine

import (
	"net/url"
	"strings"

	"github.com/ace221390/work.ink/internal/config"
)

// Role says which handler a page load belongs to.
type Role string

const (
	RoleOrigin Role = "origin"
	RoleGate   Role = "gate"
	RoleNone   Role = "none"
)

// Router maps page URLs to roles.
type Router struct {
	originHosts map[string]struct{}
	pathPrefix  string
	gateHost    string
}

func NewRouter(o config.OriginConfig, g config.GateConfig) *Router {
	hosts := make(map[string]struct{}, len(o.Hosts))
	for _, h := range o.Hosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Router{
		originHosts: hosts,
		pathPrefix:  o.PathPrefix,
		gateHost:    strings.ToLower(g.Host),
	}
}

// Route returns the role of a page at u.
func (r *Router) Route(u *url.URL) Role {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return RoleNone
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := r.originHosts[host]; ok && strings.HasPrefix(u.Path, r.pathPrefix) {
		return RoleOrigin
	}
	if host == r.gateHost {
		return RoleGate
	}
	return RoleNone
}
