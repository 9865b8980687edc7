package domain

import "fmt"

// NodeEndpoint is a remote ledger node candidate the wallet daemon can be
// pointed at. Endpoints are immutable once stored; the "current" one is a
// single mutable pointer owned by the node health monitor.
type NodeEndpoint struct {
	Host     string
	Port     int
	TLS      bool
	Login    string
	Password string
	Label    string
	Default  bool
	Priority int
}

// Addr returns the host:port pair the wallet daemon is started against.
func (e NodeEndpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL returns the base http(s) URL used to probe the node RPC directly.
func (e NodeEndpoint) URL() string {
	scheme := "http"
	if e.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

func (e NodeEndpoint) String() string {
	if len(e.Label) > 0 {
		return fmt.Sprintf("%s (%s)", e.Label, e.Addr())
	}
	return e.Addr()
}
