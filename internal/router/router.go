// Package router implements longest-prefix-match IPv4 forwarding between
// a set of NetworkInterfaces.
package router

import (
	"net/netip"

	"github.com/netlace/tcpstack/internal/ipv4"
	"github.com/netlace/tcpstack/internal/link"
	"github.com/netlace/tcpstack/internal/netmetrics"
)

type route struct {
	prefix     netip.Prefix
	nextHop    *netip.Addr // nil: destination is directly attached
	ifaceIndex int
}

// Router forwards IPv4 datagrams arriving on any of its interfaces to
// whichever interface owns the longest matching route, decrementing TTL
// and dropping datagrams that have expired.
type Router struct {
	interfaces []*link.Interface
	routes     []route
	label      string
}

// New constructs an empty Router.
func New() *Router {
	return &Router{}
}

// WithLabel sets the identifier this router reports itself as in
// Prometheus metrics, returning r for chaining at construction time.
func (r *Router) WithLabel(label string) *Router {
	r.label = label
	return r
}

// AddInterface registers iface with the router and returns its index,
// used when adding routes that forward out through it.
func (r *Router) AddInterface(iface *link.Interface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

// AddRoute installs a forwarding rule: datagrams whose destination
// matches prefix are sent out ifaceIndex, towards nextHop if set (nil
// for a directly attached network, where the datagram's own destination
// is the next hop).
func (r *Router) AddRoute(prefix netip.Prefix, nextHop *netip.Addr, ifaceIndex int) {
	r.routes = append(r.routes, route{prefix: prefix, nextHop: nextHop, ifaceIndex: ifaceIndex})
}

// Route drains every interface's received datagrams and forwards each
// according to the longest matching route. Ties between equally long
// prefixes resolve to whichever route was added first.
func (r *Router) Route() {
	for _, iface := range r.interfaces {
		for _, dgram := range iface.DrainReceived() {
			r.forward(dgram)
		}
	}
}

func (r *Router) forward(dgram ipv4.Datagram) {
	best, ok := r.match(dgram.Dst)
	if !ok {
		netmetrics.RouteMisses.WithLabelValues(r.label).Inc()
		return
	}
	if dgram.TTL <= 1 {
		return
	}
	if err := dgram.DecrementTTL(); err != nil {
		return
	}

	nextHop := dgram.Dst
	if best.nextHop != nil {
		nextHop = *best.nextHop
	}
	r.interfaces[best.ifaceIndex].SendDatagram(dgram, nextHop)
}

func (r *Router) match(dst netip.Addr) (route, bool) {
	var best route
	found := false
	for _, rt := range r.routes {
		if !rt.prefix.Contains(dst) {
			continue
		}
		if !found || rt.prefix.Bits() > best.prefix.Bits() {
			best, found = rt, true
		}
	}
	return best, found
}
