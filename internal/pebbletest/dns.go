// SPDX-License-Identifier: LGPL-3.0-or-later

package pebbletest

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/miekg/dns"
)

// Nameserver is a minimal authoritative resolver: it answers A/TXT queries
// from an in-memory record set, falling back to a default localhost A
// record for anything unregistered, the way a real CA's validation agent
// expects to resolve a throwaway test domain. Adapted from the teacher's
// own DNS/NameserverDB pair.
type Nameserver struct {
	server *dns.Server
	db     *RecordSet
}

// NewNameserver starts an ephemeral UDP nameserver bound to the given
// RecordSet.
func NewNameserver(ctx context.Context, records *RecordSet) (*Nameserver, error) {
	lc := net.ListenConfig{}
	conn, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("pebbletest: listen udp: %w", err)
	}

	srv := &dns.Server{PacketConn: conn, Handler: records}
	go srv.ActivateAndServe()

	return &Nameserver{server: srv, db: records}, nil
}

// Addr is the nameserver's listening address (host:port, UDP).
func (n *Nameserver) Addr() string {
	return n.server.PacketConn.LocalAddr().String()
}

// Shutdown stops the nameserver.
func (n *Nameserver) Shutdown() error {
	return n.server.Shutdown()
}

// RecordSet is a basic in-memory DNS handler keyed by (name, type),
// answering TXT records set by a dns-01 fulfiller under test and falling
// back to a localhost A record for anything else.
type RecordSet struct {
	mu sync.RWMutex
	m  map[string]dns.Msg
}

func key(name string, qtype uint16) string {
	return fmt.Sprintf("%s-%s", name, dns.TypeToString[qtype])
}

// SetTXT registers a TXT answer for name.
func (r *RecordSet) SetTXT(name string, values ...string) {
	rr := &dns.TXT{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
		Txt: values,
	}
	msg := dns.Msg{Answer: []dns.RR{rr}}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[string]dns.Msg{}
	}
	r.m[key(name, dns.TypeTXT)] = msg
}

// DeleteTXT removes a previously registered TXT answer.
func (r *RecordSet) DeleteTXT(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key(name, dns.TypeTXT))
}

func (r *RecordSet) lookup(name string, qtype uint16) (dns.Msg, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.m[key(name, qtype)]
	return msg, ok
}

// ServeDNS answers TXT queries from the record set and A queries with
// 127.0.0.1, the way a validation agent resolving a .test domain in this
// module's own test suite expects.
func (r *RecordSet) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	resp := new(dns.Msg)
	resp.SetReply(req)

	for _, q := range req.Question {
		if msg, ok := r.lookup(q.Name, q.Qtype); ok {
			resp.Answer = append(resp.Answer, msg.Answer...)
			continue
		}
		if q.Qtype == dns.TypeA {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP("127.0.0.1"),
			})
		}
	}

	_ = w.WriteMsg(resp)
}

var _ dns.Handler = (*RecordSet)(nil)
