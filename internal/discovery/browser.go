/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// mdnsAddr is the IPv4 multicast group and port mDNS responders
// listen on (RFC 6762).
const mdnsAddr = `224.0.0.251:5353`

// Event is one DNS-SD record observed on the wire: a bare PTR
// announcement names a service instance; an event carrying Target and
// TXT is a resolved one.
type Event struct {
	Name      string
	Domain    domain
	Transport Transport
	Target    string
	Port      uint16
	TXT       map[string]string
}

// EventFunc receives one Event per DNS-SD record the browser decodes.
type EventFunc func(Event)

// Browse sends a PTR query for every service type t covers and
// decodes responses until ctx is canceled, invoking onEvent for each
// PTR/SRV/TXT-bearing answer observed. It never returns a non-nil
// error for a canceled context; it returns one only if the multicast
// socket itself could not be opened.
func Browse(ctx context.Context, t Transport, onEvent EventFunc) error {
	conn, err := net.ListenUDP(`udp4`, &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return fmt.Errorf("discovery: open mdns socket: %w", err)
	}
	defer conn.Close()

	group, err := net.ResolveUDPAddr(`udp4`, mdnsAddr)
	if err != nil {
		return fmt.Errorf("discovery: resolve mdns group: %w", err)
	}

	for _, svcType := range t.ServiceTypes() {
		q := new(dns.Msg)
		q.SetQuestion(dns.Fqdn(svcType+`.local`), dns.TypePTR)
		q.RecursionDesired = false
		buf, err := q.Pack()
		if err != nil {
			continue
		}
		_, _ = conn.WriteToUDP(buf, group)
	}

	buf := make([]byte, 9000)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond)); err != nil {
			return nil
		}
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			continue
		}
		decodeMessage(t, msg, onEvent)
	}
}

// decodeMessage walks a response's answer and additional sections,
// correlating PTR/SRV/TXT records that share an instance name into a
// single Event, the way a typical mDNS responder packages them
// together in one packet.
func decodeMessage(t Transport, msg *dns.Msg, onEvent EventFunc) {
	all := append(append([]dns.RR{}, msg.Answer...), msg.Ns...)
	all = append(all, msg.Extra...)

	instances := make(map[string]*Event)
	order := make([]string, 0, len(all))
	getEvent := func(name string) *Event {
		if e, ok := instances[name]; ok {
			return e
		}
		e := &Event{Name: instanceLabel(name), Domain: domainFor(name), Transport: t, TXT: map[string]string{}}
		instances[name] = e
		order = append(order, name)
		return e
	}

	for _, rr := range all {
		switch rec := rr.(type) {
		case *dns.PTR:
			getEvent(rec.Ptr)
		case *dns.SRV:
			e := getEvent(rec.Hdr.Name)
			e.Target = strings.TrimSuffix(rec.Target, `.`)
			e.Port = rec.Port
		case *dns.TXT:
			e := getEvent(rec.Hdr.Name)
			for _, kv := range rec.Txt {
				if i := strings.IndexByte(kv, '='); i >= 0 {
					e.TXT[kv[:i]] = kv[i+1:]
				}
			}
		}
	}

	for _, name := range order {
		onEvent(*instances[name])
	}
}

// instanceLabel strips the trailing "._tcp.local." (or similar)
// suffix from a PTR target, leaving the human-readable instance name.
func instanceLabel(fqdn string) string {
	fqdn = strings.TrimSuffix(fqdn, `.`)
	parts := strings.SplitN(fqdn, `.`, 2)
	return parts[0]
}

func domainFor(fqdn string) domain {
	if strings.HasSuffix(strings.TrimSuffix(fqdn, `.`), `local`) {
		return domainLocal
	}
	return domainGlobal
}
