/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package discovery implements the device-discovery backend: it
// browses DNS-SD service types for network printers, deduplicates
// devices advertised on more than one transport, and emits one
// canonical device record per printer.
package discovery

// Transport is one of the DNS-SD service families the backend
// browses, ordered by its tie-break ordinal (lower wins).
type Transport int

const (
	LPD Transport = iota
	IPPS
	IPP
	FaxIPP
	PDL
	RIOUSBPrint
)

// Ordinal is Transport's own integer value; the table below is built
// in ordinal order so Transport(i) always names entry i.
func (t Transport) Ordinal() int { return int(t) }

func (t Transport) String() string {
	if int(t) < 0 || int(t) >= len(transportTable) {
		return `unknown`
	}
	return transportTable[t].name
}

type transportEntry struct {
	name         string
	serviceTypes []string
}

// transportTable is the fixed priority order from the discovery
// backend's service list: index == ordinal == tie-break rank.
var transportTable = []transportEntry{
	LPD:         {name: `lpd`, serviceTypes: []string{`_printer._tcp`}},
	IPPS:        {name: `ipps`, serviceTypes: []string{`_ipps._tcp`, `_ipp-tls._tcp`}},
	IPP:         {name: `ipp`, serviceTypes: []string{`_ipp._tcp`}},
	FaxIPP:      {name: `fax-ipp`, serviceTypes: []string{`_fax-ipp._tcp`}},
	PDL:         {name: `pdl`, serviceTypes: []string{`_pdl-datastream._tcp`}},
	RIOUSBPrint: {name: `riousbprint`, serviceTypes: []string{`_riousbprint._tcp`}},
}

// ServiceTypes returns every DNS-SD service type browsed for t.
func (t Transport) ServiceTypes() []string {
	if int(t) < 0 || int(t) >= len(transportTable) {
		return nil
	}
	return transportTable[t].serviceTypes
}

// transportForServiceType returns the Transport that browses svcType,
// and false if none does.
func transportForServiceType(svcType string) (Transport, bool) {
	for i, e := range transportTable {
		for _, s := range e.serviceTypes {
			if s == svcType {
				return Transport(i), true
			}
		}
	}
	return 0, false
}

// AllTransports returns every transport in ordinal order, for callers
// that spawn one browser per transport.
func AllTransports() []Transport {
	out := make([]Transport, len(transportTable))
	for i := range transportTable {
		out[i] = Transport(i)
	}
	return out
}
