/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Info is what the backend extracts from a service's TXT record.
type Info struct {
	Manufacturer string
	Model        string
	Product      string
	Type         string
	PDL          string
	Priority     int
	CUPSShared   bool
	Location     string
	UUID         string
	DeviceID     string
}

// manufacturerKeys and modelKeys list the synonym keys recognized for
// the manufacturer and model, tried in order; the first present key
// wins.
var (
	manufacturerKeys = []string{`usb_MFG`, `usb_MANU`, `usb_MANUFACTURER`}
	modelKeys        = []string{`usb_MDL`, `usb_MODEL`}
)

// ParseTXT turns a DNS-SD TXT record's decoded key/value pairs into an
// Info, synthesizing a device ID when usb_* keys are present or a
// make/model heuristic applies.
func ParseTXT(kv map[string]string) Info {
	var info Info

	for _, k := range manufacturerKeys {
		if v, ok := kv[k]; ok {
			info.Manufacturer = v
			break
		}
	}
	for _, k := range modelKeys {
		if v, ok := kv[k]; ok {
			info.Model = v
			break
		}
	}
	if v, ok := kv[`product`]; ok {
		info.Product = stripParens(v)
	}
	if v, ok := kv[`ty`]; ok {
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[:i]
		}
		info.Type = v
	}
	if v, ok := kv[`pdl`]; ok {
		info.PDL = v
	}
	if v, ok := kv[`priority`]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			info.Priority = n
		}
	}
	if _, ok := kv[`printer-type`]; ok {
		info.CUPSShared = true
	}
	if v, ok := kv[`note`]; ok {
		info.Location = v
	}
	if v, ok := kv[`UUID`]; ok {
		info.UUID = normalizeUUID(v)
	}

	info.DeviceID = synthesizeDeviceID(kv, info)
	return info
}

// stripParens removes one layer of surrounding "(...)" from s, as
// DNS-SD's "product" key encodes it.
func stripParens(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `(`) && strings.HasSuffix(s, `)`) && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

// synthesizeDeviceID builds an IEEE-1284-shaped device ID string
// (semicolon-separated KEY:value pairs) from usb_* TXT keys, or from
// a make/model heuristic when no usb_* keys are present.
func synthesizeDeviceID(kv map[string]string, info Info) string {
	mfg, hasMfg := firstOf(kv, manufacturerKeys)
	mdl, hasMdl := firstOf(kv, modelKeys)
	if hasMfg || hasMdl {
		var b strings.Builder
		if hasMfg {
			b.WriteString(`MFG:`)
			b.WriteString(mfg)
			b.WriteByte(';')
		}
		if hasMdl {
			b.WriteString(`MDL:`)
			b.WriteString(mdl)
			b.WriteByte(';')
		}
		return b.String()
	}

	model := info.Model
	if model == `` {
		model = info.Product
	}
	if model == `` {
		model = info.Type
	}
	if model == `` {
		return ``
	}
	mk, ok := heuristicMake(model)
	if !ok {
		return ``
	}
	return `MFG:` + mk + `;MDL:` + model + `;`
}

// heuristicMake guesses a manufacturer from a bare model string when
// no usb_* manufacturer key is present, the way a handful of common
// product-name substrings give it away.
func heuristicMake(model string) (string, bool) {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, `designjet`), strings.Contains(lower, `laserjet`), strings.Contains(lower, `officejet`):
		return `HP`, true
	case strings.Contains(lower, `stylus`), strings.Contains(lower, `workforce`):
		return `EPSON`, true
	case strings.Contains(lower, `pixma`), strings.Contains(lower, `imageclass`):
		return `Canon`, true
	case strings.Contains(lower, `brother`):
		return `Brother`, true
	}
	return ``, false
}

// normalizeUUID canonicalizes a DNS-SD UUID TXT value (which may carry
// a "urn:uuid:" prefix or mixed case) to its lowercase hyphenated
// form. A value that doesn't parse as a UUID is passed through
// unchanged, since some devices advertise a vendor-specific string in
// this field.
func normalizeUUID(v string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(v), `urn:uuid:`)
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return v
	}
	return id.String()
}

func firstOf(kv map[string]string, keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := kv[k]; ok {
			return v, true
		}
	}
	return ``, false
}

// duplicatedPrefixes lists make/model strings whose vendor name is
// doubled by some device firmware, e.g. "EPSON EPSON Stylus C80".
var duplicatedPrefixes = []string{
	`EPSON EPSON `,
	`HP HP `,
	`Lexmark International Lexmark `,
}

// NormalizeMakeModel strips a doubled vendor prefix from s, if present.
func NormalizeMakeModel(s string) string {
	for _, p := range duplicatedPrefixes {
		if strings.HasPrefix(s, p) {
			return p[:strings.IndexByte(p, ' ')] + ` ` + s[len(p):]
		}
	}
	return s
}
