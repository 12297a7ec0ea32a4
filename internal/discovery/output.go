/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package discovery

import "strings"

// FormatLine renders rec as the backend's "network" output line:
//
//	network  <uri>  "<make_and_model>"  "<name>"  "<device_id>"  "<location>"
func FormatLine(rec *Record) string {
	makeModel := NormalizeMakeModel(makeModelFor(rec.info))
	return strings.Join([]string{
		`network`,
		rec.URI,
		quote(makeModel),
		quote(rec.Name),
		quote(rec.info.DeviceID),
		quote(rec.info.Location),
	}, `  `)
}

func makeModelFor(info Info) string {
	switch {
	case info.Model != ``:
		if info.Manufacturer != `` && !strings.HasPrefix(info.Model, info.Manufacturer) {
			return info.Manufacturer + ` ` + info.Model
		}
		return info.Model
	case info.Product != ``:
		return info.Product
	case info.Type != ``:
		return info.Type
	}
	return `Unknown`
}

// quote wraps s in double quotes, escaping '"' and '\' and rendering
// any byte >= 128 as a three-digit octal escape, per §4.5's output rule.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 128:
			b.WriteByte('\\')
			b.WriteString(octal3(c))
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func octal3(c byte) string {
	digits := [3]byte{}
	for i := 2; i >= 0; i-- {
		digits[i] = '0' + (c & 7)
		c >>= 3
	}
	return string(digits[:])
}
