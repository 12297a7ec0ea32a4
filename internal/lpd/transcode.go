/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package lpd

import (
	"strings"
	"unicode/utf8"
)

// transcode decodes b assuming UTF-8; the first time it encounters a
// byte sequence that is not valid UTF-8, it switches to treating the
// remainder of b as ISO-8859-1 and re-encodes it. ASCII bytes pass
// through unchanged in either mode.
func transcode(b []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			for _, c := range b[i:] {
				sb.WriteRune(rune(c))
			}
			return sb.String()
		}
		sb.WriteRune(r)
		i += size
	}
	return sb.String()
}
