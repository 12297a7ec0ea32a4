/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mimedb

import (
	"fmt"

	"github.com/h2non/filetype"
)

// builtinType is one of the minimal seed set: a MIME pair plus the
// declarative typer rules that recognize it by filename or content.
type builtinType struct {
	super, typ string
	rules      []string
}

var builtins = []builtinType{
	{super: `application`, typ: `pdf`, rules: []string{
		`string(0,"%PDF")`,
		`pattern("*.pdf")`,
	}},
	{super: `image`, typ: `jpeg`, rules: []string{
		`and(short(0,65496),priority(50))`, // 0xFFD8
		`pattern("*.jpg")`,
		`pattern("*.jpeg")`,
	}},
	{super: `image`, typ: `png`, rules: []string{
		`string(0,"\x89PNG\r\n\x1a\n")`,
		`pattern("*.png")`,
	}},
	{super: `text`, typ: `plain`, rules: []string{
		`and(pattern("*.txt"),priority(1))`,
	}},
	{super: `application`, typ: `octet-stream`, rules: nil},
}

// Bootstrap seeds db with a minimal built-in type set and installs a
// filetype-backed ContentSniffer as the type_of fallback for content
// Bootstrap's own typers don't recognize by rule.
func Bootstrap(db *Database) error {
	for _, b := range builtins {
		ref := db.AddType(b.super, b.typ)
		for _, src := range b.rules {
			rule, err := ParseRule(src)
			if err != nil {
				return fmt.Errorf("bootstrap rule %q for %s/%s: %w", src, b.super, b.typ, err)
			}
			if err := db.AddTyper(ref, rule); err != nil {
				return err
			}
		}
	}
	db.SetContentSniffer(sniffContent)
	return nil
}

// sniffContent maps h2non/filetype's magic-number detection onto the
// (super, type) pairs Bootstrap registers. Types filetype recognizes
// that Bootstrap never declared are reported as unmatched, not
// synthesized on the fly: TypeOf only trusts a sniff result that
// names a type already present in the database.
func sniffContent(firstBytes []byte) (super, typ string, ok bool) {
	kind, err := filetype.Match(firstBytes)
	if err != nil || kind == filetype.Unknown {
		return ``, ``, false
	}
	mime := kind.MIME.Value
	for i := 0; i < len(mime); i++ {
		if mime[i] == '/' {
			return mime[:i], mime[i+1:], true
		}
	}
	return ``, ``, false
}
