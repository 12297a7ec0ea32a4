/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mimedb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRulePattern(t *testing.T) {
	n, err := ParseRule(`pattern("*.pdf")`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Filename: "report.pdf"}))
	require.False(t, n.Eval(&EvalContext{Filename: "report.txt"}))
}

func TestParseRuleStringWithEscapes(t *testing.T) {
	n, err := ParseRule(`string(0,"\x89PNG\r\n\x1a\n")`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Bytes: []byte("\x89PNG\r\n\x1a\n" + "rest")}))
	require.False(t, n.Eval(&EvalContext{Bytes: []byte("not a png")}))
}

func TestParseRuleAndOrNot(t *testing.T) {
	n, err := ParseRule(`and(pattern("*.pdf"), string(0,"%PDF"))`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Filename: "x.pdf", Bytes: []byte("%PDF-1.4")}))
	require.False(t, n.Eval(&EvalContext{Filename: "x.pdf", Bytes: []byte("nope")}))

	n, err = ParseRule(`or(pattern("*.jpg"), pattern("*.jpeg"))`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Filename: "a.jpeg"}))

	n, err = ParseRule(`not(pattern("*.txt"))`)
	require.NoError(t, err)
	require.False(t, n.Eval(&EvalContext{Filename: "a.txt"}))
	require.True(t, n.Eval(&EvalContext{Filename: "a.pdf"}))
}

func TestParseRuleNumericPredicates(t *testing.T) {
	n, err := ParseRule(`short(0,65496)`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Bytes: []byte{0xFF, 0xD8, 0x00}}))
	require.False(t, n.Eval(&EvalContext{Bytes: []byte{0x00, 0x00}}))

	n, err = ParseRule(`contains(0,20,"ABC")`)
	require.NoError(t, err)
	require.True(t, n.Eval(&EvalContext{Bytes: []byte("xxxxABCxxxx")}))
}

func TestParseRulePriorityExtraction(t *testing.T) {
	n, err := ParseRule(`and(pattern("*.jpg"), priority(50))`)
	require.NoError(t, err)
	p, found := extractPriority(n)
	require.True(t, found)
	require.Equal(t, 50, p)
}

func TestParseRuleRejectsTrailingInput(t *testing.T) {
	_, err := ParseRule(`pattern("*.pdf") garbage`)
	require.Error(t, err)
}

func TestParseRuleUnknownFunction(t *testing.T) {
	_, err := ParseRule(`bogus(1)`)
	require.Error(t, err)
}

func TestPriorityRange(t *testing.T) {
	_, err := Priority(101)
	require.Error(t, err)
	_, err = Priority(-1)
	require.Error(t, err)
	_, err = Priority(50)
	require.NoError(t, err)
}
