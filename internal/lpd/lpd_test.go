/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package lpd

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"testing"
	"time"

	"github.com/gravwell/printsched/internal/ipp"
	"github.com/stretchr/testify/require"
)

// fakeConn feeds a fixed byte stream to the server and captures every
// byte it writes back, without requiring a real synchronized peer.
type fakeConn struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newFakeConn(in []byte) *fakeConn { return &fakeConn{in: bytes.NewReader(in)} }

func (c *fakeConn) Read(b []byte) (int, error)         { return c.in.Read(b) }
func (c *fakeConn) Write(b []byte) (int, error)        { return c.out.Write(b) }
func (c *fakeConn) Close() error                       { return nil }
func (c *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error        { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error   { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake" }

type fakeSubmitter struct {
	createErr error
	submitErr error
	cancelErr error

	createCalls  []string
	documents    []ipp.Document
	canceledJobs []uint64
}

func (f *fakeSubmitter) CreateJob(printerName, user, title string) (uint64, error) {
	f.createCalls = append(f.createCalls, printerName+"|"+user+"|"+title)
	if f.createErr != nil {
		return 0, f.createErr
	}
	return 1, nil
}

func (f *fakeSubmitter) SubmitDocument(jobID uint64, doc ipp.Document) error {
	f.documents = append(f.documents, doc)
	return f.submitErr
}

func (f *fakeSubmitter) CancelJob(jobID uint64, user string) error {
	f.canceledJobs = append(f.canceledJobs, jobID)
	return f.cancelErr
}

func countedBlock(sub byte, count int, name string, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(sub)
	b.WriteString(itoa(count))
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('\n')
	b.Write(payload)
	b.WriteByte(0)
	return b.Bytes()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestReceiveJobHappyPath(t *testing.T) {
	control := []byte("Jtitle\nPsmith\nldfA\n")
	data := []byte("hello world")

	var req bytes.Buffer
	req.WriteByte(cmdReceiveJob)
	req.WriteString("lp\n")
	req.Write(countedBlock(subReceiveControl, len(control), "cfA", control))
	req.Write(countedBlock(subReceiveData, len(data), "dfA", data))

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	s := NewServer(sub, t.TempDir(), nil, nil)
	s.handleConn(conn)

	require.Equal(t, []string{"lp|smith|title"}, sub.createCalls)
	require.Len(t, sub.documents, 1)
	require.Equal(t, "application/octet-stream", sub.documents[0].Format)
	require.Equal(t, data, sub.documents[0].Data)
	require.True(t, sub.documents[0].Last)

	// one reply-0 for STAGING entry, one per counted block, no trailing error byte
	require.NotContains(t, conn.out.Bytes(), replyErr)
}

func TestReceiveJobDataFileOverflowAborts(t *testing.T) {
	var req bytes.Buffer
	req.WriteByte(cmdReceiveJob)
	req.WriteString("lp\n")
	for i := 0; i < maxDataFiles+1; i++ {
		req.Write(countedBlock(subReceiveData, 1, "d", []byte("x")))
	}

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	s := NewServer(sub, t.TempDir(), nil, nil)
	s.handleConn(conn)

	require.Empty(t, sub.createCalls, "overflow must abort before job creation")
	require.Contains(t, conn.out.Bytes(), replyErr)
}

func TestReceiveJobUnknownDataFileReferenceAborts(t *testing.T) {
	control := []byte("Jtitle\nPsmith\nlmissing\n")
	var req bytes.Buffer
	req.WriteByte(cmdReceiveJob)
	req.WriteString("lp\n")
	req.Write(countedBlock(subReceiveControl, len(control), "cfA", control))

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	s := NewServer(sub, t.TempDir(), nil, nil)
	s.handleConn(conn)

	require.Len(t, sub.createCalls, 1)
	require.Empty(t, sub.documents)
	require.Contains(t, conn.out.Bytes(), replyErr)
}

func TestHandleClientAbortUnlinksTempFiles(t *testing.T) {
	var req bytes.Buffer
	req.WriteByte(cmdReceiveJob)
	req.WriteString("lp\n")
	req.Write(countedBlock(subReceiveData, 4, "dfA", []byte("data")))
	req.WriteByte(subAbort)

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	dir := t.TempDir()
	s := NewServer(sub, dir, nil, nil)
	s.handleConn(conn)

	require.Empty(t, sub.createCalls)
	staged, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

func TestPrintAnyWaitingIsNoOp(t *testing.T) {
	var req bytes.Buffer
	req.WriteByte(cmdPrintAnyWaiting)
	req.WriteString("lp\n")

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	s := NewServer(sub, t.TempDir(), nil, nil)
	s.handleConn(conn)

	require.Equal(t, []byte{replyOK}, conn.out.Bytes())
}

func TestRemoveJobsCancelsEachID(t *testing.T) {
	var req bytes.Buffer
	req.WriteByte(cmdRemoveJobs)
	req.WriteString("lp smith 4 7\n")

	conn := newFakeConn(req.Bytes())
	sub := &fakeSubmitter{}
	s := NewServer(sub, t.TempDir(), nil, nil)
	s.handleConn(conn)

	require.Equal(t, []uint64{4, 7}, sub.canceledJobs)
}

type stubStatus struct{}

func (stubStatus) ShortQueueStatus(queue string, args []string) string { return "lp is ready\n" }
func (stubStatus) LongQueueStatus(queue string, args []string) string  { return "lp:\n\tno entries\n" }

func TestQueueStateCommandsDelegateToProvider(t *testing.T) {
	var req bytes.Buffer
	req.WriteByte(cmdShortState)
	req.WriteString("lp\n")

	conn := newFakeConn(req.Bytes())
	s := NewServer(&fakeSubmitter{}, t.TempDir(), stubStatus{}, nil)
	s.handleConn(conn)

	require.Equal(t, "lp is ready\n", conn.out.String())
}

func TestUnknownCommandRepliesError(t *testing.T) {
	conn := newFakeConn([]byte{0x09})
	s := NewServer(&fakeSubmitter{}, t.TempDir(), nil, nil)
	s.handleConn(conn)
	require.Equal(t, []byte{replyErr}, conn.out.Bytes())
}

func TestParseControlFileRejectsUnknownLetter(t *testing.T) {
	_, err := parseControlFile([]byte("Zwhatever\n"))
	require.Error(t, err)
}

func TestParseCountedLine(t *testing.T) {
	count, name, ok := parseCountedLine("42 myfile.txt")
	require.True(t, ok)
	require.EqualValues(t, 42, count)
	require.Equal(t, "myfile.txt", name)

	_, _, ok = parseCountedLine("nocount")
	require.False(t, ok)
}

func TestTranscodeFallsBackToLatin1(t *testing.T) {
	// 0xE9 alone is invalid UTF-8; ISO-8859-1 0xE9 is U+00E9 (é).
	out := transcode([]byte{'a', 'b', 0xE9, 'c'})
	require.Equal(t, "abéc", out)
}

func TestTranscodePassesThroughValidUTF8(t *testing.T) {
	out := transcode([]byte("héllo"))
	require.Equal(t, "héllo", out)
}

func TestReadLineTrimsTerminator(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("hello\r\n")))
	line, err := readLine(r)
	require.NoError(t, err)
	require.Equal(t, "hello", line)
}
