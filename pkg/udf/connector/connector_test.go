package connector

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/udf-worker/pkg/udferr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReadPort(t *testing.T) {
	t.Run("good", func(t *testing.T) {
		port, err := ReadPort(strings.NewReader("45678\n"))
		assert.NoError(t, err)
		assert.Equal(t, 45678, port)
	})

	t.Run("no trailing newline", func(t *testing.T) {
		port, err := ReadPort(strings.NewReader(" 8080 "))
		assert.NoError(t, err)
		assert.Equal(t, 8080, port)
	})

	t.Run("only first line", func(t *testing.T) {
		port, err := ReadPort(strings.NewReader("9000\n9001\n"))
		assert.NoError(t, err)
		assert.Equal(t, 9000, port)
	})

	for _, in := range []string{"", "\n", "abc\n", "0\n", "70000\n", "-1\n"} {
		_, err := ReadPort(strings.NewReader(in))
		assert.Error(t, err, "input %q", in)
		assert.True(t, udferr.IsKind(err, udferr.Setup), "input %q", in)
	}
}

func listen(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestDial(t *testing.T) {
	ln, port := listen(t)
	defer func() { _ = ln.Close() }()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	s, err := Dial(context.Background(), port, WithBufferSize(16))
	require.NoError(t, err)
	host := <-accepted
	require.NotNil(t, host)
	defer func() { _ = host.Close() }()

	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	buf := make([]byte, 4)
	_, err = io.ReadFull(host, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	// the output direction closes while the input direction keeps working
	require.NoError(t, s.CloseWrite())
	_, err = host.Read(buf)
	assert.Equal(t, io.EOF, err)

	_, err = host.Write([]byte("pong"))
	require.NoError(t, err)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))

	require.NoError(t, s.CloseRead())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestDial_Refused(t *testing.T) {
	ln, port := listen(t)
	require.NoError(t, ln.Close())

	start := time.Now()
	_, err := Dial(context.Background(), port, WithBackoff(wait.Backoff{Steps: 2, Duration: time.Millisecond, Factor: 1}))
	assert.Error(t, err)
	assert.True(t, udferr.IsKind(err, udferr.Setup))
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDial_Cancelled(t *testing.T) {
	ln, port := listen(t)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, port)
	assert.Error(t, err)
	assert.True(t, udferr.IsKind(err, udferr.Setup))
}

func TestFromConn_Pipe(t *testing.T) {
	a, b := net.Pipe()
	defer func() { _ = b.Close() }()
	s := FromConn(a)
	assert.NoError(t, s.CloseRead())
	assert.NotNil(t, s.LocalAddr())
	assert.NoError(t, s.Close())
}
