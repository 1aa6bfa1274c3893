package sshclient

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/tastythames/switch-backup/internal/model"
)

const (
	testPassword = "secret"
	testEnable   = "enable-secret"
)

// fakeSwitch is a minimal ssh server that answers like an IOS shell.
type fakeSwitch struct {
	ln   net.Listener
	conf *ssh.ServerConfig
}

func newFakeSwitch(t *testing.T) *fakeSwitch {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	conf := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == testPassword {
				return nil, nil
			}

			return nil, fmt.Errorf("denied")
		},
	}
	conf.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSwitch{ln: ln, conf: conf}
	t.Cleanup(func() { ln.Close() })

	go s.serve()

	return s
}

func (s *fakeSwitch) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSwitch) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		go s.handleConn(conn)
	}
}

func (s *fakeSwitch) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.conf)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()

	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}

		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}

		go func() {
			for req := range requests {
				switch req.Type {
				case "pty-req":
					_ = req.Reply(true, nil)
				case "shell":
					_ = req.Reply(true, nil)
					_, _ = ch.Write([]byte("sw1>"))
				default:
					_ = req.Reply(false, nil)
				}
			}
		}()

		go shellLoop(ch)
	}
}

func shellLoop(ch ssh.Channel) {
	defer ch.Close()

	prompt := "sw1>"
	awaitingSecret := false
	sc := bufio.NewScanner(ch)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		var reply string

		switch {
		case awaitingSecret:
			awaitingSecret = false

			if line == testEnable {
				prompt = "sw1#"
				reply = "\r\n" + prompt
			} else {
				reply = "\r\n% Access denied\r\n" + prompt
			}
		case line == "enable":
			awaitingSecret = true
			reply = "Password: "
		case line == "show running-config":
			var b strings.Builder
			b.WriteString("Building configuration...\r\n")
			b.WriteString("hostname sw1\r\n")

			for i := 0; i < 30; i++ {
				b.WriteString("interface Gi0/" + strconv.Itoa(i) + "\r\n")
			}

			b.WriteString("end\r\n" + prompt)
			reply = b.String()
		default:
			reply = "\r\n" + prompt
		}

		if _, err := ch.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()

	c, err := New(cfg, logrus.New())
	require.NoError(t, err)

	return c
}

func testParams(port int) ConnectParams {
	return ConnectParams{
		Host:          "127.0.0.1",
		Port:          port,
		Username:      "admin",
		Password:      testPassword,
		Secret:        testEnable,
		EnableCommand: "enable",
	}
}

func TestDialAndTimedCommand(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second, SessionTimeout: 30 * time.Second})

	sess, err := c.Dial(context.Background(), testParams(srv.port()))
	require.NoError(t, err)

	defer sess.Close()

	out, err := sess.SendAndWaitTimed(context.Background(), "show running-config", 0.1, 500)
	require.NoError(t, err)
	assert.Contains(t, out, "hostname sw1")
	assert.Contains(t, out, "interface Gi0/29")
	assert.Contains(t, out, "end")
}

func TestElevate(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second})

	sess, err := c.Dial(context.Background(), testParams(srv.port()))
	require.NoError(t, err)

	defer sess.Close()

	require.NoError(t, sess.Elevate(context.Background()))
}

func TestElevateWrongSecret(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second})

	p := testParams(srv.port())
	p.Secret = "nope"

	sess, err := c.Dial(context.Background(), p)
	require.NoError(t, err)

	defer sess.Close()

	assert.Error(t, sess.Elevate(context.Background()))
}

func TestElevateUnsupported(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second})

	p := testParams(srv.port())
	p.EnableCommand = ""

	sess, err := c.Dial(context.Background(), p)
	require.NoError(t, err)

	defer sess.Close()

	assert.ErrorIs(t, sess.Elevate(context.Background()), ErrElevationUnsupported)
}

func TestDialAuthenticationFailure(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second})

	p := testParams(srv.port())
	p.Password = "wrong"

	_, err := c.Dial(context.Background(), p)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuthentication)
	assert.Equal(t, model.KindAuthentication, model.Classify(err))
}

func TestDialConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := newTestClient(t, Config{ConnectTimeout: 2 * time.Second, DialAttempts: 1})

	_, err = c.Dial(context.Background(), testParams(port))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConnection)
}

func TestDialMissingCredentials(t *testing.T) {
	c := newTestClient(t, Config{})

	p := testParams(22)
	p.Password = ""

	_, err := c.Dial(context.Background(), p)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestSessionTimeout(t *testing.T) {
	srv := newFakeSwitch(t)
	c := newTestClient(t, Config{ConnectTimeout: 5 * time.Second, SessionTimeout: 200 * time.Millisecond})

	sess, err := c.Dial(context.Background(), testParams(srv.port()))
	require.NoError(t, err)

	defer sess.Close()

	time.Sleep(500 * time.Millisecond)

	assert.ErrorIs(t, sess.Send("show clock\n"), model.ErrTimeout)
}

func TestNewInvalidKnownHosts(t *testing.T) {
	_, err := New(Config{KnownHostsFile: "/nonexistent/known_hosts"}, logrus.New())
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
