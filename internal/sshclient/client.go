package sshclient

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tastythames/switch-backup/internal/model"
)

// Client dials interactive SSH sessions, it implements Dialer.
type Client struct {
	cfg    Config
	logger *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) (*Client, error) {
	cfg = cfg.withDefaults()

	if cfg.KnownHostsFile != "" {
		if _, err := knownhosts.New(cfg.KnownHostsFile); err != nil {
			return nil, errors.Wrap(model.ErrConfiguration, "known hosts file: "+err.Error())
		}
	}

	return &Client{cfg: cfg, logger: logger}, nil
}

// Dial connects and authenticates to the device and starts a shell on a PTY.
func (c *Client) Dial(ctx context.Context, p ConnectParams) (Session, error) {
	if p.Username == "" {
		return nil, errors.Wrap(model.ErrConfiguration, "ssh user is empty")
	}

	if p.Password == "" {
		return nil, errors.Wrap(model.ErrConfiguration, "ssh password is empty")
	}

	port := p.Port
	if port <= 0 {
		port = c.cfg.Port
	}

	connectTimeout := c.cfg.ConnectTimeout
	if p.ConnectTimeout > 0 {
		connectTimeout = p.ConnectTimeout
	}

	sessionTimeout := c.cfg.SessionTimeout
	if p.SessionTimeout > 0 {
		sessionTimeout = p.SessionTimeout
	}

	addr := net.JoinHostPort(p.Host, strconv.Itoa(port))

	sshCfg, err := c.clientConfig(p, connectTimeout)
	if err != nil {
		return nil, err
	}

	conn, err := c.dialTCP(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}

	// the handshake can still hang without a deadline on the raw conn
	_ = conn.SetDeadline(time.Now().Add(connectTimeout))

	cconn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, classifyHandshake(addr, err)
	}

	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(cconn, chans, reqs)

	sess, err := startShell(client, p, sessionTimeout, c.logger)
	if err != nil {
		client.Close()
		return nil, err
	}

	return sess, nil
}

func (c *Client) clientConfig(p ConnectParams, timeout time.Duration) (*ssh.ClientConfig, error) {
	hk := ssh.InsecureIgnoreHostKey()

	if c.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.cfg.KnownHostsFile)
		if err != nil {
			return nil, errors.Wrap(model.ErrConfiguration, "known hosts file: "+err.Error())
		}

		hk = cb
	}

	password := p.Password

	cfg := &ssh.ClientConfig{
		User:            p.Username,
		HostKeyCallback: hk,
		Timeout:         timeout,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}

				return answers, nil
			}),
		},
	}

	if c.cfg.LegacyAlgorithms {
		cfg.KeyExchanges = legacyKeyExchanges
		cfg.Ciphers = legacyCiphers
	}

	return cfg, nil
}

// dialTCP connects to addr, retrying refused or reset connections with backoff.
func (c *Client) dialTCP(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	b := &backoff.Backoff{Min: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}

	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		dialer := net.Dialer{}
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		cancel()

		if err == nil {
			return conn, nil
		}

		if attempt >= c.cfg.DialAttempts || !retryable(err) {
			return nil, classifyDial(addr, err)
		}

		delay := b.Duration()
		c.logger.WithFields(logrus.Fields{"addr": addr, "attempt": attempt, "retry_in": delay}).
			Debug("dial failed, retrying: " + err.Error())

		select {
		case <-ctx.Done():
			return nil, classifyDial(addr, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error

	return errors.As(err, &nerr) && nerr.Timeout()
}

func classifyDial(addr string, err error) error {
	msg := fmt.Sprintf("dial %s: %s", addr, err)

	if isTimeout(err) {
		return errors.Wrap(model.ErrTimeout, msg)
	}

	return errors.Wrap(model.ErrConnection, msg)
}

func classifyHandshake(addr string, err error) error {
	msg := fmt.Sprintf("ssh handshake %s: %s", addr, err)

	switch {
	case strings.Contains(err.Error(), "unable to authenticate"):
		return errors.Wrap(model.ErrAuthentication, msg)
	case isTimeout(err):
		return errors.Wrap(model.ErrTimeout, msg)
	default:
		return errors.Wrap(model.ErrConnection, msg)
	}
}
