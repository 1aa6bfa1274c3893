package sshclient

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/tastythames/switch-backup/internal/model"
)

const (
	ptyRows = 0
	ptyCols = 511

	elevateWait  = 5 * time.Second
	readInterval = 100 * time.Millisecond

	timedLoopDelay = 200 * time.Millisecond
	timedQuiet     = 2 * time.Second
)

var ErrElevationUnsupported = errors.New("platform has no privilege elevation step")

// outputBuffer collects shell output written by the ssh session goroutines.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *outputBuffer) drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.buf.String()
	b.buf.Reset()

	return out
}

// shellSession is a Session over an interactive shell on a PTY.
type shellSession struct {
	client  *ssh.Client
	sess    *ssh.Session
	stdin   io.WriteCloser
	out     *outputBuffer
	params  ConnectParams
	logger  *logrus.Logger
	timer   *time.Timer
	expired atomic.Bool
	once    sync.Once
}

func startShell(client *ssh.Client, p ConnectParams, timeout time.Duration, logger *logrus.Logger) (*shellSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, errors.Wrap(model.ErrConnection, "open session: "+err.Error())
	}

	out := &outputBuffer{}
	sess.Stdout = out
	sess.Stderr = out

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(model.ErrConnection, "stdin pipe: "+err.Error())
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}

	if err := sess.RequestPty("vt100", ptyRows, ptyCols, modes); err != nil {
		sess.Close()
		return nil, errors.Wrap(model.ErrConnection, "request pty: "+err.Error())
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, errors.Wrap(model.ErrConnection, "start shell: "+err.Error())
	}

	s := &shellSession{
		client: client,
		sess:   sess,
		stdin:  stdin,
		out:    out,
		params: p,
		logger: logger,
	}

	s.timer = time.AfterFunc(timeout, func() {
		s.expired.Store(true)
		s.logger.WithField("host", p.Host).Warn("session timeout reached, closing connection")
		s.client.Close()
	})

	return s, nil
}

func (s *shellSession) Send(text string) error {
	if s.expired.Load() {
		return errors.Wrap(model.ErrTimeout, "session timeout reached")
	}

	if _, err := io.WriteString(s.stdin, text); err != nil {
		if s.expired.Load() {
			return errors.Wrap(model.ErrTimeout, "session timeout reached")
		}

		return errors.Wrap(model.ErrConnection, "write: "+err.Error())
	}

	return nil
}

func (s *shellSession) ReceivePending() string {
	return s.out.drain()
}

// Elevate sends the enable command, answers the password prompt with the
// secret and checks the privileged prompt was reached.
func (s *shellSession) Elevate(ctx context.Context) error {
	if s.params.EnableCommand == "" {
		return ErrElevationUnsupported
	}

	s.ReceivePending()

	if err := s.Send(s.params.EnableCommand + "\n"); err != nil {
		return err
	}

	out := s.readUntil(ctx, elevateWait, "assword", "#")
	if strings.Contains(out, "assword") {
		if err := s.Send(s.params.Secret + "\n"); err != nil {
			return err
		}

		out = s.readUntil(ctx, elevateWait, "#", ">", "assword")
	}

	if !strings.HasSuffix(lastLine(out), "#") {
		return errors.New("privileged prompt not reached after " + s.params.EnableCommand)
	}

	return nil
}

// readUntil collects output until one of patterns shows up or wait elapses.
func (s *shellSession) readUntil(ctx context.Context, wait time.Duration, patterns ...string) string {
	var b strings.Builder

	deadline := time.Now().Add(wait)

	for time.Now().Before(deadline) {
		if err := sleep(ctx, readInterval); err != nil {
			break
		}

		chunk := s.ReceivePending()
		if chunk == "" {
			continue
		}

		b.WriteString(chunk)

		for _, p := range patterns {
			if strings.Contains(chunk, p) {
				return b.String()
			}
		}
	}

	return b.String()
}

func (s *shellSession) SendAndWaitTimed(ctx context.Context, command string, delayFactor float64, maxLoops int) (string, error) {
	if delayFactor <= 0 {
		delayFactor = 1
	}

	loopDelay := time.Duration(float64(timedLoopDelay) * delayFactor)
	quiet := time.Duration(float64(timedQuiet) * delayFactor)

	s.ReceivePending()

	if err := s.Send(command + "\n"); err != nil {
		return "", err
	}

	var b strings.Builder

	lastData := time.Now()

	for i := 0; i < maxLoops; i++ {
		if err := sleep(ctx, loopDelay); err != nil {
			return b.String(), errors.Wrap(model.ErrTimeout, "timed read: "+err.Error())
		}

		chunk := s.ReceivePending()
		if chunk != "" {
			b.WriteString(chunk)
			lastData = time.Now()

			continue
		}

		if s.expired.Load() {
			return b.String(), errors.Wrap(model.ErrTimeout, "session timeout reached")
		}

		if b.Len() > 0 && time.Since(lastData) >= quiet {
			break
		}
	}

	return b.String(), nil
}

func (s *shellSession) Close() error {
	var err error

	s.once.Do(func() {
		s.timer.Stop()
		s.stdin.Close()
		s.sess.Close()
		err = s.client.Close()
	})

	return err
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimRight(out, " \r\n"), "\n")

	return strings.TrimSpace(lines[len(lines)-1])
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
