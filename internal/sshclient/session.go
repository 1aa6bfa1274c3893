package sshclient

import (
	"context"
	"time"
)

// ConnectParams describes one device session.
type ConnectParams struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secret is the privilege elevation password.
	Secret string
	// EnableCommand elevates privileges, empty when the platform has no such step.
	EnableCommand string
	// Timeouts override the client configuration when non zero.
	ConnectTimeout time.Duration
	SessionTimeout time.Duration
}

// Session is an interactive remote shell.
type Session interface {
	// Elevate enters privileged mode using the enable secret.
	Elevate(ctx context.Context) error
	// Send writes text to the shell as is.
	Send(text string) error
	// ReceivePending returns whatever output arrived since the last call
	// without blocking, empty when nothing is pending.
	ReceivePending() string
	// SendAndWaitTimed sends command and collects output until the device
	// goes quiet or maxLoops polls elapsed, delayFactor stretches both.
	SendAndWaitTimed(ctx context.Context, command string, delayFactor float64, maxLoops int) (string, error)
	Close() error
}

//go:generate mockgen -destination=dialer_mock.go -package=sshclient github.com/tastythames/switch-backup/internal/sshclient Dialer

// Dialer opens sessions to devices.
type Dialer interface {
	Dial(ctx context.Context, params ConnectParams) (Session, error)
}
