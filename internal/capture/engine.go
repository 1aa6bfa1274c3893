package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/metrics"
	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/sshclient"
)

const (
	TierInteractive = "interactive"
	TierLastResort  = "last-resort"
)

// DeviceSource looks up device records.
type DeviceSource interface {
	List() ([]model.Device, error)
	Get(index int) (model.Device, error)
	GetByID(id string) (model.Device, int, error)
}

// Decrypter recovers stored device secrets.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// ArtifactWriter persists captured configuration text.
type ArtifactWriter interface {
	Save(hostname string, ts time.Time, content string) (string, error)
}

// Engine runs the tiered capture protocol against devices.
type Engine struct {
	devices   DeviceSource
	secrets   Decrypter
	artifacts ArtifactWriter
	dialer    sshclient.Dialer
	opts      Options
	logger    *logrus.Logger
	now       func() time.Time
}

func New(devices DeviceSource, secrets Decrypter, artifacts ArtifactWriter, dialer sshclient.Dialer, opts Options, logger *logrus.Logger) *Engine {
	return &Engine{
		devices:   devices,
		secrets:   secrets,
		artifacts: artifacts,
		dialer:    dialer,
		opts:      opts.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

// CaptureOne captures the device at the registry position index.
func (e *Engine) CaptureOne(ctx context.Context, index int) model.CaptureResult {
	d, err := e.devices.Get(index)
	if err != nil {
		e.logger.WithError(err).WithField("index", index).Error("backup failed")

		return model.CaptureResult{
			Message:   fmt.Sprintf("Backup failed: invalid device index %d", index),
			ErrorKind: model.Classify(err),
		}
	}

	return e.Capture(ctx, d)
}

// CaptureDevice captures the device with the given id.
func (e *Engine) CaptureDevice(ctx context.Context, id string) model.CaptureResult {
	d, _, err := e.devices.GetByID(id)
	if err != nil {
		e.logger.WithError(err).WithField("device_id", id).Error("backup failed")

		return model.CaptureResult{
			Message:   fmt.Sprintf("Backup failed: unknown device %s", id),
			ErrorKind: model.Classify(err),
		}
	}

	return e.Capture(ctx, d)
}

// Capture runs the interactive tier and falls back to the last resort tier.
// It always returns a result, failures are classified rather than returned.
func (e *Engine) Capture(ctx context.Context, d model.Device) (result model.CaptureResult) {
	start := time.Now()
	logger := e.logger.WithFields(logrus.Fields{"hostname": d.Hostname, "ip": d.IP})

	var size int

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("capture aborted")

			result = model.CaptureResult{
				Hostname:  d.Hostname,
				IP:        d.IP,
				Message:   fmt.Sprintf("All backup methods failed for %s (%s): %v", d.Hostname, d.IP, r),
				ErrorKind: model.KindAllMethodsFailed,
			}
		}

		metrics.ObserveCapture(d.Hostname, result.Tier, result.Success, size, time.Since(start))
	}()

	params, profile, err := e.connectParams(d)
	if err != nil {
		logger.WithError(err).Error("backup failed")

		return model.CaptureResult{
			Hostname:  d.Hostname,
			IP:        d.IP,
			Message:   fmt.Sprintf("Backup failed for %s (%s): %s", d.Hostname, d.IP, err),
			ErrorKind: model.Classify(err),
		}
	}

	run := &interactiveRun{state: stateQueued, device: d, params: params, profile: profile}
	tctx := &tierContext{ctx: ctx, engine: e, logger: logger.WithField("tier", TierInteractive)}

	err1 := newInteractiveMachine().run(run, tctx)
	if err1 == nil {
		size = len(run.content)

		return model.CaptureResult{
			Success:  true,
			Hostname: d.Hostname,
			IP:       d.IP,
			Message:  "Backup completed with interactive capture",
			Filename: filepath.Base(run.path),
			Tier:     TierInteractive,
		}
	}

	logger.WithField("tier", TierLastResort).Warn("trying last resort backup method")

	content, path, err2 := e.lastResort(ctx, d, params, profile)
	if err2 == nil {
		size = len(content)
		logger.WithField("tier", TierLastResort).Info("backup completed with last resort method")

		return model.CaptureResult{
			Success:  true,
			Hostname: d.Hostname,
			IP:       d.IP,
			Message:  "Backup completed with last-resort method",
			Filename: filepath.Base(path),
			Tier:     TierLastResort,
		}
	}

	logger.WithField("tier", TierLastResort).WithError(err2).Error("last resort method failed")

	kind := classify(err1, err2)

	msg := fmt.Sprintf("All backup methods failed for %s (%s): %s", d.Hostname, d.IP, err2)
	if kind == model.KindAuthentication || kind == model.KindTimeout {
		msg = fmt.Sprintf("Connection error to %s (%s): %s", d.Hostname, d.IP, err2)
	}

	logger.Error(msg)

	return model.CaptureResult{
		Hostname:  d.Hostname,
		IP:        d.IP,
		Message:   msg,
		ErrorKind: kind,
	}
}

// lastResort opens a fresh session, turns paging off and captures the
// primary command in one timed read.
func (e *Engine) lastResort(ctx context.Context, d model.Device, params sshclient.ConnectParams, p Profile) (string, string, error) {
	session, err := e.dialer.Dial(ctx, params)
	if err != nil {
		return "", "", err
	}
	defer session.Close()

	cmd := p.PrimaryCommand
	if d.CaptureCommand != "" {
		cmd = d.CaptureCommand
	}

	for _, pc := range p.PagingCommands {
		if err := session.Send(pc + "\n"); err != nil {
			return "", "", err
		}

		if err := sleep(ctx, e.opts.SettleDelay); err != nil {
			return "", "", err
		}

		session.ReceivePending()
	}

	out, err := session.SendAndWaitTimed(ctx, cmd, e.opts.FallbackDelayFactor, e.opts.FallbackMaxLoops)
	if err != nil {
		return "", "", err
	}

	// A timed read never answers a pager, output that stops on one is a
	// single page and not the whole config.
	if p.Terminator(lastLine(out)) == More {
		return "", "", errors.Wrap(model.ErrCaptureValidation, "last resort capture stopped at a pager prompt")
	}

	content := normalize(out)

	lines := countLines(content)
	if lines < e.opts.FallbackMinLines {
		return "", "", errors.Wrap(
			model.ErrCaptureValidation,
			fmt.Sprintf("last resort capture returned %d lines, need %d", lines, e.opts.FallbackMinLines),
		)
	}

	path, err := e.artifacts.Save(d.Hostname, e.now(), content)
	if err != nil {
		return "", "", err
	}

	return content, path, nil
}

func (e *Engine) connectParams(d model.Device) (sshclient.ConnectParams, Profile, error) {
	profile, ok := ProfileFor(d.VendorProfile)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"hostname": d.Hostname,
			"profile":  d.VendorProfile,
		}).Warn("unknown vendor profile, using " + profile.Name)
	}

	password, err := e.secrets.Decrypt(d.Password)
	if err != nil {
		return sshclient.ConnectParams{}, profile, errors.Wrap(err, "password")
	}

	secret, err := e.secrets.Decrypt(d.EnablePassword)
	if err != nil {
		return sshclient.ConnectParams{}, profile, errors.Wrap(err, "enable password")
	}

	if secret == "" {
		secret = password
	}

	return sshclient.ConnectParams{
		Host:          d.IP,
		Username:      d.Username,
		Password:      password,
		Secret:        secret,
		EnableCommand: profile.EnableCommand,
	}, profile, nil
}

// classify reports the last resort error kind, the interactive tier error
// is used when the last resort failure is generic. A rejected credential in
// either tier wins.
func classify(interactive, lastResort error) model.ErrorKind {
	if errors.Is(interactive, model.ErrAuthentication) || errors.Is(lastResort, model.ErrAuthentication) {
		return model.KindAuthentication
	}

	if kind := model.Classify(lastResort); kind != model.KindAllMethodsFailed {
		return kind
	}

	return model.Classify(interactive)
}

// CaptureAll captures every device in registry order, one at a time. One
// device failing never stops the batch.
func (e *Engine) CaptureAll(ctx context.Context) model.BatchResult {
	devices, err := e.devices.List()
	if err != nil {
		e.logger.WithError(err).Error("failed to load devices")
		metrics.BatchCounter.WithLabelValues("failed").Inc()

		return model.BatchResult{
			Message: "Failed to load devices: " + err.Error(),
			Results: []model.BatchItem{},
		}
	}

	if len(devices) == 0 {
		e.logger.Warn("no devices configured for backup")
		metrics.BatchCounter.WithLabelValues("empty").Inc()

		return model.BatchResult{Message: "No devices configured", Results: []model.BatchItem{}}
	}

	e.logger.WithField("devices", len(devices)).Info("starting backup of all devices")

	batch := model.BatchResult{
		Success: true,
		Total:   len(devices),
		Results: make([]model.BatchItem, 0, len(devices)),
	}

	for i, d := range devices {
		e.logger.Infof("processing device %d/%d: %s", i+1, len(devices), d.Hostname)

		var res model.CaptureResult
		if ctx.Err() != nil {
			res = model.CaptureResult{Message: "Backup cancelled"}
		} else {
			res = e.Capture(ctx, d)
		}

		batch.Results = append(batch.Results, model.BatchItem{
			Success:  res.Success,
			Hostname: d.Hostname,
			IP:       d.IP,
			Message:  res.Message,
			Filename: res.Filename,
		})

		if res.Success {
			batch.Count++
		}
	}

	batch.Message = fmt.Sprintf("Backup completed. Success: %d/%d", batch.Count, batch.Total)
	e.logger.Info(batch.Message)
	metrics.BatchCounter.WithLabelValues("completed").Inc()

	return batch
}
