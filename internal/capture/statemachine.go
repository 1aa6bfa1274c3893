package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tastythames/switch-backup/internal/model"
	"github.com/tastythames/switch-backup/internal/sshclient"
)

const (
	// interactive tier states
	stateQueued         sw.State = "queued"
	stateConnected      sw.State = "connected"
	stateElevated       sw.State = "elevated"
	statePrimed         sw.State = "primed"
	statePagingDisabled sw.State = "pagingDisabled"
	stateDumped         sw.State = "dumped"
	stateClosed         sw.State = "closed"
	stateValidated      sw.State = "validated"
	statePersisted      sw.State = "persisted"
	stateFailed         sw.State = "failed"

	connect       sw.TransitionType = "connect"
	elevate       sw.TransitionType = "elevate"
	prime         sw.TransitionType = "prime"
	disablePaging sw.TransitionType = "disablePaging"
	dump          sw.TransitionType = "dump"
	windDown      sw.TransitionType = "windDown"
	validate      sw.TransitionType = "validate"
	persist       sw.TransitionType = "persist"
	tierFailed    sw.TransitionType = "tierFailed"
)

var (
	ErrInvalidTransitionArgs = errors.New("expected a *tierContext")
	ErrInvalidStateSwitch    = errors.New("expected a *interactiveRun")
	errTransition            = errors.New("error in interactive capture transition")
)

// interactiveRun is the state of one interactive capture attempt.
type interactiveRun struct {
	state   sw.State
	device  model.Device
	params  sshclient.ConnectParams
	profile Profile
	session sshclient.Session
	// raw is everything read from the shell after pagination was disabled.
	raw     strings.Builder
	content string
	path    string
	err     error
}

func (r *interactiveRun) State() sw.State {
	return r.state
}

func (r *interactiveRun) SetState(state sw.State) error {
	r.state = state
	return nil
}

// tierContext is passed to the transition handlers.
type tierContext struct {
	ctx    context.Context
	engine *Engine
	logger *logrus.Entry
}

// interactiveMachine drives the interactive tier through its steps in order.
type interactiveMachine struct {
	sm          sw.StateMachine
	transitions []sw.TransitionType
}

func newInteractiveMachine() *interactiveMachine {
	// transitions are executed in this order
	transitionOrder := []sw.TransitionType{
		connect,
		elevate,
		prime,
		disablePaging,
		dump,
		windDown,
		validate,
		persist,
	}

	m := &interactiveMachine{sm: sw.NewStateMachine(), transitions: transitionOrder}
	h := &interactiveHandler{}

	rules := []struct {
		t        sw.TransitionType
		from, to sw.State
		fn       func(sw.StateSwitch, sw.TransitionArgs) error
	}{
		{connect, stateQueued, stateConnected, h.connect},
		{elevate, stateConnected, stateElevated, h.elevate},
		{prime, stateElevated, statePrimed, h.prime},
		{disablePaging, statePrimed, statePagingDisabled, h.disablePaging},
		{dump, statePagingDisabled, stateDumped, h.dump},
		{windDown, stateDumped, stateClosed, h.windDown},
		{validate, stateClosed, stateValidated, h.validate},
		{persist, stateValidated, statePersisted, h.persist},
	}

	for _, r := range rules {
		m.sm.AddTransition(sw.TransitionRule{
			TransitionType:   r.t,
			SourceStates:     sw.States{r.from},
			DestinationState: r.to,
			Transition:       r.fn,
			PostTransition:   h.logState,
		})
	}

	m.sm.AddTransition(sw.TransitionRule{
		TransitionType: tierFailed,
		SourceStates: sw.States{
			stateQueued,
			stateConnected,
			stateElevated,
			statePrimed,
			statePagingDisabled,
			stateDumped,
			stateClosed,
			stateValidated,
		},
		DestinationState: stateFailed,
		Transition:       h.failed,
		PostTransition:   h.logState,
	})

	return m
}

func (m *interactiveMachine) run(run *interactiveRun, tctx *tierContext) error {
	var err error

	// the session is closed and the failure recorded whichever step failed
	defer func() {
		if err != nil {
			run.err = err
			_ = m.sm.Run(tierFailed, run, tctx)
		}
	}()

	for _, transitionType := range m.transitions {
		err = m.sm.Run(transitionType, run, tctx)
		if err != nil {
			if errors.Is(err, sw.NoConditionPassedToRunTransaction) {
				err = errors.Wrap(
					errTransition,
					fmt.Sprintf("no transition rule found for transition type '%s' and state '%s'", transitionType, run.state),
				)
			}

			return err
		}
	}

	return nil
}

// interactiveHandler implements the interactive tier transitions.
type interactiveHandler struct{}

func assertArgs(s sw.StateSwitch, args sw.TransitionArgs) (*interactiveRun, *tierContext, error) {
	tctx, ok := args.(*tierContext)
	if !ok {
		return nil, nil, ErrInvalidTransitionArgs
	}

	run, ok := s.(*interactiveRun)
	if !ok {
		return nil, nil, ErrInvalidStateSwitch
	}

	return run, tctx, nil
}

func (h *interactiveHandler) connect(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	session, err := tctx.engine.dialer.Dial(tctx.ctx, run.params)
	if err != nil {
		return err
	}

	run.session = session
	tctx.logger.Info("connected, starting interactive capture")

	return nil
}

// elevate is best effort, devices already in privileged mode or without an
// enable step carry on.
func (h *interactiveHandler) elevate(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	if err := run.session.Elevate(tctx.ctx); err != nil {
		tctx.logger.WithError(err).Warn("enable mode not entered")
		return nil
	}

	tctx.logger.Debug("entered enable mode")

	return nil
}

func (h *interactiveHandler) prime(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	if err := run.session.Send("\n"); err != nil {
		return err
	}

	if err := sleep(tctx.ctx, tctx.engine.opts.PrimeDelay); err != nil {
		return err
	}

	tctx.logger.WithField("prompt", strings.TrimSpace(run.session.ReceivePending())).Debug("initial prompt")

	return nil
}

func (h *interactiveHandler) disablePaging(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	for _, cmd := range run.profile.PagingCommands {
		if err := run.session.Send(cmd + "\n"); err != nil {
			return err
		}

		if err := sleep(tctx.ctx, tctx.engine.opts.SettleDelay); err != nil {
			return err
		}

		tctx.logger.WithFields(logrus.Fields{
			"command":  cmd,
			"response": strings.TrimSpace(run.session.ReceivePending()),
		}).Trace("pagination command sent")
	}

	return nil
}

func (h *interactiveHandler) dump(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	opts := tctx.engine.opts

	for _, cmd := range dumpCandidates(run.device.CaptureCommand, run.profile.DumpCommands) {
		tctx.logger.WithField("command", cmd).Info("sending dump command")

		out, err := pollCommand(tctx.ctx, run.session, cmd, run.profile, opts)
		run.raw.WriteString(out)

		if err != nil {
			return err
		}

		if countLines(normalize(out)) >= opts.MinLines {
			break
		}
	}

	return nil
}

// pollCommand sends cmd and collects output until the terminator completes,
// the device goes quiet after sending data, or the ceiling elapses.
func pollCommand(ctx context.Context, session sshclient.Session, cmd string, p Profile, opts Options) (string, error) {
	if err := session.Send(cmd + "\n"); err != nil {
		return "", err
	}

	var acc strings.Builder

	start := time.Now()

	for time.Since(start) < opts.PollCeiling {
		if err := sleep(ctx, opts.PollInterval); err != nil {
			return acc.String(), err
		}

		chunk := session.ReceivePending()
		if chunk == "" {
			if acc.Len() > 0 {
				break
			}

			continue
		}

		acc.WriteString(chunk)

		marker := p.Terminator(chunk)
		if marker == Complete {
			break
		}

		if marker == More {
			if err := session.Send(p.ContinueKey); err != nil {
				return acc.String(), err
			}
		}
	}

	return acc.String(), nil
}

func (h *interactiveHandler) windDown(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	if err := run.session.Send("exit\n"); err != nil {
		tctx.logger.WithError(err).Debug("exit not sent")
	}

	_ = sleep(tctx.ctx, tctx.engine.opts.ExitDelay)
	run.session.ReceivePending()

	closeSession(run, tctx)

	return nil
}

func (h *interactiveHandler) validate(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	text := normalize(run.raw.String())

	lines := countLines(text)
	if lines < tctx.engine.opts.MinLines {
		return errors.Wrap(
			model.ErrCaptureValidation,
			fmt.Sprintf("interactive capture returned %d lines, need %d", lines, tctx.engine.opts.MinLines),
		)
	}

	run.content = stripEchoes(text, run.profile.EchoPrefixes)

	return nil
}

func (h *interactiveHandler) persist(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	path, err := tctx.engine.artifacts.Save(run.device.Hostname, tctx.engine.now(), run.content)
	if err != nil {
		return err
	}

	run.path = path
	tctx.logger.WithField("file", filepath.Base(path)).Info("configuration saved")

	return nil
}

func (h *interactiveHandler) failed(s sw.StateSwitch, args sw.TransitionArgs) error {
	run, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	closeSession(run, tctx)
	tctx.logger.WithError(run.err).Warn("interactive capture failed")

	return nil
}

func (h *interactiveHandler) logState(s sw.StateSwitch, args sw.TransitionArgs) error {
	_, tctx, err := assertArgs(s, args)
	if err != nil {
		return err
	}

	tctx.logger.WithField("state", s.State()).Trace("interactive capture state")

	return nil
}

func closeSession(run *interactiveRun, tctx *tierContext) {
	if run.session == nil {
		return
	}

	if err := run.session.Close(); err != nil {
		tctx.logger.WithError(err).Trace("session close")
	}

	run.session = nil
}

// dumpCandidates puts the device specific command first, followed by the
// profile commands without repeating it.
func dumpCandidates(custom string, standard []string) []string {
	custom = strings.TrimSpace(custom)

	cmds := make([]string, 0, len(standard)+1)
	if custom != "" {
		cmds = append(cmds, custom)
	}

	for _, c := range standard {
		if c != custom {
			cmds = append(cmds, c)
		}
	}

	return cmds
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return errors.Wrap(model.ErrTimeout, "capture cancelled: "+ctx.Err().Error())
		}

		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return errors.Wrap(model.ErrTimeout, "capture cancelled: "+ctx.Err().Error())
	case <-t.C:
		return nil
	}
}
