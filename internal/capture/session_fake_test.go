package capture

import (
	"context"
	"strings"
	"sync"
)

// scriptedSession answers sent commands with canned chunks, one chunk per
// ReceivePending call.
type scriptedSession struct {
	mu         sync.Mutex
	replies    map[string][]string
	pending    []string
	sent       []string
	timed      string
	timedErr   error
	elevateErr error
	closed     int
}

func newScriptedSession(replies map[string][]string) *scriptedSession {
	return &scriptedSession{replies: replies}
}

func (s *scriptedSession) Elevate(_ context.Context) error {
	return s.elevateErr
}

func (s *scriptedSession) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, text)
	s.pending = append(s.pending, s.replies[strings.TrimSuffix(text, "\n")]...)

	return nil
}

func (s *scriptedSession) ReceivePending() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return ""
	}

	chunk := s.pending[0]
	s.pending = s.pending[1:]

	return chunk
}

func (s *scriptedSession) SendAndWaitTimed(_ context.Context, command string, _ float64, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, command)

	return s.timed, s.timedErr
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed++

	return nil
}

func (s *scriptedSession) sentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.sent...)
}

// configLines renders n plausible configuration lines with CRLF endings.
func configLines(n int) string {
	var b strings.Builder

	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			b.WriteString("interface GigabitEthernet0/")
		case 1:
			b.WriteString(" description uplink ")
		default:
			b.WriteString(" switchport access vlan ")
		}

		b.WriteString(strings.Repeat("1", i%4+1))
		b.WriteString("\r\n")
	}

	return b.String()
}
