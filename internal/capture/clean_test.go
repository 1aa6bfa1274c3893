package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"lone cr", "a\rb", "a\nb"},
		{"ios pager", "a\n --More-- \x08\x08\x08\x08\x08\x08\x08\x08\x08\x08b\n", "a\nb\n"},
		{"junos pager", "a\n---(more 45%)---\x1b[Kb\n", "a\nb\n"},
		{"procurve pager", "a\n-- MORE --, next page: Space, next line: Enter, quit: Control-C\x1b[2Kb\n", "a\nb\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalize(tc.in))
		})
	}
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("a"))
	assert.Equal(t, 2, countLines("a\nb\n"))
	assert.Equal(t, 3, countLines("a\n\nb"))
}

func TestStripEchoes(t *testing.T) {
	in := "show running-config\nBuilding configuration...\nterminal length 0\nhostname sw1\nexit\n username admin"
	got := stripEchoes(in, echoPrefixes)

	assert.Equal(t, "Building configuration...\nhostname sw1\n username admin", got)
}

func TestPromptTerminator(t *testing.T) {
	ios, _ := ProfileFor("cisco_ios")
	procurve, _ := ProfileFor("hp_procurve")
	junos, _ := ProfileFor("juniper_junos")

	tests := []struct {
		name  string
		term  Terminator
		chunk string
		want  Marker
	}{
		{"ios pager", ios.Terminator, "line\n --More-- ", More},
		{"ios prompt after end", ios.Terminator, "end\r\nsw1#", Complete},
		{"ios end marker alone", ios.Terminator, "line\r\nend\r\n", Complete},
		{"ios mid config", ios.Terminator, "interface Gi0/1\r\n", Continue},
		{"end inside a word", ios.Terminator, "spanning-tree extend system-id\r\n", Continue},
		{"end as a prefix", ios.Terminator, "endpoint-group web\r\n", Continue},
		{"hash inside a banner", ios.Terminator, "banner motd #\r\nAuthorized only\r\n", Continue},
		{"procurve pager", procurve.Terminator, "-- MORE --, next page: Space, next line: Enter, quit: Control-C", More},
		{"procurve prompt", procurve.Terminator, "vlan 1\r\nHP-2920#", Complete},
		{"junos pager", junos.Terminator, "---(more)---", More},
		{"junos prompt", junos.Terminator, "set system host-name r1\r\nadmin@r1> ", Complete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.term(tt.chunk))
		})
	}
}

func TestProcurvePagingCommands(t *testing.T) {
	for _, name := range []string{"hp_procurve", "aruba_os"} {
		p, ok := ProfileFor(name)
		assert.True(t, ok)
		assert.Equal(t, "no page", p.PagingCommands[0])
		assert.Contains(t, p.EchoPrefixes, "no page")
	}

	ios, _ := ProfileFor("cisco_ios")
	assert.NotContains(t, ios.PagingCommands, "no page")
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, " --More-- ", lastLine("a\r\nb\r\n --More-- "))
	assert.Equal(t, "sw1#", lastLine("a\nsw1#\r\n\r\n"))
}

func TestProfileFor(t *testing.T) {
	p, ok := ProfileFor("juniper_junos")
	assert.True(t, ok)
	assert.Empty(t, p.EnableCommand)
	assert.Equal(t, More, p.Terminator("---(more)---"))

	p, ok = ProfileFor("unknown_os")
	assert.False(t, ok)
	assert.Equal(t, "cisco_ios", p.Name)
	assert.Equal(t, "enable", p.EnableCommand)

	assert.Contains(t, Profiles(), "cisco_ios")
}

func TestDumpCandidates(t *testing.T) {
	assert.Equal(t, dumpCommands, dumpCandidates("", dumpCommands))
	assert.Equal(t,
		[]string{"show running-config", "show running-config all", "show tech-support | begin Running configuration"},
		dumpCandidates(" show running-config ", dumpCommands),
	)
	assert.Equal(t, "show startup-config", dumpCandidates("show startup-config", dumpCommands)[0])
}
