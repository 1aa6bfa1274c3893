package capture

import (
	"regexp"
	"sort"
)

// Marker is the verdict of a Terminator on the latest chunk of output.
type Marker int

const (
	// Continue keeps polling.
	Continue Marker = iota
	// Complete ends the poll loop for the current command.
	Complete
	// More means the device paused on a pager, the continuation key is sent
	// and polling resumes.
	More
)

func (m Marker) String() string {
	switch m {
	case Complete:
		return "complete"
	case More:
		return "more"
	default:
		return "continue"
	}
}

// Terminator decides whether a chunk of output completes a dump.
type Terminator func(chunk string) Marker

// Profile holds the CLI dialect of a device family.
type Profile struct {
	Name string
	// EnableCommand is empty when the platform has no elevation step.
	EnableCommand  string
	PagingCommands []string
	DumpCommands   []string
	// PrimaryCommand is used by the last resort tier.
	PrimaryCommand string
	ContinueKey    string
	Terminator     Terminator
	// EchoPrefixes are stripped from the captured text line by line.
	EchoPrefixes []string
}

var (
	// pagingCommands covers IOS style and Junos style pagers, devices
	// ignore the syntax they do not know.
	pagingCommands = []string{
		"terminal length 0",
		"terminal width 512",
		"set cli screen-length 0",
	}

	dumpCommands = []string{
		"show running-config",
		"show running-config all",
		"show tech-support | begin Running configuration",
	}

	echoPrefixes = []string{"show", "terminal", "enable", "conf t", "exit", "set cli"}
)

var (
	// morePager matches both the IOS "--More--" and the ProCurve
	// "-- MORE --" pause.
	morePager  = regexp.MustCompile(`(?i)-- ?more ?--`)
	junosPager = regexp.MustCompile(`---\(more`)

	// Prompts only count at the very end of a chunk, so a banner or
	// description containing '#' or '>' does not end the dump.
	privPrompt  = regexp.MustCompile(`#\s*$`)
	junosPrompt = regexp.MustCompile(`[>#]\s*$`)
	// configEnd is the IOS end of config marker on a line of its own.
	configEnd = regexp.MustCompile(`(?m)^end\s*$`)
)

// PromptTerminator is the heuristic used for IOS like shells: a pager
// marker asks for more, a privileged prompt or the end of config marker
// completes.
func PromptTerminator(pager *regexp.Regexp, complete ...*regexp.Regexp) Terminator {
	return func(chunk string) Marker {
		if pager.MatchString(chunk) {
			return More
		}

		for _, c := range complete {
			if c.MatchString(chunk) {
				return Complete
			}
		}

		return Continue
	}
}

func iosLike(name string) Profile {
	return Profile{
		Name:           name,
		EnableCommand:  "enable",
		PagingCommands: pagingCommands,
		DumpCommands:   dumpCommands,
		PrimaryCommand: "show running-config",
		ContinueKey:    " ",
		Terminator:     PromptTerminator(morePager, privPrompt, configEnd),
		EchoPrefixes:   echoPrefixes,
	}
}

// procurveLike covers HP ProCurve and ArubaOS-Switch, which only turn the
// pager off with "no page".
func procurveLike(name string) Profile {
	p := iosLike(name)
	p.PagingCommands = append([]string{"no page"}, pagingCommands...)
	p.EchoPrefixes = append([]string{"no page"}, echoPrefixes...)

	return p
}

var profiles = map[string]Profile{
	"cisco_ios":   iosLike("cisco_ios"),
	"cisco_xe":    iosLike("cisco_xe"),
	"cisco_nxos":  iosLike("cisco_nxos"),
	"arista_eos":  iosLike("arista_eos"),
	"hp_procurve": procurveLike("hp_procurve"),
	"aruba_os":    procurveLike("aruba_os"),
	"juniper_junos": {
		Name:           "juniper_junos",
		PagingCommands: pagingCommands,
		DumpCommands:   []string{"show configuration | display set", "show configuration"},
		PrimaryCommand: "show configuration",
		ContinueKey:    " ",
		Terminator:     PromptTerminator(junosPager, junosPrompt),
		EchoPrefixes:   echoPrefixes,
	},
}

// ProfileFor returns the profile registered under name, unknown names fall
// back to cisco_ios and report false.
func ProfileFor(name string) (Profile, bool) {
	p, ok := profiles[name]
	if !ok {
		return profiles["cisco_ios"], false
	}

	return p, true
}

// Profiles lists the known profile names.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
