// Package logging provides the compiler's channel-based debug logging.
//
// Each subsystem logs through a named channel (e.g. "regalloc", "scp");
// channels are registered once at start-up and can be enabled
// individually (--log=<channel>) or all at once (--log=all). All output
// is structured via logrus with the channel recorded as a field.
package logging

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// Channel names registered by the core. External drivers may register
// more via Register before parsing options.
const (
	General  = "general"
	Validate = "validate"
	GenLower = "genlower"
	Peephole = "peephole"
	SCP      = "scp"
	RegAlloc = "regalloc"
	Emit     = "emit"
)

var (
	logger   = logrus.New()
	channels = map[string]*logrus.Entry{}
	enabled  = map[string]bool{}
)

func init() {
	logger.SetLevel(logrus.DebugLevel)
	for _, name := range []string{General, Validate, GenLower, Peephole, SCP, RegAlloc, Emit} {
		Register(name)
	}
	DisableAll()
}

// Register adds a named channel. Registering an existing name is a no-op.
func Register(name string) {
	if _, ok := channels[name]; ok {
		return
	}
	channels[name] = logger.WithField("channel", name)
	enabled[name] = false
}

// Channels returns the registered channel names, sorted.
func Channels() []string {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enable turns on the named channel. The name "all" enables everything.
func Enable(name string) {
	if name == "all" {
		for n := range enabled {
			enabled[n] = true
		}
		return
	}
	if _, ok := channels[name]; ok {
		enabled[name] = true
	}
}

// DisableAll silences every channel.
func DisableAll() {
	for n := range enabled {
		enabled[n] = false
	}
}

// SetOutput redirects all channel output, mainly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Debugf logs a debug message on the named channel if it is enabled.
func Debugf(channel, format string, args ...interface{}) {
	if enabled[channel] {
		channels[channel].Debugf(format, args...)
	}
}

// Infof logs an info message on the named channel if it is enabled.
func Infof(channel, format string, args ...interface{}) {
	if enabled[channel] {
		channels[channel].Infof(format, args...)
	}
}

// Errorf logs an error message on the named channel. Errors are emitted
// even when the channel is not enabled for debug output.
func Errorf(channel, format string, args ...interface{}) {
	if e, ok := channels[channel]; ok {
		e.Errorf(format, args...)
	} else {
		logger.WithField("channel", channel).Errorf(format, args...)
	}
}
