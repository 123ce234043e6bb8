package armlet

import (
	"io"

	"github.com/armlet/armlet/internal/logging"
)

// Config configures one compilation. Create one with NewConfig and
// refine it with the With* methods; each returns a copy so configs can
// be shared and specialised safely.
type Config struct {
	outputPath  string
	emitIRPost  string
	annotateIR  bool
	testTrace   bool
	logDisabled bool
	logChannels []string
	stdout      io.Writer
	dumpSink    func(string)
}

// NewConfig returns the default configuration: assembly on stdout, no
// IR dumps, logging disabled.
func NewConfig() *Config {
	return &Config{outputPath: "-"}
}

// WithOutputPath sets the assembly destination. "-" means stdout.
func (c *Config) WithOutputPath(path string) *Config {
	ret := *c
	ret.outputPath = path
	return &ret
}

// WithEmitIRPost dumps the IR after the named pass runs.
func (c *Config) WithEmitIRPost(passName string) *Config {
	ret := *c
	ret.emitIRPost = passName
	return &ret
}

// WithAnnotatedIR includes instruction debug comments in IR dumps.
func (c *Config) WithAnnotatedIR() *Config {
	ret := *c
	ret.annotateIR = true
	return &ret
}

// WithTestTrace makes analysis passes print their intermediate results.
func (c *Config) WithTestTrace() *Config {
	ret := *c
	ret.testTrace = true
	return &ret
}

// WithLogChannel enables a named log channel; "all" enables every one.
func (c *Config) WithLogChannel(channel string) *Config {
	ret := *c
	ret.logChannels = append(append([]string(nil), c.logChannels...), channel)
	return &ret
}

// WithLoggingDisabled silences all debug logging regardless of enabled
// channels.
func (c *Config) WithLoggingDisabled() *Config {
	ret := *c
	ret.logDisabled = true
	return &ret
}

// WithStdout overrides the stdout sink used for "-" output, for tests
// and embedding drivers.
func (c *Config) WithStdout(w io.Writer) *Config {
	ret := *c
	ret.stdout = w
	return &ret
}

// WithDumpSink routes --emit-ir-post dumps to the given callback
// instead of the general log channel.
func (c *Config) WithDumpSink(sink func(string)) *Config {
	ret := *c
	ret.dumpSink = sink
	return &ret
}

func (c *Config) applyLogging() {
	logging.DisableAll()
	if c.logDisabled {
		return
	}
	for _, channel := range c.logChannels {
		logging.Enable(channel)
	}
}
