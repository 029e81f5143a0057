package supervisor

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultHost         = "localhost"
	DefaultPort         = 8000
	DefaultBin          = "python3"
	DefaultProbeTimeout = 1 * time.Second
	DefaultPollInterval = 30 * time.Second
	DefaultWaitTimeout  = 15 * time.Minute
)

// DefaultBaseArgs launch the llama-cpp-python server module, which exposes
// the OpenAI-compatible endpoints and /extras/tokenize.
var DefaultBaseArgs = []string{"-m", "llama_cpp.server"}

// gpuVisibilityVar is the environment marker consulted for GPU offload.
const gpuVisibilityVar = "CUDA_VISIBLE_DEVICES"

// Config encapsulates all tunables for the supervisor.
type Config struct {
	// ModelPath must be resolved before the supervisor is constructed.
	ModelPath string
	Host      string
	Port      int
	Bin       string
	BaseArgs  []string
	ExtraArgs []string
	// GPU enables full layer offload; otherwise the server runs CPU-only.
	GPU bool
	// Env is passed to the child process; nil inherits os.Environ().
	Env []string

	ProbeTimeout time.Duration
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Bin) == "" {
		c.Bin = DefaultBin
		if c.BaseArgs == nil {
			c.BaseArgs = DefaultBaseArgs
		}
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.Env == nil {
		c.Env = os.Environ()
	}
	return c
}

// LaunchArgs returns the full argument list for the server binary.
func (c Config) LaunchArgs() []string {
	args := append([]string(nil), c.BaseArgs...)
	args = append(args,
		"--model", c.ModelPath,
		"--host", c.Host,
		"--port", strconv.Itoa(c.Port),
	)
	if c.GPU {
		args = append(args, "--n_gpu_layers", "-1")
	} else {
		args = append(args, "--n_gpu_layers", "0")
	}
	return append(args, c.ExtraArgs...)
}

// GPUVisible reports whether the environment marks a GPU as visible to the
// process. Unset, empty, "-1", "none" and "NoDevFiles" mean no GPU.
func GPUVisible(getenv func(string) string) bool {
	v := strings.TrimSpace(getenv(gpuVisibilityVar))
	switch strings.ToLower(v) {
	case "", "-1", "none", "nodevfiles", "void":
		return false
	}
	return true
}
