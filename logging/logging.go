package logging

import (
	"fmt"
	"strings"

	"github.com/tarmac-project/kvbridge"
	wapc "github.com/wapc/wapc-guest-tinygo"
)

const capabilityName = "logging"

// Client exposes convenience helpers for emitting structured log entries.
type Client interface {
	Info(message string, args ...any)
	Warn(message string, args ...any)
	Error(message string, args ...any)
	Debug(message string, args ...any)
	Trace(message string, args ...any)
}

// Config controls how a host-backed Client interacts with the host runtime.
type Config struct {
	// SDKConfig provides the runtime namespace used for host calls.
	SDKConfig kvbridge.RuntimeConfig

	// HostCall overrides the waPC host function used for logging operations.
	HostCall kvbridge.HostCall
}

// client implements Client using the configured host call entrypoint.
type client struct {
	runtime  kvbridge.RuntimeConfig
	hostCall kvbridge.HostCall
}

// New creates a Client that emits logs through the configured host capability.
func New(cfg Config) (Client, error) {
	hostCall := cfg.HostCall
	if hostCall == nil {
		hostCall = wapc.HostCall
	}

	return &client{
		runtime:  cfg.SDKConfig.WithDefaults(),
		hostCall: hostCall,
	}, nil
}

func (c *client) Info(message string, args ...any)  { c.log("Info", message, args) }
func (c *client) Warn(message string, args ...any)  { c.log("Warn", message, args) }
func (c *client) Error(message string, args ...any) { c.log("Error", message, args) }
func (c *client) Debug(message string, args ...any) { c.log("Debug", message, args) }
func (c *client) Trace(message string, args ...any) { c.log("Trace", message, args) }

func (c *client) log(fn string, message string, args []any) {
	_, _ = c.hostCall(c.runtime.Namespace, capabilityName, fn, []byte(Format(message, args...)))
}

// Format renders a message followed by its key/value pairs as "msg k=v k=v".
// A trailing key without a value is rendered with the value !MISSING.
func Format(message string, args ...any) string {
	if len(args) == 0 {
		return message
	}

	var b strings.Builder
	b.WriteString(message)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 >= len(args) {
			fmt.Fprintf(&b, "%v=!MISSING", args[i])
			break
		}
		fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
	}
	return b.String()
}
