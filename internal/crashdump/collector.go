package crashdump

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/smykla-skalski/hookgate/pkg/config"
)

const (
	shortIDLength = 8
	panicNilStr   = "panic(nil)"
)

// Collector builds CrashInfo values from recovered panics.
type Collector struct {
	version   string
	command   string
	sanitizer *Sanitizer
	now       func() time.Time
}

// NewCollector creates a Collector stamping dumps with version and the
// command being run.
func NewCollector(version, command string) *Collector {
	return &Collector{
		version:   version,
		command:   command,
		sanitizer: NewSanitizer(),
		now:       time.Now,
	}
}

// Collect gathers crash information. Both dispatch and cfg may be nil.
func (c *Collector) Collect(recovered any, dispatch *ContextInfo, cfg *config.Config) *CrashInfo {
	now := c.now()
	panicValue := formatPanicValue(recovered)

	info := &CrashInfo{
		ID:         generateCrashID(now, panicValue),
		Timestamp:  now,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Runtime: RuntimeInfo{
			GOOS:         runtime.GOOS,
			GOARCH:       runtime.GOARCH,
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
		},
		Metadata: c.metadata(),
		Context:  dispatch,
	}

	if cfg != nil {
		info.Config = c.sanitizer.SanitizeConfig(cfg)
	}

	return info
}

func (c *Collector) metadata() DumpMetadata {
	meta := DumpMetadata{Version: c.version, Command: c.command}

	if u, err := user.Current(); err == nil {
		meta.User = u.Username
	}

	if hostname, err := os.Hostname(); err == nil {
		meta.Hostname = hostname
	}

	if wd, err := os.Getwd(); err == nil {
		meta.WorkingDir = wd
	}

	return meta
}

// formatPanicValue renders a recovered value. panic(nil) surfaces as
// *runtime.PanicNilError since Go 1.21.
func formatPanicValue(v any) string {
	if v == nil {
		return panicNilStr
	}

	if _, ok := v.(*runtime.PanicNilError); ok {
		return panicNilStr
	}

	if err, ok := v.(error); ok {
		return err.Error()
	}

	return fmt.Sprintf("%v", v)
}

// generateCrashID returns crash-{timestamp}-{shortHash}.
func generateCrashID(timestamp time.Time, panicValue string) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%d-%s", timestamp.UnixNano(), panicValue))

	return fmt.Sprintf(
		"crash-%s-%s",
		timestamp.UTC().Format("20060102T150405"),
		hex.EncodeToString(hash[:])[:shortIDLength],
	)
}
