package encoder

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// Memory-safety constants. Loading the sentence model fresh costs hundreds
// of MiB of resident memory; re-invoking an already-loaded model costs far
// less. The ceiling keeps the process inside small-container limits.
const (
	// ModelResidentOverheadBytes estimates the extra memory of invoking a
	// model that is already loaded (or remote).
	ModelResidentOverheadBytes uint64 = 64 << 20

	// ModelFreshLoadOverheadBytes estimates the memory cost of loading the
	// model from scratch.
	ModelFreshLoadOverheadBytes uint64 = 384 << 20

	// DefaultMemoryCeilingBytes is the projected-usage ceiling used when no
	// ceiling is configured.
	DefaultMemoryCeilingBytes uint64 = 512 << 20
)

// processRSS reports the current resident set size of this process.
func processRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("inspect process: %w", err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("read memory info: %w", err)
	}
	return info.RSS, nil
}
