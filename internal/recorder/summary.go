package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/lanikai/alohacap/internal/pacing"
)

const megabyte = 1024 * 1024

// Summary describes a finished run.
type Summary struct {
	Frames int

	// Dropped counts frames the compressor had no room for.
	Dropped int

	// GrabFailures counts cycles where the source or recorder failed.
	GrabFailures int

	// ReadFailures counts fields that could not be pulled from a grabbed
	// frame.
	ReadFailures int

	// WriteFailures counts frames or files an output failed to write.
	WriteFailures int

	// DisplaySkipped counts field images not displayed.
	DisplaySkipped int

	Elapsed time.Duration

	// FPS is the achieved frame rate.
	FPS float64

	// OutputPath and OutputBytes describe the primary output, when it is on
	// disk.
	OutputPath  string
	OutputBytes int64
	MBPerSec    float64

	StopReason pacing.Reason

	// RunID identifies a compressed log output.
	RunID string
}

func (s *Summary) compute() {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return
	}
	s.FPS = float64(s.Frames) / secs
	s.MBPerSec = float64(s.OutputBytes) / megabyte / secs
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recorded %d frames in %.3fs (%v)\n", s.Frames, s.Elapsed.Seconds(), s.StopReason)
	fmt.Fprintf(&b, "Average of %.2f FPS\n", s.FPS)
	if s.OutputPath != "" {
		fmt.Fprintf(&b, "Resulting file is %.1f MB (%.2f MB/sec)\n", float64(s.OutputBytes)/megabyte, s.MBPerSec)
	}
	if n := s.Dropped + s.GrabFailures + s.ReadFailures + s.WriteFailures; n > 0 {
		fmt.Fprintf(&b, "%d dropped, %d grab failures, %d read failures, %d write failures\n",
			s.Dropped, s.GrabFailures, s.ReadFailures, s.WriteFailures)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Log writes the summary to the recorder log, one line at a time.
func (s *Summary) Log() {
	for _, line := range strings.Split(s.String(), "\n") {
		log.Info("%s", line)
	}
	if s.RunID != "" {
		log.Info("Run %s written to %s", s.RunID, s.OutputPath)
	}
}
