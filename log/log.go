package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog     zerolog.Logger
	diagFile    *os.File
	sessionFile *os.File
	logMu       sync.Mutex
	logReady    bool
	pid         int
	dir         string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: GLANCE_LOG_PATH environment variable
	envPath := os.Getenv("GLANCE_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	sessionPath := filepath.Join(dir, "session_log.txt")
	sessionFile, err = os.OpenFile(sessionPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if sessionFile != nil {
		sessionFile.Close()
		sessionFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// RegionText appends a recognized line to the human-readable session log.
func RegionText(regionIndex int, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\tregion%d\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, regionIndex, text)
	sessionFile.WriteString(line)
}

func SessionStart(id, title, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("title", title).
		Str("device", device).
		Msg("session_start")
}

func SessionArmed(id string, regions int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Int("regions", regions).
		Msg("session_armed")
}

type StreamerMetricsData struct {
	Ticks        int
	SentImages   int
	SendFailures int
	SentKB       float64
}

func StreamerMetrics(m StreamerMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("ticks", m.Ticks).
		Int("sent_images", m.SentImages).
		Int("send_failures", m.SendFailures).
		Float64("sent_kb", m.SentKB).
		Msg("streamer")
}

type RecordingMetricsData struct {
	Chunks      int
	SizeKB      float64
	DurationS   float64
	FlushWaitMs float64
	UploadMs    float64
}

func RecordingMetrics(m RecordingMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("chunks", m.Chunks).
		Float64("size_kb", m.SizeKB).
		Float64("duration_s", m.DurationS).
		Float64("flush_wait_ms", m.FlushWaitMs).
		Float64("upload_ms", m.UploadMs).
		Msg("recording")
}

func SessionEnd(id string, uploaded bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Bool("uploaded", uploaded).
		Msg("session_end")
}
