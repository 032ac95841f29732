package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"glance/api"
	"glance/capture"
	"glance/log"
	"glance/recorder"
	"glance/region"
	"glance/session"
)

var version = "dev"

// regionFlags collects repeatable -region x,y,w,h values.
type regionFlags []region.Draft

func (r *regionFlags) String() string { return fmt.Sprintf("%d regions", len(*r)) }

func (r *regionFlags) Set(v string) error {
	var d region.Draft
	if _, err := fmt.Sscanf(v, "%d,%d,%d,%d", &d.X, &d.Y, &d.Width, &d.Height); err != nil {
		return fmt.Errorf("expected x,y,w,h: %w", err)
	}
	*r = append(*r, d)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run() int {
	var regions regionFlags
	apiFlag := flag.String("api", envOr("GLANCE_API_URL", "http://localhost:5001"), "Backend base URL")
	wsFlag := flag.String("ws", envOr("GLANCE_WS_URL", "ws://localhost:5001/ws"), "Result channel URL")
	titleFlag := flag.String("title", "", "Recording title (prompted when empty)")
	deviceFlag := flag.String("device", "", "Use named camera device")
	setupFlag := flag.Bool("setup", false, "Select camera interactively (otherwise uses the default)")
	fakeFlag := flag.Bool("fake", false, "Run against synthetic camera, mic, and encoder")
	forFlag := flag.Duration("for", 10*time.Second, "Recording duration")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Var(&regions, "region", "Region as x,y,w,h (repeatable)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("glance %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	var sink EventSink = consoleSink{}

	client := api.NewClient(*apiFlag)
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := client.Health(healthCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: backend unreachable: %v\n", err)
	}
	healthCancel()

	cfg := session.Config{
		Backend: client,
		WSURL:   *wsFlag,
	}
	if *fakeFlag {
		cfg.OpenSource = func(_ *capture.DeviceInfo, _, _ int) (capture.Source, error) {
			return capture.NewFakeSource(capture.DefaultWidth, capture.DefaultHeight, capture.DefaultFPS), nil
		}
		cfg.NewEncoder = func(_, _ int) (recorder.Encoder, error) {
			return recorder.NewFakeEncoder(), nil
		}
		cfg.NewMic = func() (capture.MicContext, error) {
			return &capture.FakeMicContext{}, nil
		}
	} else {
		cfg.NewMic = capture.NewMicContext
	}

	ctl := session.New(cfg)
	defer ctl.Abort()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctl.Begin(ctx); err != nil {
		sink.Error(err.Error())
		return 1
	}

	var dev *capture.DeviceInfo
	if !*fakeFlag {
		// Enumeration runs in the background; give it a beat.
		time.Sleep(200 * time.Millisecond)
		devices := ctl.Devices()
		switch {
		case *setupFlag:
			dev, err = selectDevice(devices)
			if err != nil {
				sink.Error(err.Error())
				return 1
			}
		case *deviceFlag != "":
			for i := range devices {
				if strings.Contains(devices[i].Name, *deviceFlag) || devices[i].ID == *deviceFlag {
					dev = &devices[i]
					break
				}
			}
			if dev == nil {
				sink.Error(fmt.Sprintf("camera %q not found", *deviceFlag))
				return 1
			}
		}
	}
	if dev != nil {
		sink.DeviceLine(dev.Name)
	} else {
		sink.DeviceLine("default")
	}

	title := strings.TrimSpace(*titleFlag)
	if title == "" {
		fmt.Print("Recording title: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			title = strings.TrimSpace(scanner.Text())
		}
	}

	if err := ctl.SetName(ctx, title, dev); err != nil {
		sink.Error(err.Error())
		return 1
	}
	sink.StateChange(ctl.State().String())

	if len(regions) == 0 {
		sink.Error("no regions given; pass at least one -region x,y,w,h")
		return 1
	}
	for _, d := range regions {
		ctl.BeginDraft(d.X, d.Y)
		ctl.UpdateDraft(d.X+d.Width, d.Y+d.Height)
		if !ctl.EndDraft() {
			sink.Error(fmt.Sprintf("region %dx%d at (%d,%d) too small", d.Width, d.Height, d.X, d.Y))
			return 1
		}
	}
	for _, r := range ctl.Regions() {
		sink.RegionLine(r.Index, fmt.Sprintf("%dx%d at (%d,%d)", r.Width, r.Height, r.X, r.Y))
	}

	if err := ctl.Arm(ctx); err != nil {
		sink.Error(err.Error())
		return 1
	}
	sink.StateChange(ctl.State().String())

	start := time.Now()
	deadline := time.After(*forFlag)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	lastText := map[int]string{}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			sink.RecordingTick(time.Since(start))
			for idx, res := range ctl.Results() {
				if res.Text != lastText[idx] {
					lastText[idx] = res.Text
					sink.ResultText(idx, res.Text)
				}
			}
		}
	}

	sink.StateChange("finalizing")
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ctl.Stop(stopCtx); err != nil {
		sink.Error(err.Error())
		return 1
	}
	media, _ := ctl.Media()
	sink.UploadDone(float64(len(media.Bytes))/1024, media.Duration)
	sink.StateChange(ctl.State().String())
	return 0
}

func main() {
	os.Exit(run())
}
