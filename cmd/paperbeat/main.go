package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/paperbeat/internal/app"
	"github.com/ayusman/paperbeat/internal/capture"
	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/server"
	"github.com/ayusman/paperbeat/internal/store"
	"github.com/ayusman/paperbeat/internal/tray"
	"github.com/ayusman/paperbeat/internal/zone"
)

const (
	shutdownTimeout = 5 * time.Second
	trayBuffer      = 16
)

type options struct {
	addr       string
	camera     int
	cameraSet  bool
	replay     string
	configPath string
	dataDir    string
	pluginDir  string
	retention  time.Duration
	tray       bool
}

func main() {
	var o options
	flag.StringVar(&o.addr, "addr", ":8080", "HTTP listen address")
	flag.IntVar(&o.camera, "camera", 0, "camera device id, -1 for a simulated camera")
	flag.StringVar(&o.replay, "replay", "", "directory of frames the simulated camera plays in a loop")
	flag.StringVar(&o.configPath, "config", "", "JSON config file, overrides the persisted settings")
	flag.StringVar(&o.dataDir, "data", "", "data directory (default ~/.paperbeat)")
	flag.StringVar(&o.pluginDir, "plugins", "", "plugin directory (default <data>/plugins)")
	flag.DurationVar(&o.retention, "retention", 30*24*time.Hour, "how long note history is kept, 0 keeps everything")
	flag.BoolVar(&o.tray, "tray", false, "show the system tray menu")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "camera" {
			o.cameraSet = true
		}
	})

	log.Init(*logLevel)

	if err := run(o); err != nil {
		log.Error("paperbeat failed", "error", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		o.dataDir = filepath.Join(homeDir, ".paperbeat")
	}
	if err := os.MkdirAll(o.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if o.pluginDir == "" {
		o.pluginDir = filepath.Join(o.dataDir, "plugins")
	}

	st, err := store.New(filepath.Join(o.dataDir, "paperbeat.db"))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	if o.retention > 0 {
		if n, err := st.Notes().Prune(time.Now().Add(-o.retention)); err != nil {
			log.Warn("failed to prune note history", "error", err)
		} else if n > 0 {
			log.Info("pruned note history", "removed", n)
		}
	}

	cfg, err := app.LoadConfig(st, o.configPath)
	if err != nil {
		return err
	}
	if o.cameraSet {
		cfg.Capture.CameraID = o.camera
	}
	live := config.NewLive(cfg)

	var cam capture.Camera
	if cfg.Capture.CameraID < 0 {
		frames, err := simulatedFrames(o.replay, cfg)
		if err != nil {
			return err
		}
		defer func() {
			for _, f := range frames {
				f.Close()
			}
		}()
		cam = capture.NewMockCamera(frames, true)
		log.Info("using simulated camera", "frames", len(frames))
	}

	svc, err := newServices(o, st, live, app.Config{
		Store:     st,
		Settings:  live,
		PluginDir: o.pluginDir,
		Camera:    cam,
	})
	if err != nil {
		return err
	}
	defer svc.close()

	if err := svc.start(); err != nil {
		return err
	}
	srv, tr := svc.srv, svc.tray

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", o.addr)
		errCh <- srv.ListenAndServe(o.addr)
	}()

	done := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
			done <- nil
		case err := <-errCh:
			done <- err
		}
		if tr != nil {
			tr.Quit()
		}
	}()

	if tr != nil {
		tr.OnQuit(stop)
		// systray needs the main goroutine on macOS
		tr.Run()
	}
	serveErr := <-done

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("server shutdown failed", "error", err)
	}

	return serveErr
}

// services are the long-lived components of one run.
type services struct {
	app  *app.App
	hub  *server.NotesHub
	tray *tray.Tray
	srv  *server.Server
}

// newServices builds the app and every component subscribed to its bus.
// Nothing is started yet.
func newServices(o options, st *store.Store, live *config.Live, cfg app.Config) (*services, error) {
	a := app.New(cfg)

	hub, err := server.NewNotesHub(a.Bus())
	if err != nil {
		a.Stop()
		return nil, err
	}
	s := &services{app: a, hub: hub}

	if o.tray {
		if s.tray, err = setupTray(a, o.addr); err != nil {
			s.close()
			return nil, err
		}
	}

	webDir := findWebDir(o.dataDir)
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}
	s.srv = server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Calibrator: a,
		Settings:   live,
		Frames:     a.Latest(),
		Notes:      hub,
		Bus:        a.Bus(),
	})
	return s, nil
}

// start starts the pipeline. When that fails every service is closed.
func (s *services) start() error {
	if err := s.app.Start(); err != nil {
		s.close()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	return nil
}

// close stops the pipeline, which closes the bus and ends every subscriber,
// then waits for the live feed to disconnect its clients. It is idempotent.
func (s *services) close() {
	s.app.Stop()
	s.hub.Close()
}

// simulatedFrames returns the frames of the simulated camera: the images in
// replayDir, or a synthetic sheet of paper.
func simulatedFrames(replayDir string, cfg config.Config) ([]*gocv.Mat, error) {
	if replayDir != "" {
		frames, err := capture.LoadSequence(replayDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load replay frames: %w", err)
		}
		return frames, nil
	}
	w, h := cfg.Capture.Width, cfg.Capture.Height
	return []*gocv.Mat{capture.SheetFrame(w, h, capture.DefaultSheet(w, h))}, nil
}

func setupTray(a *app.App, addr string) (*tray.Tray, error) {
	tr := tray.New()

	events, err := a.Bus().Subscribe("tray", trayBuffer)
	if err != nil {
		return nil, err
	}
	go tr.Follow(events)

	tr.OnToggle(a.SetEnabled)
	tr.OnRecalibrate(func() {
		if !a.RequestCalibration() {
			log.Warn("recalibration not queued, pipeline is not running")
		}
	})
	tr.OnSettings(func() {
		if err := openBrowser(settingsURL(addr)); err != nil {
			log.Warn("failed to open browser", "error", err)
		}
	})
	tr.SetCalibrated(a.Current() != nil)
	a.OnCalibrated(func(set *zone.Set) { tr.SetCalibrated(set != nil) })

	return tr, nil
}

func settingsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	// Check relative paths from current working directory
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
