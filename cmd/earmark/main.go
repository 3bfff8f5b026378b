package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/earmark-audio/earmark/internal/capture"
	"github.com/earmark-audio/earmark/internal/config"
	"github.com/earmark-audio/earmark/internal/export"
	"github.com/earmark-audio/earmark/internal/models"
	"github.com/earmark-audio/earmark/internal/playback"
	"github.com/earmark-audio/earmark/internal/segment"
	"github.com/earmark-audio/earmark/internal/source"
	"github.com/earmark-audio/earmark/internal/store"
	"github.com/earmark-audio/earmark/internal/transcribe"
)

const usage = `usage: earmark [-config path] <command>

commands:
  play <file>                     play a local file; press Enter to capture the current moment
  capture <source> <anchor-ms>    one-shot capture against an explicit anchor
  export <source>                 regenerate the markdown document for a source
  notes <capture-id> <text>       set the notes on an existing capture
  delete <source> <capture-id>    remove a capture and re-sync the export
  download-model                  fetch the whisper model

<source> is a local file path or a key like episode:<guid>.`

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/earmark/config.yaml)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "download-model" {
		if err := models.DownloadWhisper(); err != nil {
			log.Fatalf("download-model: %v", err)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer app.close()

	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "play":
		if len(args) != 2 {
			log.Fatal("play: expected a file argument")
		}
		err = app.play(ctx, args[1])
	case "capture":
		if len(args) != 3 {
			log.Fatal("capture: expected <source> <anchor-ms>")
		}
		err = app.captureAt(ctx, args[1], args[2])
	case "export":
		if len(args) != 2 {
			log.Fatal("export: expected a source argument")
		}
		err = app.export(ctx, args[1])
	case "notes":
		if len(args) != 3 {
			log.Fatal("notes: expected <capture-id> <text>")
		}
		err = app.setNotes(ctx, args[1], args[2])
	case "delete":
		if len(args) != 3 {
			log.Fatal("delete: expected <source> <capture-id>")
		}
		err = app.deleteCapture(ctx, args[1], args[2])
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

// app bundles the wired collaborators behind the CLI commands.
type app struct {
	cfg       *config.Config
	store     *store.Store
	extractor *segment.Extractor
	engine    *transcribe.Engine
	orch      *capture.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	extractor := segment.NewExtractor(
		int(cfg.Audio.SampleRate),
		time.Duration(cfg.Capture.ExtractTimeoutMs)*time.Millisecond,
	)
	engine := transcribe.NewEngine(
		cfg.ModelPath,
		int(cfg.Audio.SampleRate),
		time.Duration(cfg.Capture.EngineLoadWaitMs)*time.Millisecond,
	)

	orch, err := capture.New(capture.Deps{
		HalfWindowMs: cfg.Capture.HalfWindowMs,
		Resolver:     source.NewFileResolver(cfg.Storage.DownloadsDir),
		Extractor:    extractor,
		Engine:       engine,
		Store:        st,
		Exporter:     export.NewSyncer(cfg.Export.Dir),
		Metadata:     sourceMetadata,
	})
	if err != nil {
		st.Close()
		engine.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, extractor: extractor, engine: engine, orch: orch}, nil
}

func (a *app) close() {
	a.engine.Close()
	a.store.Close()
}

// play runs the interactive loop: the file plays through the default output
// device and each Enter press captures a window around the live position.
func (a *app) play(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	src := source.LocalFile(abs)

	player, err := playback.NewPlayer(a.cfg.Audio.SampleRate, a.cfg.Audio.Channels)
	if err != nil {
		return err
	}
	defer player.Close()

	log.Printf("Loading %s...", abs)
	if err := player.Load(ctx, abs); err != nil {
		return err
	}
	if err := player.Start(); err != nil {
		return err
	}

	_, durMs := player.Snapshot()
	log.Printf("Playing (%s). Enter = capture, p = pause/resume, q = quit.", msClock(durMs))

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	paused := false
	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down...")
			return nil

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "q":
				return nil

			case "p":
				if paused {
					if err := player.Start(); err != nil {
						log.Printf("ERROR: resume: %v", err)
						continue
					}
					log.Println("Resumed")
				} else {
					if err := player.Pause(); err != nil {
						log.Printf("ERROR: pause: %v", err)
						continue
					}
					pos, _ := player.Snapshot()
					log.Printf("Paused at %s", msClock(pos))
				}
				paused = !paused

			case "":
				pos, _ := player.Snapshot()
				log.Printf("Capturing around %s...", msClock(pos))
				run := a.orch.Trigger(ctx, src, player)
				go func() {
					<-run.Done()
					reportOutcome(run.Outcome())
				}()
			}
		}
	}
}

// captureAt runs one pipeline pass against an explicit anchor, probing the
// source for its duration first.
func (a *app) captureAt(ctx context.Context, rawSource, rawAnchor string) error {
	src, err := parseSource(rawSource)
	if err != nil {
		return err
	}
	anchorMs, err := strconv.ParseInt(rawAnchor, 10, 64)
	if err != nil {
		return fmt.Errorf("anchor %q is not a millisecond offset: %w", rawAnchor, err)
	}

	resolver := source.NewFileResolver(a.cfg.Storage.DownloadsDir)
	path, err := resolver.Resolve(src)
	if err != nil {
		return err
	}
	durMs, err := a.extractor.ProbeDurationMs(ctx, path)
	if err != nil {
		return err
	}
	if durMs == segment.DurationUnknown {
		durMs = playback.DurationUnknown
	}

	run := a.orch.Trigger(ctx, src, playback.FixedSnapshot{PositionMs: anchorMs, DurationMs: durMs})
	outcome, err := run.Wait(ctx)
	if err != nil {
		return err
	}
	reportOutcome(outcome)
	if !outcome.Succeeded() {
		os.Exit(1)
	}
	return nil
}

// setNotes updates a capture's notes and re-syncs the source's document,
// which renders notes inline.
func (a *app) setNotes(ctx context.Context, id, notes string) error {
	c, err := a.store.GetCapture(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.UpdateNotes(ctx, id, notes); err != nil {
		return err
	}
	src, err := source.ParseKey(c.SourceKey)
	if err != nil {
		return err
	}
	if _, err := a.orch.Regenerate(ctx, src); err != nil {
		log.Printf("WARN: notes saved but export sync failed: %v (rerun 'earmark export')", err)
	}
	return nil
}

// deleteCapture removes a record and re-syncs the source's document so the
// projection follows the store.
func (a *app) deleteCapture(ctx context.Context, rawSource, id string) error {
	src, err := parseSource(rawSource)
	if err != nil {
		return err
	}
	if err := a.store.DeleteCapture(ctx, id); err != nil {
		return err
	}
	if _, err := a.orch.Regenerate(ctx, src); err != nil {
		log.Printf("WARN: capture deleted but export sync failed: %v (rerun 'earmark export')", err)
	}
	return nil
}

func (a *app) export(ctx context.Context, rawSource string) error {
	src, err := parseSource(rawSource)
	if err != nil {
		return err
	}
	path, err := a.orch.Regenerate(ctx, src)
	if err != nil {
		return err
	}
	log.Printf("Export regenerated: %s", path)
	return nil
}

func reportOutcome(o capture.Outcome) {
	switch {
	case o.Busy():
		log.Println("Capture skipped: one is already in flight for this source")
	case !o.Succeeded():
		log.Printf("Capture failed (%s): %v", capture.KindOf(o.Err), o.Err)
	default:
		c := o.Capture
		if c.Transcription == "" {
			log.Printf("Captured %s – %s: no speech detected (id %s)",
				msClock(c.WindowStartMs), msClock(c.WindowEndMs), c.ID)
		} else {
			log.Printf("Captured %s – %s: %q (id %s)",
				msClock(c.WindowStartMs), msClock(c.WindowEndMs), c.Transcription, c.ID)
		}
		if o.ExportWarning != nil {
			log.Printf("WARN: capture saved but export sync failed: %v (rerun 'earmark export')", o.ExportWarning)
		}
	}
}

// parseSource accepts either a rendered source key or a plain local path.
func parseSource(raw string) (source.Source, error) {
	if src, err := source.ParseKey(raw); err == nil {
		return src, nil
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return source.Source{}, err
	}
	return source.LocalFile(abs), nil
}

func sourceMetadata(src source.Source) export.Metadata {
	switch src.Kind() {
	case source.KindLocalFile:
		base := filepath.Base(src.ID())
		return export.Metadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}
	default:
		return export.Metadata{Title: src.ID()}
	}
}

func msClock(ms int64) string {
	if ms < 0 {
		return "?"
	}
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// signalContext cancels on SIGINT/SIGTERM so in-flight pipeline runs stop
// cooperatively without persisting partial state.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
