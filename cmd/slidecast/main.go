// The slidecast command plays a narrated slide deck and keeps its article,
// presentation and video views in sync.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agleyzer/slidecast/internal/audio"
	"github.com/agleyzer/slidecast/internal/backend/sim"
	"github.com/agleyzer/slidecast/internal/cluster"
	"github.com/agleyzer/slidecast/internal/config"
	"github.com/agleyzer/slidecast/internal/highlight"
	"github.com/agleyzer/slidecast/internal/narration"
	"github.com/agleyzer/slidecast/internal/parser"
	"github.com/agleyzer/slidecast/internal/player"
	"github.com/agleyzer/slidecast/internal/server"
	"github.com/agleyzer/slidecast/internal/timeline"
)

const (
	version = "1.0.0"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Parse command-line flags; the environment supplies the defaults
	var (
		port        = flag.Int("port", cfg.Port, "HTTP server port")
		view        = flag.String("view", cfg.View, "Initial view: article, presentation or video")
		verbose     = flag.Bool("verbose", cfg.Verbose, "Enable verbose logging")
		showVersion = flag.Bool("version", false, "Show version and exit")
		tick        = flag.Duration("tick", cfg.Playback.Tick, "Simulation clock interval")
		video       = flag.String("video", cfg.Video, "Video reference for chapter URIs (defaults to the deck's)")
		raftID      = flag.String("raft-id", cfg.Raft.ID, "Raft node ID; enables presenter following")
		raftBind    = flag.String("raft-bind", cfg.Raft.Bind, "Raft bind address (host:port)")
		raftPeers   = flag.String("raft-peers", strings.Join(cfg.Raft.Peers, ","), "Comma-separated Raft peer addresses, including this node")
		raftLog     = flag.String("raft-log", cfg.Raft.LogLevel, "Raft log level (trace, debug, info, warn, error); silent if empty")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Slidecast - Narrated Deck Player v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <deck>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Arguments:\n")
		fmt.Fprintf(os.Stderr, "  <deck>    Path or URL of a YAML deck or article HTML\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  %s_* variables (also read from ./.env) set the defaults above\n", config.Prefix)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s talk.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --port 8080 --view video https://example.com/talk/index.html\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --raft-id node1 --raft-bind 127.0.0.1:7000 --raft-peers 127.0.0.1:7000,127.0.0.1:7001 talk.yaml\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("Slidecast v%s\n", version)
		os.Exit(0)
	}

	// Check for deck argument
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: deck path or URL is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg.Port = *port
	cfg.View = *view
	cfg.Verbose = *verbose
	cfg.Video = *video
	cfg.Playback.Tick = *tick
	cfg.Raft.ID = *raftID
	cfg.Raft.Bind = *raftBind
	cfg.Raft.Peers = parsePeers(*raftPeers)
	cfg.Raft.LogLevel = *raftLog

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Info("Slidecast starting", "version", version)

	// Run the application
	if err := run(flag.Arg(0), cfg, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}

	logger.Info("Slidecast stopped")
}

func run(source string, cfg *config.Config, logger *slog.Logger) error {
	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	logger.Info("loading deck", "source", source)
	deck, err := parser.Load(ctx, source, parser.FormatAuto)
	if err != nil {
		return fmt.Errorf("failed to load deck: %w", err)
	}
	audio.Enrich(ctx, deck.Slides, logger)

	logger.Info("loaded deck",
		"title", deck.Title,
		"format", deck.Format,
		"slides", len(deck.Slides),
		"lines", deck.LineCount(),
	)

	a, err := newApp(deck, cfg, logger)
	if err != nil {
		return err
	}

	var manager *cluster.Manager
	if cfg.Raft.Enabled() {
		manager, err = cluster.NewManager(cluster.Config{
			RaftID:   cfg.Raft.ID,
			BindAddr: cfg.Raft.Bind,
			Peers:    cfg.Raft.Peers,
			LogLevel: cfg.Raft.LogLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create cluster manager: %w", err)
		}
		a.server.SetCluster(manager)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.rig.Clock.Run(ctx) })
	g.Go(func() error { return a.session.RunVideoTracker(ctx) })
	g.Go(func() error { return a.server.Start(ctx) })
	g.Go(func() error {
		o := a.session.Start(ctx)
		logger.Info("initial view prepared", "view", a.session.View(), "outcome", o)
		return nil
	})
	if manager != nil {
		g.Go(func() error { return a.runCluster(ctx, manager, cfg.Raft.PublishInterval) })
	}

	logger.Info("slidecast ready",
		"state", fmt.Sprintf("http://localhost:%d/state", cfg.Port),
		"chapters", fmt.Sprintf("http://localhost:%d/chapters.m3u8", cfg.Port),
		"health", fmt.Sprintf("http://localhost:%d/health", cfg.Port),
	)

	return g.Wait()
}

// app is one playback session with its simulated backends.
type app struct {
	index      *narration.Index
	rig        *sim.Rig
	session    *player.Session
	projection *highlight.Projection
	server     *server.Server
	logger     *slog.Logger
}

func newApp(deck *parser.Deck, cfg *config.Config, logger *slog.Logger) (*app, error) {
	mode, err := player.ParseViewMode(cfg.View)
	if err != nil {
		return nil, err
	}

	idx := narration.Build(deck.Slides, logger)
	if idx.SlideCount() == 0 {
		return nil, fmt.Errorf("deck %s has no slides", deck.Source)
	}

	rig := sim.NewRig(rigConfig(idx, cfg), logger)

	hl := highlight.NewBroadcaster(logger)
	proj := highlight.NewProjection(idx)
	hl.AddRenderer(proj)
	hl.OnChange(func(slide int, line *narration.Line) {
		if line != nil {
			logger.Debug("highlight", "slide", slide, "seq", line.Seq, "text", line.Text)
		}
	})

	session := player.New(timeline.New(idx, logger), hl, player.Backends{
		Scroller:       rig.Article,
		ArticleAudio:   rig.AudioHandles(),
		ArticleSlides:  rig.SlideSlideshows(),
		Slideshow:      rig.Slideshow,
		SlideshowAudio: rig.SharedAudio,
		Video:          rig.Video,
	}, playerOptions(cfg, mode), logger)
	rig.Connect(session)

	video := cfg.Video
	if video == "" {
		video = deck.Video
	}

	return &app{
		index:      idx,
		rig:        rig,
		session:    session,
		projection: proj,
		server:     server.New(session, proj, video, cfg.Port, logger),
		logger:     logger,
	}, nil
}

// runCluster publishes this node's position while it leads and follows the
// leader's otherwise.
func (a *app) runCluster(ctx context.Context, m *cluster.Manager, interval time.Duration) error {
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cluster: %w", err)
	}
	defer m.Shutdown()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := m.WaitForLeader(waitCtx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("no cluster leader elected: %w", err)
	}

	if m.IsLeader() && m.GetState().SlideCount == 0 {
		state := cluster.PresenterState{
			Position:   presenterPosition(a.session.State()),
			SlideCount: a.index.SlideCount(),
		}
		if err := m.Initialize(state); err != nil {
			a.logger.Warn("failed to initialize cluster state", "error", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.RunPublisher(ctx, interval, func() cluster.Position {
			return presenterPosition(a.session.State())
		})
	})
	f := &presenterFollower{session: a.session}
	g.Go(func() error {
		return m.Follow(ctx, interval, func(state cluster.PresenterState) {
			o := f.apply(ctx, state.Position)
			a.logger.Debug("followed presenter", "revision", state.Revision, "outcome", o)
		})
	})
	return g.Wait()
}

// presenterPosition reduces a session snapshot to the replicated position.
func presenterPosition(snap player.Snapshot) cluster.Position {
	pos := cluster.Position{
		View:      snap.View,
		Slide:     snap.Slide,
		Timestamp: snap.Timestamp,
		Playing:   snap.Playing,
	}
	if snap.Line != nil && snap.Line.Slide == snap.Slide {
		pos.Seq = snap.Line.Seq
	}
	return pos
}

// presenterFollower moves a follower session only when the presenter's slide
// or line changes. Revisions that only carry a new timestamp or play state
// leave local playback running.
type presenterFollower struct {
	session *player.Session
	last    cluster.Position
	applied bool
}

func (f *presenterFollower) apply(ctx context.Context, pos cluster.Position) player.Outcome {
	if f.applied && pos.Slide == f.last.Slide && pos.Seq == f.last.Seq {
		return player.OutcomeNoop
	}
	f.last, f.applied = pos, true
	return applyPresenter(ctx, f.session, pos)
}

// applyPresenter moves s to pos: the presenter's line when one is
// highlighted, else its slide. A line s already highlights is left playing.
func applyPresenter(ctx context.Context, s *player.Session, pos cluster.Position) player.Outcome {
	if pos.Seq > 0 {
		if line := s.Index().Line(pos.Slide, pos.Seq); line != nil {
			if s.Highlight().Current().Line == line {
				return player.OutcomeNoop
			}
			return s.ActivateLine(ctx, line)
		}
	}
	return s.NavigateToSlide(ctx, pos.Slide)
}

func playerOptions(cfg *config.Config, mode player.ViewMode) player.Options {
	opts := player.DefaultOptions()
	opts.InitialView = mode
	opts.ReadyTimeout = cfg.Playback.ReadyTimeout
	opts.InitTimeout = cfg.Playback.InitTimeout
	opts.VideoPollInterval = cfg.Playback.VideoPollInterval
	opts.AudioPollInterval = cfg.Playback.AudioPollInterval
	opts.TrackInterval = cfg.Playback.Tick
	return opts
}

func rigConfig(idx *narration.Index, cfg *config.Config) sim.RigConfig {
	return sim.RigConfig{
		Durations:        sim.Durations(idx),
		Fragments:        fragmentCounts(idx),
		SharedReadyDelay: cfg.Playback.SharedReadyDelay,
		Video: sim.VideoConfig{
			Duration:   idx.TotalDuration(),
			ReadyDelay: cfg.Playback.VideoReadyDelay,
		},
		Tick: cfg.Playback.Tick,
	}
}

// fragmentCounts gives every slide one fragment per line after the first.
func fragmentCounts(idx *narration.Index) map[int]int {
	out := make(map[int]int, idx.SlideCount())
	for _, s := range idx.Slides() {
		if n := len(s.Lines) - 1; n > 0 {
			out[s.Index] = n
		}
	}
	return out
}

func parsePeers(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
