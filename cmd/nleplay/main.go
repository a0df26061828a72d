// Command nleplay is this engine's reference CLI: probe a media file,
// play a single-clip timeline headless (no GPU/compositor/audio device —
// those stay external collaborators), or prepare an offline export: the
// export subcommand loads its settings, probes the file and builds the
// timeline, then exits with an error because no encoder or muxer is
// linked into this binary. Merges
// cmd/oriond/main.go's flag-selected slog level and signal-driven
// graceful shutdown with MrJc01-cromedia/main.go's probe/cut-style
// subcommand dispatch on os.Args[1].
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/codec/ffmpeg"
	"github.com/Wad67/video-editor/internal/codec/gstreamer"
	"github.com/Wad67/video-editor/internal/config"
	"github.com/Wad67/video-editor/internal/playback"
	"github.com/Wad67/video-editor/internal/timeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "probe":
		runProbe(os.Args[2:])
	case "play":
		runPlay(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: nleplay <command> [args]")
	fmt.Println("Commands: probe, play, export")
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func backendFor(name string) (codec.Backend, error) {
	switch name {
	case "", "ffmpeg":
		return ffmpeg.New(), nil
	case "gstreamer":
		return gstreamer.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want ffmpeg or gstreamer)", name)
	}
}

func runProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	backendName := fs.String("backend", "ffmpeg", "demux/decode backend: ffmpeg or gstreamer")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: nleplay probe [-backend ffmpeg|gstreamer] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	backend, err := backendFor(*backendName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	result, err := backend.Probe(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probing %q: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("%s: duration=%.3fs\n", path, result.Duration)
	for _, s := range result.Streams {
		switch s.Params.Kind {
		case codec.StreamVideo:
			fmt.Printf("  stream %d: video %dx%d @ %d/%d fps\n", s.Index,
				s.Params.Width, s.Params.Height, s.Params.FrameRate.Num, s.Params.FrameRate.Den)
		case codec.StreamAudio:
			fmt.Printf("  stream %d: audio %dch @ %dHz\n", s.Index,
				s.Params.Channels, s.Params.SampleRate)
		}
	}
}

func runPlay(args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	backendName := fs.String("backend", "ffmpeg", "demux/decode backend: ffmpeg or gstreamer")
	configPath := fs.String("config", "", "path to an engine.yaml overriding the built-in tunables")
	debug := fs.Bool("debug", false, "enable debug logging")
	seconds := fs.Float64("seconds", 0, "stop after this many seconds of playback (0 = play to the end)")
	fs.Parse(args)

	logger := setupLogger(*debug)

	if fs.NArg() < 1 {
		fmt.Println("Usage: nleplay play [-backend ffmpeg|gstreamer] [-config engine.yaml] [-seconds N] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	engineCfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("loading engine config", "error", err)
			os.Exit(1)
		}
		engineCfg = *loaded
	}

	backend, err := backendFor(*backendName)
	if err != nil {
		logger.Error("selecting backend", "error", err)
		os.Exit(1)
	}

	probed, err := backend.Probe(path)
	if err != nil {
		logger.Error("probing file", "path", path, "error", err)
		os.Exit(1)
	}

	tl, err := singleClipTimeline(path, probed)
	if err != nil {
		logger.Error("building timeline", "error", err)
		os.Exit(1)
	}

	pb := playback.New(tl, backend, nil, playbackSampleRate, engineCfg.Playback)
	pb.SetStats(playback.NewStats(logger))
	pb.Play()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	duration := tl.TotalDuration()
	logger.Info("playing", "path", path, "duration", duration)

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			pb.Stop()
			return
		case <-ticker.C:
			pb.Update()
			if _, err := pb.PrepareFrame(); err != nil {
				logger.Error("preparing frame", "error", err)
				pb.Stop()
				return
			}
			now := pb.GetCurrentTime()
			if *seconds > 0 && now >= *seconds {
				logger.Info("reached requested stop time", "time", now)
				pb.Stop()
				return
			}
			if duration > 0 && now >= duration {
				logger.Info("reached end of timeline", "time", now)
				pb.Stop()
				return
			}
		}
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	backendName := fs.String("backend", "ffmpeg", "demux/decode backend: ffmpeg or gstreamer")
	configPath := fs.String("config", "", "path to an engine.yaml with an export: section")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Parse(args)

	logger := setupLogger(*debug)

	if fs.NArg() < 1 {
		fmt.Println("Usage: nleplay export [-backend ffmpeg|gstreamer] [-config engine.yaml] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	if *configPath == "" {
		logger.Error("export requires -config pointing at an engine.yaml with an export: section")
		os.Exit(1)
	}
	engineCfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading engine config", "error", err)
		os.Exit(1)
	}
	if engineCfg.Export == nil {
		logger.Error("engine config has no export: section")
		os.Exit(1)
	}

	backend, err := backendFor(*backendName)
	if err != nil {
		logger.Error("selecting backend", "error", err)
		os.Exit(1)
	}

	probed, err := backend.Probe(path)
	if err != nil {
		logger.Error("probing file", "path", path, "error", err)
		os.Exit(1)
	}

	tl, err := singleClipTimeline(path, probed)
	if err != nil {
		logger.Error("building timeline", "error", err)
		os.Exit(1)
	}
	logger.Info("input ready for export", "path", path, "duration", tl.TotalDuration())

	// This CLI ships no concrete export.VideoEncoder/AudioEncoder/Muxer:
	// those encoder backends are this module's one external-collaborator
	// boundary for export, same as the audio device is for playback. A
	// deployment constructs export.New with real implementations (e.g.
	// an FFmpeg-backed encoder) before calling Start.
	logger.Error("no encoder/muxer implementation is linked into this binary; " +
		"construct export.New(backend, videoEncoder, audioEncoder, muxer, logger) with real implementations to export")
	os.Exit(1)
}

const playbackSampleRate = 48000

// singleClipTimeline wraps one media file in a minimal timeline: a video
// track and/or an audio track (whichever the asset actually has), added
// up front so Timeline.ImportFile's own auto-clip-creation places the
// clip on them at timeline start, the same path a real editor's first
// import takes.
func singleClipTimeline(path string, probed codec.ProbeResult) (*timeline.Timeline, error) {
	tl := timeline.New()

	asset, err := assetFromProbe(path, probed)
	if err != nil {
		return nil, err
	}
	if asset.HasVideo {
		tl.AddTrack("V1", timeline.TrackVideo)
	}
	if asset.HasAudio {
		tl.AddTrack("A1", timeline.TrackAudio)
	}

	if _, err := tl.ImportFile(path, func(p string) (timeline.MediaAsset, error) {
		return assetFromProbe(p, probed)
	}); err != nil {
		return nil, err
	}
	return tl, nil
}

func assetFromProbe(path string, probed codec.ProbeResult) (timeline.MediaAsset, error) {
	asset := timeline.MediaAsset{Path: path, Kind: timeline.KindVideo, Duration: probed.Duration}
	for _, s := range probed.Streams {
		switch s.Params.Kind {
		case codec.StreamVideo:
			asset.HasVideo = true
			asset.Width = s.Params.Width
			asset.Height = s.Params.Height
			if s.Params.FrameRate.Den != 0 {
				asset.FPS = float64(s.Params.FrameRate.Num) / float64(s.Params.FrameRate.Den)
			}
		case codec.StreamAudio:
			asset.HasAudio = true
			asset.SampleRate = s.Params.SampleRate
			asset.Channels = s.Params.Channels
		}
	}
	if !asset.HasVideo && asset.HasAudio {
		asset.Kind = timeline.KindAudio
	}
	return asset, nil
}
