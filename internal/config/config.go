// Package config loads the YAML-configurable tunables this engine's
// design notes leave implementation-owned: activation lookahead, the
// post-seek clock-lock tolerance/timeout, the pre-roll discard slack, and
// queue capacities, plus the offline export settings. Grounded on
// References/orion-prototipe/internal/config/{config,validator}.go's
// Load/Validate pair and its style of filling in defaults during
// validation rather than failing on an absent optional field.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the single YAML document describing both the playback
// engine's tunables and (optionally) one export job.
type EngineConfig struct {
	Playback PlaybackConfig `yaml:"playback"`
	Queues   QueueConfig    `yaml:"queues"`
	Export   *ExportSettings `yaml:"export,omitempty"`
}

// PlaybackConfig holds the timing tolerances TimelinePlayback and the
// mixer use. Load fills zero values in with the engine's defaults before
// calling Validate; Validate itself only rejects invalid values.
type PlaybackConfig struct {
	// ActivationLookaheadSeconds is how far past the current playhead a
	// clip is opened before its timeline start is reached.
	ActivationLookaheadSeconds float64 `yaml:"activation_lookahead_seconds"`
	// ClockForwardToleranceSeconds is SetIfForward's tolerance: how far
	// behind the current clock a new PTS may be and still be accepted.
	ClockForwardToleranceSeconds float64 `yaml:"clock_forward_tolerance_seconds"`
	// SeekLockTimeoutMillis auto-releases a post-seek clock lock even if
	// no frame near the seek target ever arrives.
	SeekLockTimeoutMillis int `yaml:"seek_lock_timeout_millis"`
	// SeekAcceptToleranceSeconds is how far behind the seek target a
	// post-seek audio frame may be and still be accepted as "arrived".
	SeekAcceptToleranceSeconds float64 `yaml:"seek_accept_tolerance_seconds"`
	// PrerollDiscardSlackSeconds is how far before a clip's sourceIn a
	// frame may be and still be played; frames earlier than that are
	// discarded as seek pre-roll.
	PrerollDiscardSlackSeconds float64 `yaml:"preroll_discard_slack_seconds"`
	// VideoFrameSkipToleranceFactor/VideoFrameHoldToleranceFactor scale
	// GetVideoFrameAtTime's asymmetric tolerance window, in units of
	// frame duration.
	VideoFrameSkipToleranceFactor float64 `yaml:"video_frame_skip_tolerance_factor"`
	VideoFrameHoldToleranceFactor float64 `yaml:"video_frame_hold_tolerance_factor"`
}

// QueueConfig holds the bounded mailbox capacities.
type QueueConfig struct {
	PacketCapacity     int `yaml:"packet_capacity"`
	VideoFrameCapacity int `yaml:"video_frame_capacity"`
	AudioFrameCapacity int `yaml:"audio_frame_capacity"`
}

// VideoCodecChoice names an export encoder's target codec.
type VideoCodecChoice string

const (
	VideoCodecH264Software VideoCodecChoice = "h264_software"
	VideoCodecH265Software VideoCodecChoice = "h265_software"
	VideoCodecH264VAAPI    VideoCodecChoice = "h264_vaapi"
)

// ExportSettings configures one offline ExportSession run. Grounded on
// original_source/src/export/ExportSettings.h.
type ExportSettings struct {
	OutputPath string `yaml:"output_path"`

	Width        int              `yaml:"width"`
	Height       int              `yaml:"height"`
	FPS          float64          `yaml:"fps"`
	VideoBitrate int              `yaml:"video_bitrate"`
	VideoCodec   VideoCodecChoice `yaml:"video_codec"`
	CRF          int              `yaml:"crf"`

	AudioSampleRate int `yaml:"audio_sample_rate"`
	AudioChannels   int `yaml:"audio_channels"`
	AudioBitrate    int `yaml:"audio_bitrate"`

	// StartTime/EndTime bound the exported range; EndTime < 0 means
	// "through the end of the timeline".
	StartTime float64 `yaml:"start_time"`
	EndTime   float64 `yaml:"end_time"`
}

// Default returns the engine's built-in tunables, matching the values
// named in this engine's design notes and the original source's
// constants.
func Default() EngineConfig {
	return EngineConfig{
		Playback: PlaybackConfig{
			ActivationLookaheadSeconds:    1.0,
			ClockForwardToleranceSeconds:  0.1,
			SeekLockTimeoutMillis:         1000,
			SeekAcceptToleranceSeconds:    3.0,
			PrerollDiscardSlackSeconds:    0.05,
			VideoFrameSkipToleranceFactor: 2.0,
			VideoFrameHoldToleranceFactor: 0.5,
		},
		Queues: QueueConfig{
			PacketCapacity:     256,
			VideoFrameCapacity: 16,
			AudioFrameCapacity: 32,
		},
	}
}

// Load reads and parses a YAML configuration file, filling in any
// zero-valued tunable with the engine default before validating.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration in %q: %w", path, err)
	}
	return &cfg, nil
}

// applyDefaults fills in any tunable the YAML document left at its zero
// value, the same way validator.go defaults cfg.Stream.BufferFrames when
// unset rather than rejecting the document.
func applyDefaults(cfg *EngineConfig) {
	d := Default()
	p := &cfg.Playback
	if p.ActivationLookaheadSeconds == 0 {
		p.ActivationLookaheadSeconds = d.Playback.ActivationLookaheadSeconds
	}
	if p.ClockForwardToleranceSeconds == 0 {
		p.ClockForwardToleranceSeconds = d.Playback.ClockForwardToleranceSeconds
	}
	if p.SeekLockTimeoutMillis == 0 {
		p.SeekLockTimeoutMillis = d.Playback.SeekLockTimeoutMillis
	}
	if p.SeekAcceptToleranceSeconds == 0 {
		p.SeekAcceptToleranceSeconds = d.Playback.SeekAcceptToleranceSeconds
	}
	if p.PrerollDiscardSlackSeconds == 0 {
		p.PrerollDiscardSlackSeconds = d.Playback.PrerollDiscardSlackSeconds
	}
	if p.VideoFrameSkipToleranceFactor == 0 {
		p.VideoFrameSkipToleranceFactor = d.Playback.VideoFrameSkipToleranceFactor
	}
	if p.VideoFrameHoldToleranceFactor == 0 {
		p.VideoFrameHoldToleranceFactor = d.Playback.VideoFrameHoldToleranceFactor
	}

	q := &cfg.Queues
	if q.PacketCapacity == 0 {
		q.PacketCapacity = d.Queues.PacketCapacity
	}
	if q.VideoFrameCapacity == 0 {
		q.VideoFrameCapacity = d.Queues.VideoFrameCapacity
	}
	if q.AudioFrameCapacity == 0 {
		q.AudioFrameCapacity = d.Queues.AudioFrameCapacity
	}

	if cfg.Export != nil {
		e := cfg.Export
		if e.OutputPath == "" {
			e.OutputPath = "output.mp4"
		}
		if e.Width == 0 {
			e.Width = 1920
		}
		if e.Height == 0 {
			e.Height = 1080
		}
		if e.FPS == 0 {
			e.FPS = 30.0
		}
		if e.VideoBitrate == 0 {
			e.VideoBitrate = 8_000_000
		}
		if e.VideoCodec == "" {
			e.VideoCodec = VideoCodecH264Software
		}
		if e.CRF == 0 {
			e.CRF = 23
		}
		if e.AudioSampleRate == 0 {
			e.AudioSampleRate = 48000
		}
		if e.AudioChannels == 0 {
			e.AudioChannels = 2
		}
		if e.AudioBitrate == 0 {
			e.AudioBitrate = 192_000
		}
		if e.EndTime == 0 {
			e.EndTime = -1
		}
	}
}

// Validate rejects configurations that would put the engine in an
// inconsistent state (negative durations, zero-capacity queues).
func Validate(cfg *EngineConfig) error {
	p := cfg.Playback
	if p.ActivationLookaheadSeconds <= 0 {
		return fmt.Errorf("playback.activation_lookahead_seconds must be > 0")
	}
	if p.SeekLockTimeoutMillis <= 0 {
		return fmt.Errorf("playback.seek_lock_timeout_millis must be > 0")
	}

	q := cfg.Queues
	if q.PacketCapacity <= 0 {
		return fmt.Errorf("queues.packet_capacity must be > 0")
	}
	if q.VideoFrameCapacity <= 0 {
		return fmt.Errorf("queues.video_frame_capacity must be > 0")
	}
	if q.AudioFrameCapacity <= 0 {
		return fmt.Errorf("queues.audio_frame_capacity must be > 0")
	}

	if e := cfg.Export; e != nil {
		if e.OutputPath == "" {
			return fmt.Errorf("export.output_path is required")
		}
		if e.Width <= 0 || e.Height <= 0 {
			return fmt.Errorf("export.width and export.height must be > 0")
		}
		if e.FPS <= 0 {
			return fmt.Errorf("export.fps must be > 0")
		}
		if e.EndTime >= 0 && e.EndTime <= e.StartTime {
			return fmt.Errorf("export.end_time must be after export.start_time")
		}
	}

	return nil
}
