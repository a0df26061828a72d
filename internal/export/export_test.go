package export

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Wad67/video-editor/internal/config"
	"github.com/Wad67/video-editor/internal/timeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func buildExportTimeline(t *testing.T) *timeline.Timeline {
	t.Helper()
	tl := timeline.New()
	assetID := tl.AddAsset(timeline.MediaAsset{
		Path: "clip.mp4", Kind: timeline.KindVideo, Duration: 2,
		Width: 4, Height: 2, FPS: 30, SampleRate: 44100, Channels: 2,
		HasVideo: true, HasAudio: true,
	})
	videoTrack := tl.AddTrack("V1", timeline.TrackVideo)
	audioTrack := tl.AddTrack("A1", timeline.TrackAudio)
	if _, err := tl.AddClip(videoTrack, assetID, 0, 0, 2); err != nil {
		t.Fatalf("add video clip: %v", err)
	}
	if _, err := tl.AddClip(audioTrack, assetID, 0, 0, 2); err != nil {
		t.Fatalf("add audio clip: %v", err)
	}
	return tl
}

func waitForState(t *testing.T, s *ExportSession, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if s.State() == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %v, got %v", want, s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExportSessionRunsToCompletion(t *testing.T) {
	tl := buildExportTimeline(t)
	backend := &fakeBackend{videoWidth: 4, videoHeight: 2}
	ve := &fakeVideoEncoder{}
	ae := &fakeAudioEncoder{}
	mx := &fakeMuxer{}

	s := New(backend, ve, ae, mx, discardLogger())
	settings := config.Default()
	settings.Export = &config.ExportSettings{
		OutputPath: "out.mp4", Width: 4, Height: 2, FPS: 10,
		AudioSampleRate: 44100, AudioChannels: 2, EndTime: -1,
	}

	if !s.Start(tl, *settings.Export) {
		t.Fatal("expected Start to return true")
	}
	waitForState(t, s, Completed, 5*time.Second)

	if !mx.opened || !mx.headerWritten || !mx.trailerWritten || !mx.closed {
		t.Fatalf("expected muxer to be opened/written/closed, got %+v", mx)
	}
	if ve.framesEncoded == 0 {
		t.Fatal("expected at least one video frame encoded")
	}
	if !ve.flushed || !ae.flushed {
		t.Fatal("expected both encoders flushed at end of export")
	}
	if s.FramesEncoded() != s.TotalFrames() {
		t.Fatalf("expected framesEncoded == totalFrames, got %d/%d", s.FramesEncoded(), s.TotalFrames())
	}
	if s.Progress() != 1.0 {
		t.Fatalf("expected progress 1.0 at completion, got %v", s.Progress())
	}
}

func TestExportSessionCancel(t *testing.T) {
	tl := buildExportTimeline(t)
	backend := &fakeBackend{videoWidth: 4, videoHeight: 2}
	ve := &fakeVideoEncoder{}
	ae := &fakeAudioEncoder{}
	mx := &fakeMuxer{}

	s := New(backend, ve, ae, mx, discardLogger())
	settings := config.ExportSettings{
		OutputPath: "out.mp4", Width: 4, Height: 2, FPS: 2,
		AudioSampleRate: 44100, AudioChannels: 2, EndTime: -1,
	}
	// A long duration so Cancel reliably lands mid-export.
	tl2 := timeline.New()
	assetID := tl2.AddAsset(timeline.MediaAsset{Path: "clip.mp4", Kind: timeline.KindVideo, Duration: 120, Width: 4, Height: 2, HasVideo: true})
	vt := tl2.AddTrack("V1", timeline.TrackVideo)
	tl2.AddClip(vt, assetID, 0, 0, 120)

	s.Start(tl2, settings)
	time.Sleep(20 * time.Millisecond)
	s.Cancel()
	s.Wait()

	if s.State() != Cancelled && s.State() != Completed {
		t.Fatalf("expected Cancelled (or a fast Completed), got %v", s.State())
	}
	_ = tl
}

func TestExportSessionFailsOnEmptyRange(t *testing.T) {
	tl := buildExportTimeline(t)
	backend := &fakeBackend{videoWidth: 4, videoHeight: 2}
	ve := &fakeVideoEncoder{}
	ae := &fakeAudioEncoder{}
	mx := &fakeMuxer{}

	s := New(backend, ve, ae, mx, discardLogger())
	settings := config.ExportSettings{
		OutputPath: "out.mp4", Width: 4, Height: 2, FPS: 10,
		AudioSampleRate: 44100, AudioChannels: 2,
		StartTime: 5, EndTime: 5,
	}

	s.Start(tl, settings)
	waitForState(t, s, Failed, 2*time.Second)

	if s.ErrorMessage() == "" {
		t.Fatal("expected a non-empty error message for an empty export range")
	}
}

func TestExportSessionRejectsConcurrentStart(t *testing.T) {
	tl := buildExportTimeline(t)
	backend := &fakeBackend{videoWidth: 4, videoHeight: 2}
	ve := &fakeVideoEncoder{}
	ae := &fakeAudioEncoder{}
	mx := &fakeMuxer{}

	s := New(backend, ve, ae, mx, discardLogger())
	settings := config.ExportSettings{
		OutputPath: "out.mp4", Width: 4, Height: 2, FPS: 1,
		AudioSampleRate: 44100, AudioChannels: 2, EndTime: -1,
	}

	s.Start(tl, settings)
	if s.Start(tl, settings) {
		t.Fatal("expected second Start while running to return false")
	}
	s.Wait()
}
