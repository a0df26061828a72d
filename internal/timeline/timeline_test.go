package timeline

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
)

func writeTestPNG(path string, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func newTestTimeline(t *testing.T) (*Timeline, uint32, uint32) {
	t.Helper()
	tl := New()
	assetID := tl.AddAsset(MediaAsset{Path: "a.mp4", Kind: KindVideo, Duration: 30, Width: 1920, Height: 1080, FPS: 30})
	trackID := tl.AddTrack("V1", TrackVideo)
	return tl, assetID, trackID
}

func TestAddClipOrdersByTimelineStart(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)

	id2, err := tl.AddClip(trackID, assetID, 10, 0, 5)
	if err != nil {
		t.Fatalf("add clip 2: %v", err)
	}
	id1, err := tl.AddClip(trackID, assetID, 0, 0, 5)
	if err != nil {
		t.Fatalf("add clip 1: %v", err)
	}

	track, ok := tl.Track(trackID)
	if !ok {
		t.Fatal("track not found")
	}
	if len(track.ClipIDs) != 2 || track.ClipIDs[0] != id1 || track.ClipIDs[1] != id2 {
		t.Fatalf("expected clips ordered [%d %d], got %v", id1, id2, track.ClipIDs)
	}
}

func TestAddClipRejectsUnknownTrackOrAsset(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)

	if _, err := tl.AddClip(999, assetID, 0, 0, 5); err == nil {
		t.Fatal("expected error for unknown track")
	}
	if _, err := tl.AddClip(trackID, 999, 0, 0, 5); err == nil {
		t.Fatal("expected error for unknown asset")
	}
	if _, err := tl.AddClip(trackID, assetID, 0, 5, 5); err == nil {
		t.Fatal("expected error when sourceOut <= sourceIn")
	}
}

func TestActiveClipOnTrack(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)
	clipID, err := tl.AddClip(trackID, assetID, 5, 0, 10)
	if err != nil {
		t.Fatalf("add clip: %v", err)
	}

	if c, ok := tl.ActiveClipOnTrack(trackID, 4.9); ok {
		t.Fatalf("expected no active clip before start, got %v", c)
	}
	c, ok := tl.ActiveClipOnTrack(trackID, 5.0)
	if !ok || c.ID != clipID {
		t.Fatalf("expected clip %d active at start boundary, got %v", clipID, c)
	}
	if _, ok := tl.ActiveClipOnTrack(trackID, 15.0); ok {
		t.Fatal("expected no active clip at/after end (half-open interval)")
	}
}

func TestMoveClipRetagsTrackAndResorts(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)
	otherTrackID := tl.AddTrack("V2", TrackVideo)

	clipID, err := tl.AddClip(trackID, assetID, 0, 0, 5)
	if err != nil {
		t.Fatalf("add clip: %v", err)
	}

	if err := tl.MoveClip(clipID, otherTrackID, 20); err != nil {
		t.Fatalf("move clip: %v", err)
	}

	origTrack, _ := tl.Track(trackID)
	if len(origTrack.ClipIDs) != 0 {
		t.Fatalf("expected original track to be empty, got %v", origTrack.ClipIDs)
	}
	newTrack, _ := tl.Track(otherTrackID)
	if len(newTrack.ClipIDs) != 1 || newTrack.ClipIDs[0] != clipID {
		t.Fatalf("expected clip moved onto new track, got %v", newTrack.ClipIDs)
	}

	clip, _ := tl.Clip(clipID)
	if clip.TimelineStart != 20 {
		t.Fatalf("expected timeline start updated to 20, got %v", clip.TimelineStart)
	}
}

func TestRemoveTrackCascadesToClips(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)
	clipID, _ := tl.AddClip(trackID, assetID, 0, 0, 5)

	if err := tl.RemoveTrack(trackID); err != nil {
		t.Fatalf("remove track: %v", err)
	}
	if _, ok := tl.Clip(clipID); ok {
		t.Fatal("expected clip to be removed along with its track")
	}
	if _, ok := tl.Track(trackID); ok {
		t.Fatal("expected track to be gone")
	}
}

func TestSwapTracksChangesDisplayOrder(t *testing.T) {
	tl := New()
	a := tl.AddTrack("A", TrackVideo)
	b := tl.AddTrack("B", TrackVideo)

	tracks := tl.Tracks()
	if tracks[0].ID != a || tracks[1].ID != b {
		t.Fatalf("expected initial order [A B], got %v", tracks)
	}

	if err := tl.SwapTracks(a, b); err != nil {
		t.Fatalf("swap: %v", err)
	}
	tracks = tl.Tracks()
	if tracks[0].ID != b || tracks[1].ID != a {
		t.Fatalf("expected swapped order [B A], got %v", tracks)
	}
}

func TestTotalDuration(t *testing.T) {
	tl, assetID, trackID := newTestTimeline(t)
	if tl.TotalDuration() != 0 {
		t.Fatal("expected zero duration for empty timeline")
	}

	tl.AddClip(trackID, assetID, 0, 0, 5)
	tl.AddClip(trackID, assetID, 20, 0, 3)

	if got := tl.TotalDuration(); got != 23 {
		t.Fatalf("expected total duration 23, got %v", got)
	}
}

func TestActiveClipsSkipsMutedAudioAndHiddenVideo(t *testing.T) {
	tl := New()
	assetID := tl.AddAsset(MediaAsset{Path: "a.mp4", Kind: KindVideo, Duration: 30})

	videoTrack := tl.AddTrack("V1", TrackVideo)
	audioTrack := tl.AddTrack("A1", TrackAudio)

	tl.AddClip(videoTrack, assetID, 0, 0, 10)
	tl.AddClip(audioTrack, assetID, 0, 0, 10)

	if got := len(tl.ActiveClips(1.0)); got != 2 {
		t.Fatalf("expected both clips active, got %d", got)
	}

	vt, _ := tl.Track(videoTrack)
	vt.Visible = false
	at, _ := tl.Track(audioTrack)
	at.Muted = true

	if got := len(tl.ActiveClips(1.0)); got != 0 {
		t.Fatalf("expected zero active clips once hidden/muted, got %d", got)
	}
}

func TestImportFileAutoCreatesClipsOnExistingTracks(t *testing.T) {
	tl := New()
	videoTrack := tl.AddTrack("V1", TrackVideo)
	audioTrack := tl.AddTrack("A1", TrackAudio)

	assetID, err := tl.ImportFile("clip.mp4", func(path string) (MediaAsset, error) {
		return MediaAsset{Path: path, Kind: KindVideo, Duration: 8, HasVideo: true, HasAudio: true}, nil
	})
	if err != nil {
		t.Fatalf("import file: %v", err)
	}

	vt, _ := tl.Track(videoTrack)
	if len(vt.ClipIDs) != 1 {
		t.Fatalf("expected one auto-created clip on the video track, got %v", vt.ClipIDs)
	}
	at, _ := tl.Track(audioTrack)
	if len(at.ClipIDs) != 1 {
		t.Fatalf("expected one auto-created clip on the audio track, got %v", at.ClipIDs)
	}

	clip, _ := tl.Clip(vt.ClipIDs[0])
	if clip.AssetID != assetID || clip.TimelineStart != 0 || clip.SourceOut != 8 {
		t.Fatalf("unexpected auto-created clip: %+v", clip)
	}

	// A second import lands after the first, at the new TotalDuration.
	if _, err := tl.ImportFile("clip2.mp4", func(path string) (MediaAsset, error) {
		return MediaAsset{Path: path, Kind: KindVideo, Duration: 3, HasVideo: true}, nil
	}); err != nil {
		t.Fatalf("second import: %v", err)
	}
	vt, _ = tl.Track(videoTrack)
	if len(vt.ClipIDs) != 2 {
		t.Fatalf("expected second clip appended to the same video track, got %v", vt.ClipIDs)
	}
	second, _ := tl.Clip(vt.ClipIDs[1])
	if second.TimelineStart != 8 {
		t.Fatalf("expected second clip placed at TotalDuration 8, got %v", second.TimelineStart)
	}
}

func TestImportFileSkipsClipCreationWithoutMatchingTrack(t *testing.T) {
	tl := New()

	if _, err := tl.ImportFile("clip.mp4", func(path string) (MediaAsset, error) {
		return MediaAsset{Path: path, Kind: KindVideo, Duration: 8, HasVideo: true, HasAudio: true}, nil
	}); err != nil {
		t.Fatalf("import file: %v", err)
	}

	if got := tl.TotalDuration(); got != 0 {
		t.Fatalf("expected no clip created without a matching track, got duration %v", got)
	}
}

func TestImportFileDispatchesImageExtensionsToImportImage(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/frame.png"
	if err := writeTestPNG(path, 4, 2); err != nil {
		t.Fatalf("writing test png: %v", err)
	}

	tl := New()
	assetID, err := tl.ImportFile(path, func(string) (MediaAsset, error) {
		t.Fatal("probe should not be called for an image extension")
		return MediaAsset{}, nil
	})
	if err != nil {
		t.Fatalf("import file: %v", err)
	}

	asset, ok := tl.Asset(assetID)
	if !ok || asset.Kind != KindImage {
		t.Fatalf("expected a KindImage asset, got %+v", asset)
	}

	track, ok := tl.FindTrackByType(TrackImage)
	if !ok || len(track.ClipIDs) != 1 {
		t.Fatalf("expected an auto-created Image track with one clip, got %+v", track)
	}
}

func TestImportImageCreatesTrackOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/frame.png"
	if err := writeTestPNG(path, 2, 2); err != nil {
		t.Fatalf("writing test png: %v", err)
	}

	tl := New()
	if _, err := tl.ImportImage(path); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := tl.ImportImage(path); err != nil {
		t.Fatalf("second import: %v", err)
	}

	tracks := tl.Tracks()
	imageTracks := 0
	for _, tr := range tracks {
		if tr.Type == TrackImage {
			imageTracks++
		}
	}
	if imageTracks != 1 {
		t.Fatalf("expected exactly one Image track across two imports, got %d", imageTracks)
	}

	track, _ := tl.FindTrackByType(TrackImage)
	if len(track.ClipIDs) != 2 {
		t.Fatalf("expected two clips on the shared Image track, got %v", track.ClipIDs)
	}
	second, _ := tl.Clip(track.ClipIDs[1])
	if second.TimelineStart != defaultImageDuration {
		t.Fatalf("expected second image clip placed at %v, got %v", defaultImageDuration, second.TimelineStart)
	}
}

func TestClipDurationAndSourceMapping(t *testing.T) {
	c := Clip{TimelineStart: 10, SourceIn: 2, SourceOut: 7}
	if c.Duration() != 5 {
		t.Fatalf("expected duration 5, got %v", c.Duration())
	}
	if got := c.ToSourceTime(12); got != 4 {
		t.Fatalf("expected source time 4 at timeline time 12, got %v", got)
	}
	if c.TimelineEnd() != 15 {
		t.Fatalf("expected timeline end 15, got %v", c.TimelineEnd())
	}
}
