package timeline

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// defaultImageDuration is the timeline length given to an image clip,
// since a still image has no inherent duration the way a probed media
// file does.
const defaultImageDuration = 5.0

// isImageExtension reports whether path's extension is one this engine
// decodes through the standard library's image codecs rather than a
// codec.Backend.
func isImageExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tga":
		return true
	default:
		return false
	}
}

// Timeline owns every asset, track, and clip in one editable project. It is
// the model an editor UI mutates and the engine reads from; it does not
// decode or play anything itself. Grounded on
// original_source/src/timeline/Timeline.{h,cpp}'s unordered_map<id,T> +
// incrementing-counter id scheme, translated to Go maps. Unlike
// internal/clip.Player, which stamps each instance with a uuid.New()
// trace id for log correlation, timeline entities use dense uint32
// counters: tracks and clips need a stable, small, orderable id for
// display-order bookkeeping (trackOrder) that a random UUID doesn't
// provide for free, matching the original engine's own choice.
type Timeline struct {
	mu sync.RWMutex

	assets map[uint32]*MediaAsset
	tracks map[uint32]*Track
	clips  map[uint32]*Clip

	trackOrder []uint32

	nextAssetID uint32
	nextTrackID uint32
	nextClipID  uint32
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{
		assets: make(map[uint32]*MediaAsset),
		tracks: make(map[uint32]*Track),
		clips:  make(map[uint32]*Clip),
	}
}

// AddTrack appends a new, empty track of the given type and returns its id.
func (t *Timeline) AddTrack(name string, kind TrackType) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addTrackLocked(name, kind)
}

func (t *Timeline) addTrackLocked(name string, kind TrackType) uint32 {
	t.nextTrackID++
	id := t.nextTrackID

	track := &Track{
		ID:      id,
		Name:    name,
		Type:    kind,
		Visible: true,
		Volume:  1.0,
	}
	t.tracks[id] = track
	t.trackOrder = append(t.trackOrder, id)
	return id
}

// RemoveTrack deletes a track and every clip placed on it.
func (t *Timeline) RemoveTrack(trackID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	track, ok := t.tracks[trackID]
	if !ok {
		return fmt.Errorf("timeline: no track with id %d", trackID)
	}
	for _, clipID := range track.ClipIDs {
		delete(t.clips, clipID)
	}
	delete(t.tracks, trackID)

	for i, id := range t.trackOrder {
		if id == trackID {
			t.trackOrder = append(t.trackOrder[:i], t.trackOrder[i+1:]...)
			break
		}
	}
	return nil
}

// AddAsset registers a probed MediaAsset and returns its id. The caller
// is expected to have already populated every field except ID.
func (t *Timeline) AddAsset(asset MediaAsset) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextAssetID++
	asset.ID = t.nextAssetID
	a := asset
	t.assets[a.ID] = &a
	return a.ID
}

// Asset returns the asset with the given id, if any.
func (t *Timeline) Asset(assetID uint32) (*MediaAsset, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.assets[assetID]
	return a, ok
}

// Track returns the track with the given id, if any.
func (t *Timeline) Track(trackID uint32) (*Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[trackID]
	return tr, ok
}

// Clip returns the clip with the given id, if any.
func (t *Timeline) Clip(clipID uint32) (*Clip, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.clips[clipID]
	return c, ok
}

// Tracks returns every track in display order.
func (t *Timeline) Tracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Track, 0, len(t.trackOrder))
	for _, id := range t.trackOrder {
		out = append(out, t.tracks[id])
	}
	return out
}

// AddClip places a new clip of assetID on trackID at timelineStart,
// spanning [sourceIn, sourceOut) of the asset's own source timeline, and
// returns its id. The track's clip list is kept sorted by TimelineStart.
func (t *Timeline) AddClip(trackID, assetID uint32, timelineStart, sourceIn, sourceOut float64) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tracks[trackID]; !ok {
		return 0, fmt.Errorf("timeline: no track with id %d", trackID)
	}
	if _, ok := t.assets[assetID]; !ok {
		return 0, fmt.Errorf("timeline: no asset with id %d", assetID)
	}
	if sourceOut <= sourceIn {
		return 0, fmt.Errorf("timeline: clip sourceOut (%.3f) must be after sourceIn (%.3f)", sourceOut, sourceIn)
	}
	return t.addClipLocked(trackID, assetID, timelineStart, sourceIn, sourceOut), nil
}

// addClipLocked is AddClip's validated core, callable by other Timeline
// methods that already hold t.mu.
func (t *Timeline) addClipLocked(trackID, assetID uint32, timelineStart, sourceIn, sourceOut float64) uint32 {
	t.nextClipID++
	id := t.nextClipID
	t.clips[id] = &Clip{
		ID:            id,
		AssetID:       assetID,
		TrackID:       trackID,
		TimelineStart: timelineStart,
		SourceIn:      sourceIn,
		SourceOut:     sourceOut,
	}

	track := t.tracks[trackID]
	track.ClipIDs = append(track.ClipIDs, id)
	t.sortTrackClipsLocked(track)
	return id
}

// RemoveClip deletes a clip from its track.
func (t *Timeline) RemoveClip(clipID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	clip, ok := t.clips[clipID]
	if !ok {
		return fmt.Errorf("timeline: no clip with id %d", clipID)
	}
	track := t.tracks[clip.TrackID]
	if track != nil {
		for i, id := range track.ClipIDs {
			if id == clipID {
				track.ClipIDs = append(track.ClipIDs[:i], track.ClipIDs[i+1:]...)
				break
			}
		}
	}
	delete(t.clips, clipID)
	return nil
}

// MoveClip relocates a clip to a new track and/or timeline start.
func (t *Timeline) MoveClip(clipID, newTrackID uint32, newTimelineStart float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	clip, ok := t.clips[clipID]
	if !ok {
		return fmt.Errorf("timeline: no clip with id %d", clipID)
	}
	newTrack, ok := t.tracks[newTrackID]
	if !ok {
		return fmt.Errorf("timeline: no track with id %d", newTrackID)
	}

	if oldTrack := t.tracks[clip.TrackID]; oldTrack != nil && oldTrack.ID != newTrackID {
		for i, id := range oldTrack.ClipIDs {
			if id == clipID {
				oldTrack.ClipIDs = append(oldTrack.ClipIDs[:i], oldTrack.ClipIDs[i+1:]...)
				break
			}
		}
		newTrack.ClipIDs = append(newTrack.ClipIDs, clipID)
	}

	clip.TrackID = newTrackID
	clip.TimelineStart = newTimelineStart
	t.sortTrackClipsLocked(newTrack)
	return nil
}

// SwapTracks exchanges the display order of two tracks.
func (t *Timeline) SwapTracks(trackA, trackB uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ia, ib := -1, -1
	for i, id := range t.trackOrder {
		if id == trackA {
			ia = i
		}
		if id == trackB {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return fmt.Errorf("timeline: one or both track ids not found")
	}
	t.trackOrder[ia], t.trackOrder[ib] = t.trackOrder[ib], t.trackOrder[ia]
	return nil
}

func (t *Timeline) sortTrackClipsLocked(track *Track) {
	sort.Slice(track.ClipIDs, func(i, j int) bool {
		return t.clips[track.ClipIDs[i]].TimelineStart < t.clips[track.ClipIDs[j]].TimelineStart
	})
}

// FindTrackByType returns the first track of the given type in display
// order, if any.
func (t *Timeline) FindTrackByType(kind TrackType) (*Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findTrackByTypeLocked(kind)
}

func (t *Timeline) findTrackByTypeLocked(kind TrackType) (*Track, bool) {
	for _, id := range t.trackOrder {
		if tr := t.tracks[id]; tr.Type == kind {
			return tr, true
		}
	}
	return nil, false
}

// ActiveClipOnTrack returns the clip on trackID containing timelineTime,
// if any.
func (t *Timeline) ActiveClipOnTrack(trackID uint32, timelineTime float64) (*Clip, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	track, ok := t.tracks[trackID]
	if !ok {
		return nil, false
	}
	for _, id := range track.ClipIDs {
		c := t.clips[id]
		if c.ContainsTime(timelineTime) {
			return c, true
		}
	}
	return nil, false
}

// ActiveClips returns, in track display order, the first clip on each track
// that contains timelineTime; a track contributes at most one clip. Hidden
// non-audio tracks and muted audio tracks are skipped.
func (t *Timeline) ActiveClips(timelineTime float64) []*Clip {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Clip
	for _, trackID := range t.trackOrder {
		track := t.tracks[trackID]
		if !track.Visible && track.Type != TrackAudio {
			continue
		}
		if track.Muted && track.Type == TrackAudio {
			continue
		}
		for _, id := range track.ClipIDs {
			c := t.clips[id]
			if c.ContainsTime(timelineTime) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// TotalDuration returns the timeline end time of the latest-ending clip
// across every track, or 0 if the timeline is empty.
func (t *Timeline) TotalDuration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalDurationLocked()
}

func (t *Timeline) totalDurationLocked() float64 {
	var max float64
	for _, c := range t.clips {
		if end := c.TimelineEnd(); end > max {
			max = end
		}
	}
	return max
}

// ImportFile imports path into the timeline and returns the resulting
// asset's id. Recognized image extensions (.png/.jpg/.jpeg/.bmp/.tga)
// are routed to ImportImage; everything else is probed with probe
// (injected so this package doesn't import internal/codec directly —
// the caller, typically the cmd/ entrypoint, already holds an open
// codec.Backend) and registered as a video/audio MediaAsset. Either way,
// importing auto-creates a clip placed at the current TotalDuration: a
// video clip on the first video track if one exists and the asset has
// video, an audio clip on the first audio track if one exists and the
// asset has audio. Unlike images, import never creates a video or audio
// track on the caller's behalf — there is nothing for such a clip to be
// sized or laid out against until an editor has added one.
func (t *Timeline) ImportFile(path string, probe func(path string) (MediaAsset, error)) (uint32, error) {
	if isImageExtension(path) {
		return t.ImportImage(path)
	}

	asset, err := probe(path)
	if err != nil {
		return 0, fmt.Errorf("timeline: importing %q: %w", path, err)
	}
	assetID := t.AddAsset(asset)

	t.mu.Lock()
	placeAt := t.totalDurationLocked()
	a := t.assets[assetID]
	if a.HasVideo {
		if track, ok := t.findTrackByTypeLocked(TrackVideo); ok {
			t.addClipLocked(track.ID, assetID, placeAt, 0, a.Duration)
		}
	}
	if a.HasAudio {
		if track, ok := t.findTrackByTypeLocked(TrackAudio); ok {
			t.addClipLocked(track.ID, assetID, placeAt, 0, a.Duration)
		}
	}
	t.mu.Unlock()

	return assetID, nil
}

// ImportImage decodes a still image with the standard library's image
// package, registers it as a KindImage MediaAsset, and places a clip for
// it on the first Image track — creating one named "Image 1" if the
// timeline doesn't have one yet — at the current TotalDuration, with the
// default 5-second image duration. Images are the one media type this
// engine decodes with the standard library rather than a codec.Backend:
// image/png and image/jpeg already give Go a complete, correct
// still-image decoder, and neither ffmpeg nor gstreamer bindings buy
// anything extra for formats the standard library already decodes
// correctly (decoding a .bmp/.tga surfaces as an OpenFailure here, since
// those aren't registered image/... codecs).
func (t *Timeline) ImportImage(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("timeline: opening image %q: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("timeline: decoding image %q: %w", path, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rgba := make([]byte, width*height*4)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			rgba[idx+0] = byte(r >> 8)
			rgba[idx+1] = byte(g >> 8)
			rgba[idx+2] = byte(b >> 8)
			rgba[idx+3] = byte(a >> 8)
			idx += 4
		}
	}

	asset := MediaAsset{
		Path:       path,
		Kind:       KindImage,
		Width:      width,
		Height:     height,
		Duration:   defaultImageDuration,
		ImageBytes: rgba,
	}
	assetID := t.AddAsset(asset)

	t.mu.Lock()
	track, ok := t.findTrackByTypeLocked(TrackImage)
	if !ok {
		trackID := t.addTrackLocked("Image 1", TrackImage)
		track = t.tracks[trackID]
	}
	placeAt := t.totalDurationLocked()
	t.addClipLocked(track.ID, assetID, placeAt, 0, defaultImageDuration)
	t.mu.Unlock()

	return assetID, nil
}
