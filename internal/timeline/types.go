// Package timeline owns the editable data model this engine plays back:
// MediaAsset, Track, Clip, and Timeline itself, plus the mutation API an
// external editor UI drives. Grounded on
// original_source/src/timeline/{Timeline,MediaAsset}.{h,cpp} for the
// struct shapes and query/mutation semantics, translated from
// unordered_map<id,T> + explicit id counters to Go maps with the same
// counter discipline. Unlike internal/clip.Player's per-instance
// uuid.New() trace id, timeline entities use plain integer ids: a
// timeline clip needs a stable, densely-packed id for array-like track
// ordering, which a UUID doesn't give for free.
package timeline

// MediaKind is what kind of source a MediaAsset wraps.
type MediaKind int

const (
	KindVideo MediaKind = iota
	KindAudio
	KindImage
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// MediaAsset is a handle to a source file with cached metadata (spec
// section 3). Video/audio assets are probed only; image assets are
// pre-decoded to RGBA at import.
type MediaAsset struct {
	ID         uint32
	Path       string
	Kind       MediaKind
	Duration   float64
	Width      int
	Height     int
	FPS        float64
	SampleRate int
	Channels   int
	HasVideo   bool
	HasAudio   bool

	// ImageBytes holds pre-decoded RGBA pixels for Kind == KindImage;
	// nil otherwise.
	ImageBytes []byte
}

// TrackType is what kind of clips a Track may hold.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackImage
)

// Track is an ordered lane of clips.
type Track struct {
	ID      uint32
	Name    string
	Type    TrackType
	ClipIDs []uint32 // ordered by TimelineStart

	Muted   bool
	Visible bool
	Volume  float32 // 0.0-1.0, audio tracks
}

// Clip is a segment of a MediaAsset placed on the timeline.
type Clip struct {
	ID         uint32
	AssetID    uint32
	TrackID    uint32

	TimelineStart float64
	SourceIn      float64
	SourceOut     float64
}

// Duration is the clip's length on the timeline.
func (c Clip) Duration() float64 { return c.SourceOut - c.SourceIn }

// ToSourceTime maps a timeline time within this clip to a source time.
func (c Clip) ToSourceTime(timelineTime float64) float64 {
	return (timelineTime - c.TimelineStart) + c.SourceIn
}

// ContainsTime reports whether timelineTime falls within this clip
// (half-open: [start, end)).
func (c Clip) ContainsTime(timelineTime float64) bool {
	return timelineTime >= c.TimelineStart && timelineTime < c.TimelineStart+c.Duration()
}

// TimelineEnd is the timeline time this clip's last frame ends at.
func (c Clip) TimelineEnd() float64 { return c.TimelineStart + c.Duration() }
