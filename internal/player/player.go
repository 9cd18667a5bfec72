// Package player models the playback state published by the host player.
// The host owns the values; this package only fixes their schema and offers
// an in-memory State that hosts can drive.
package player

// Field names a single player status property. The string value is the key
// used on the wire, both in JSON bodies and as the SSE event name.
type Field string

const (
	FieldStatus        Field = "status"
	FieldName          Field = "name"
	FieldSinger        Field = "singer"
	FieldAlbumName     Field = "albumName"
	FieldDuration      Field = "duration"
	FieldProgress      Field = "progress"
	FieldPicURL        Field = "picUrl"
	FieldPlaybackRate  Field = "playbackRate"
	FieldLyricLineText Field = "lyricLineText"
	FieldLyric         Field = "lyric"
)

// Fields lists every status field in wire order.
var Fields = []Field{
	FieldStatus,
	FieldName,
	FieldSinger,
	FieldAlbumName,
	FieldDuration,
	FieldProgress,
	FieldPicURL,
	FieldPlaybackRate,
	FieldLyricLineText,
	FieldLyric,
}

// Status is a full snapshot of the player.
type Status struct {
	Status        bool    `json:"status"`
	Name          string  `json:"name"`
	Singer        string  `json:"singer"`
	AlbumName     string  `json:"albumName"`
	Duration      float64 `json:"duration"`
	Progress      float64 `json:"progress"`
	PicURL        string  `json:"picUrl"`
	PlaybackRate  float64 `json:"playbackRate"`
	LyricLineText string  `json:"lyricLineText"`
	Lyric         string  `json:"lyric"`
}

// Value returns the value of f, or nil for an unknown field.
func (s Status) Value(f Field) any {
	switch f {
	case FieldStatus:
		return s.Status
	case FieldName:
		return s.Name
	case FieldSinger:
		return s.Singer
	case FieldAlbumName:
		return s.AlbumName
	case FieldDuration:
		return s.Duration
	case FieldProgress:
		return s.Progress
	case FieldPicURL:
		return s.PicURL
	case FieldPlaybackRate:
		return s.PlaybackRate
	case FieldLyricLineText:
		return s.LyricLineText
	case FieldLyric:
		return s.Lyric
	}
	return nil
}

// Changes returns every field of the snapshot as a Delta, in wire order.
func (s Status) Changes() Delta {
	d := make(Delta, 0, len(Fields))
	for _, f := range Fields {
		d = append(d, Change{Field: f, Value: s.Value(f)})
	}
	return d
}

// Change carries the new value of one field.
type Change struct {
	Field Field
	Value any
}

// Delta is the ordered set of fields that changed since the last notification.
type Delta []Change

// Source is the host side of the server: it supplies the current snapshot on
// demand and pushes deltas to subscribed listeners.
type Source interface {
	Snapshot() Status
	// Subscribe registers fn for every future delta. The returned function
	// removes the registration and is safe to call more than once.
	Subscribe(fn func(Delta)) (unsubscribe func())
}
