package models

import "github.com/nowplaying/playerapi/internal/player"

// PlayerStatusResponse is the body of GET .../status. It carries every
// player field except the full lyric, which is served by .../lyric.
type PlayerStatusResponse struct {
	Status        bool    `json:"status"`
	Name          string  `json:"name"`
	Singer        string  `json:"singer"`
	AlbumName     string  `json:"albumName"`
	Duration      float64 `json:"duration"`
	Progress      float64 `json:"progress"`
	PicURL        string  `json:"picUrl"`
	PlaybackRate  float64 `json:"playbackRate"`
	LyricLineText string  `json:"lyricLineText"`
}

// NewPlayerStatusResponse copies the polled fields out of a status snapshot.
func NewPlayerStatusResponse(s player.Status) PlayerStatusResponse {
	return PlayerStatusResponse{
		Status:        s.Status,
		Name:          s.Name,
		Singer:        s.Singer,
		AlbumName:     s.AlbumName,
		Duration:      s.Duration,
		Progress:      s.Progress,
		PicURL:        s.PicURL,
		PlaybackRate:  s.PlaybackRate,
		LyricLineText: s.LyricLineText,
	}
}
