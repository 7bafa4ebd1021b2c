package providerapi

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Playlist is a provider playlist in client-facing shape.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	TrackCount  int64  `json:"trackCount"`
	Owner       string `json:"owner,omitempty"`
}

// Track is a Spotify track.
type Track struct {
	ID         string   `json:"id"`
	URI        string   `json:"uri"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	DurationMs int64    `json:"durationMs"`
	PreviewURL string   `json:"previewUrl,omitempty"`
}

// Device is a Spotify Connect device.
type Device struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	VolumePercent int64  `json:"volumePercent"`
}

// PlayerState is the Spotify playback state.
type PlayerState struct {
	IsPlaying  bool    `json:"isPlaying"`
	ProgressMs int64   `json:"progressMs"`
	ShuffleOn  bool    `json:"shuffle"`
	RepeatMode string  `json:"repeat,omitempty"`
	Device     *Device `json:"device,omitempty"`
	Track      *Track  `json:"track,omitempty"`
}

// Video is a YouTube search result or playlist entry.
type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	PublishedAt  string `json:"publishedAt,omitempty"`
	Position     int64  `json:"position,omitempty"`
}

func validPayload(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("provider_api.translate: %w", ErrParseFailed)
	}
	return gjson.ParseBytes(body), nil
}

func translateSpotifyPlaylists(body []byte) ([]Playlist, error) {
	root, err := validPayload(body)
	if err != nil {
		return nil, err
	}
	items := root.Get("items")
	if !items.IsArray() {
		return nil, fmt.Errorf("provider_api.spotify.playlists: %w", ErrParseFailed)
	}
	playlists := make([]Playlist, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		if item.Type == gjson.Null {
			return true
		}
		playlists = append(playlists, Playlist{
			ID:          item.Get("id").String(),
			Name:        item.Get("name").String(),
			Description: item.Get("description").String(),
			ImageURL:    item.Get("images.0.url").String(),
			TrackCount:  item.Get("tracks.total").Int(),
			Owner:       item.Get("owner.display_name").String(),
		})
		return true
	})
	return playlists, nil
}

func translateSpotifySearch(body []byte) ([]Track, error) {
	root, err := validPayload(body)
	if err != nil {
		return nil, err
	}
	items := root.Get("tracks.items")
	if !items.IsArray() {
		return nil, fmt.Errorf("provider_api.spotify.search: %w", ErrParseFailed)
	}
	tracks := make([]Track, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		tracks = append(tracks, spotifyTrack(item))
		return true
	})
	return tracks, nil
}

func spotifyTrack(item gjson.Result) Track {
	artists := make([]string, 0, 2)
	for _, artist := range item.Get("artists.#.name").Array() {
		artists = append(artists, artist.String())
	}
	return Track{
		ID:         item.Get("id").String(),
		URI:        item.Get("uri").String(),
		Name:       item.Get("name").String(),
		Artists:    artists,
		Album:      item.Get("album.name").String(),
		ImageURL:   item.Get("album.images.0.url").String(),
		DurationMs: item.Get("duration_ms").Int(),
		PreviewURL: item.Get("preview_url").String(),
	}
}

// translateSpotifyPlayer treats an empty body (204, nothing active) as an idle player.
func translateSpotifyPlayer(body []byte) (PlayerState, error) {
	if len(body) == 0 {
		return PlayerState{}, nil
	}
	root, err := validPayload(body)
	if err != nil {
		return PlayerState{}, err
	}
	state := PlayerState{
		IsPlaying:  root.Get("is_playing").Bool(),
		ProgressMs: root.Get("progress_ms").Int(),
		ShuffleOn:  root.Get("shuffle_state").Bool(),
		RepeatMode: root.Get("repeat_state").String(),
	}
	if device := root.Get("device"); device.Exists() && device.Type != gjson.Null {
		state.Device = &Device{
			ID:            device.Get("id").String(),
			Name:          device.Get("name").String(),
			Type:          device.Get("type").String(),
			VolumePercent: device.Get("volume_percent").Int(),
		}
	}
	if item := root.Get("item"); item.Exists() && item.Type != gjson.Null {
		track := spotifyTrack(item)
		state.Track = &track
	}
	return state, nil
}

func translateYouTubePlaylists(body []byte) ([]Playlist, error) {
	root, err := validPayload(body)
	if err != nil {
		return nil, err
	}
	items := root.Get("items")
	if !items.IsArray() {
		return nil, fmt.Errorf("provider_api.youtube.playlists: %w", ErrParseFailed)
	}
	playlists := make([]Playlist, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		playlists = append(playlists, Playlist{
			ID:          item.Get("id").String(),
			Name:        item.Get("snippet.title").String(),
			Description: item.Get("snippet.description").String(),
			ImageURL:    youtubeThumbnail(item.Get("snippet.thumbnails")),
			TrackCount:  item.Get("contentDetails.itemCount").Int(),
			Owner:       item.Get("snippet.channelTitle").String(),
		})
		return true
	})
	return playlists, nil
}

func translateYouTubePlaylistItems(body []byte) ([]Video, error) {
	root, err := validPayload(body)
	if err != nil {
		return nil, err
	}
	items := root.Get("items")
	if !items.IsArray() {
		return nil, fmt.Errorf("provider_api.youtube.playlist_items: %w", ErrParseFailed)
	}
	videos := make([]Video, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		videoID := item.Get("contentDetails.videoId").String()
		if videoID == "" {
			videoID = item.Get("snippet.resourceId.videoId").String()
		}
		videos = append(videos, Video{
			ID:           videoID,
			Title:        item.Get("snippet.title").String(),
			ChannelTitle: item.Get("snippet.videoOwnerChannelTitle").String(),
			ThumbnailURL: youtubeThumbnail(item.Get("snippet.thumbnails")),
			PublishedAt:  item.Get("contentDetails.videoPublishedAt").String(),
			Position:     item.Get("snippet.position").Int(),
		})
		return true
	})
	return videos, nil
}

func translateYouTubeSearch(body []byte) ([]Video, error) {
	root, err := validPayload(body)
	if err != nil {
		return nil, err
	}
	items := root.Get("items")
	if !items.IsArray() {
		return nil, fmt.Errorf("provider_api.youtube.search: %w", ErrParseFailed)
	}
	videos := make([]Video, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		videos = append(videos, Video{
			ID:           item.Get("id.videoId").String(),
			Title:        item.Get("snippet.title").String(),
			ChannelTitle: item.Get("snippet.channelTitle").String(),
			ThumbnailURL: youtubeThumbnail(item.Get("snippet.thumbnails")),
			PublishedAt:  item.Get("snippet.publishedAt").String(),
		})
		return true
	})
	return videos, nil
}

// youtubeThumbnail picks the largest thumbnail present.
func youtubeThumbnail(thumbnails gjson.Result) string {
	for _, size := range []string{"maxres", "high", "medium", "default"} {
		if thumbnailURL := thumbnails.Get(size + ".url").String(); thumbnailURL != "" {
			return thumbnailURL
		}
	}
	return ""
}
