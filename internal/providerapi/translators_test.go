package providerapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslateSpotifyPlaylists(t *testing.T) {
	t.Parallel()
	playlists, err := translateSpotifyPlaylists([]byte(`{"items":[
		{"id":"p1","name":"Focus","description":"deep work","images":[{"url":"https://img/1"}],"tracks":{"total":42},"owner":{"display_name":"me"}},
		null
	]}`))
	require.NoError(t, err)
	require.Len(t, playlists, 1)
	require.Equal(t, Playlist{ID: "p1", Name: "Focus", Description: "deep work", ImageURL: "https://img/1", TrackCount: 42, Owner: "me"}, playlists[0])

	_, err = translateSpotifyPlaylists([]byte(`{"items":`))
	require.ErrorIs(t, err, ErrParseFailed)
	_, err = translateSpotifyPlaylists([]byte(`{"error":"nope"}`))
	require.ErrorIs(t, err, ErrParseFailed)
}

func TestTranslateSpotifySearch(t *testing.T) {
	t.Parallel()
	tracks, err := translateSpotifySearch([]byte(`{"tracks":{"items":[{
		"id":"t1","uri":"spotify:track:t1","name":"Song","duration_ms":180000,
		"artists":[{"name":"A"},{"name":"B"}],
		"album":{"name":"Album","images":[{"url":"https://img/a"}]}
	}]}}`))
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, []string{"A", "B"}, tracks[0].Artists)
	require.Equal(t, "spotify:track:t1", tracks[0].URI)
	require.Equal(t, int64(180000), tracks[0].DurationMs)
	require.Equal(t, "https://img/a", tracks[0].ImageURL)
}

func TestTranslateSpotifyPlayer(t *testing.T) {
	t.Parallel()
	idle, err := translateSpotifyPlayer(nil)
	require.NoError(t, err)
	require.False(t, idle.IsPlaying)
	require.Nil(t, idle.Track)

	state, err := translateSpotifyPlayer([]byte(`{"is_playing":true,"progress_ms":1500,"shuffle_state":false,"repeat_state":"off",
		"device":{"id":"d1","name":"Laptop","type":"Computer","volume_percent":60},
		"item":{"id":"t1","name":"Song","artists":[{"name":"A"}]}}`))
	require.NoError(t, err)
	require.True(t, state.IsPlaying)
	require.Equal(t, int64(1500), state.ProgressMs)
	require.Equal(t, "d1", state.Device.ID)
	require.Equal(t, "Song", state.Track.Name)
}

func TestTranslateYouTubePayloads(t *testing.T) {
	t.Parallel()
	playlists, err := translateYouTubePlaylists([]byte(`{"items":[{"id":"PL1","snippet":{"title":"Mix","channelTitle":"Me",
		"thumbnails":{"default":{"url":"https://img/d"},"high":{"url":"https://img/h"}}},"contentDetails":{"itemCount":7}}]}`))
	require.NoError(t, err)
	require.Equal(t, Playlist{ID: "PL1", Name: "Mix", ImageURL: "https://img/h", TrackCount: 7, Owner: "Me"}, playlists[0])

	items, err := translateYouTubePlaylistItems([]byte(`{"items":[{"snippet":{"title":"Clip","position":3,
		"resourceId":{"videoId":"v9"},"videoOwnerChannelTitle":"Chan"},"contentDetails":{}}]}`))
	require.NoError(t, err)
	require.Equal(t, "v9", items[0].ID)
	require.Equal(t, int64(3), items[0].Position)

	videos, err := translateYouTubeSearch([]byte(`{"items":[{"id":{"videoId":"v1"},"snippet":{"title":"Result","channelTitle":"C","publishedAt":"2024-01-01T00:00:00Z"}}]}`))
	require.NoError(t, err)
	require.Equal(t, Video{ID: "v1", Title: "Result", ChannelTitle: "C", PublishedAt: "2024-01-01T00:00:00Z"}, videos[0])

	_, err = translateYouTubeSearch([]byte(`not json`))
	require.ErrorIs(t, err, ErrParseFailed)
}
