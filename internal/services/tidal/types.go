package tidal

import (
	"strconv"
	"time"
)

// Track is a catalog track as returned by search and playlist listings.
type Track struct {
	ID       string
	Title    string
	Artist   string
	Album    string
	ISRC     string
	Duration time.Duration
}

// Playlist is a user playlist. ETag is the concurrency token mutations must
// echo back.
type Playlist struct {
	ID             string
	Title          string
	Description    string
	NumberOfTracks int
	ETag           string
}

// DeviceLogin describes a pending device-code authorization.
type DeviceLogin struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
	Interval        time.Duration
}

type trackPayload struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Version  string `json:"version"`
	ISRC     string `json:"isrc"`
	Duration int    `json:"duration"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
}

func (p trackPayload) toTrack() Track {
	title := p.Title
	if p.Version != "" {
		title += " (" + p.Version + ")"
	}
	artist := p.Artist.Name
	if artist == "" && len(p.Artists) > 0 {
		artist = p.Artists[0].Name
	}
	return Track{
		ID:       strconv.FormatInt(p.ID, 10),
		Title:    title,
		Artist:   artist,
		Album:    p.Album.Title,
		ISRC:     p.ISRC,
		Duration: time.Duration(p.Duration) * time.Second,
	}
}

type pagePayload[T any] struct {
	Limit              int `json:"limit"`
	Offset             int `json:"offset"`
	TotalNumberOfItems int `json:"totalNumberOfItems"`
	Items              []T `json:"items"`
}

// Playlist item listings wrap each entry with a type discriminator.
type playlistItemPayload struct {
	Type string       `json:"type"`
	Item trackPayload `json:"item"`
}

type playlistPayload struct {
	UUID           string `json:"uuid"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	NumberOfTracks int    `json:"numberOfTracks"`
}

func (p playlistPayload) toPlaylist(etag string) *Playlist {
	return &Playlist{
		ID:             p.UUID,
		Title:          p.Title,
		Description:    p.Description,
		NumberOfTracks: p.NumberOfTracks,
		ETag:           etag,
	}
}
