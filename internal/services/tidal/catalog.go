package tidal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cratesync/internal/logging"
	"cratesync/internal/services"
	"cratesync/internal/textutil"
)

const addBatchSize = 50

// SearchTracks returns up to limit catalog tracks for a title and artist.
func (c *Client) SearchTracks(ctx context.Context, title, artist string, limit int) ([]Track, error) {
	term := strings.TrimSpace(strings.TrimSpace(title) + " " + strings.TrimSpace(artist))
	if term == "" {
		return nil, services.Wrap(services.ErrValidation, "tidal", "search", "empty search term", nil)
	}
	if limit <= 0 {
		limit = c.searchLimit
	}
	query := url.Values{}
	query.Set("query", term)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", "0")

	var page pagePayload[trackPayload]
	if _, err := c.v1(ctx, http.MethodGet, "/search/tracks", query, nil, nil, &page); err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(page.Items))
	for _, item := range page.Items {
		tracks = append(tracks, item.toTrack())
	}
	return tracks, nil
}

// SearchTrack returns the best catalog match for a title and artist. Results
// whose artist contains, or is contained in, the wanted artist are preferred
// and ranked by title similarity; otherwise the first result wins. No results
// yields services.ErrSearchMiss.
func (c *Client) SearchTrack(ctx context.Context, title, artist string) (*Track, error) {
	tracks, err := c.SearchTracks(ctx, title, artist, c.searchLimit)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, services.Wrap(services.ErrSearchMiss, "tidal", "search", textutil.DisplayName(artist, title), nil)
	}
	best := pickMatch(tracks, title, artist)
	return &best, nil
}

func pickMatch(tracks []Track, title, artist string) Track {
	if strings.TrimSpace(artist) == "" {
		return tracks[0]
	}
	bestIdx, bestScore := -1, -1.0
	for i, track := range tracks {
		if !textutil.ContainsFolded(track.Artist, artist) && !textutil.ContainsFolded(artist, track.Artist) {
			continue
		}
		score := textutil.MatchScore(title, track.Title)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	if bestIdx < 0 {
		return tracks[0]
	}
	return tracks[bestIdx]
}

// Playlist fetches playlist metadata together with its current ETag.
func (c *Client) Playlist(ctx context.Context, playlistID string) (*Playlist, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, services.Wrap(services.ErrValidation, "tidal", "playlist", "playlist id is required", nil)
	}
	var payload playlistPayload
	header, err := c.v1(ctx, http.MethodGet, "/playlists/"+url.PathEscape(playlistID), nil, nil, nil, &payload)
	if err != nil {
		return nil, err
	}
	return payload.toPlaylist(header.Get("ETag")), nil
}

// PlaylistTracks lists every track currently in a playlist, following pages.
// Videos are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, services.Wrap(services.ErrValidation, "tidal", "playlist tracks", "playlist id is required", nil)
	}
	var tracks []Track
	for offset := 0; ; {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("offset", strconv.Itoa(offset))

		var page pagePayload[playlistItemPayload]
		if _, err := c.v1(ctx, http.MethodGet, "/playlists/"+url.PathEscape(playlistID)+"/items", query, nil, nil, &page); err != nil {
			return nil, err
		}
		for _, entry := range page.Items {
			if entry.Type != "" && entry.Type != "track" {
				continue
			}
			tracks = append(tracks, entry.Item.toTrack())
		}
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.TotalNumberOfItems {
			return tracks, nil
		}
	}
}

// CreatePlaylist creates a playlist for the authenticated user. When folder
// is set the playlist is moved into that folder, creating it if needed;
// placement failures are logged and do not fail the creation.
func (c *Client) CreatePlaylist(ctx context.Context, name, description, folder string) (*Playlist, error) {
	if strings.TrimSpace(name) == "" {
		return nil, services.Wrap(services.ErrValidation, "tidal", "create playlist", "name is required", nil)
	}
	_, _, userID, err := c.authorized()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("title", name)
	form.Set("description", description)

	var payload playlistPayload
	header, err := c.v1(ctx, http.MethodPost, fmt.Sprintf("/users/%d/playlists", userID), nil, form, nil, &payload)
	if err != nil {
		return nil, err
	}
	if payload.UUID == "" {
		return nil, services.Wrap(services.ErrMalformed, "tidal", "create playlist", "response carried no playlist id", nil)
	}
	playlist := payload.toPlaylist(header.Get("ETag"))
	c.logger.Info("tidal playlist created",
		logging.String("playlist_id", playlist.ID),
		logging.String("title", playlist.Title),
	)

	if folder = strings.TrimSpace(folder); folder != "" {
		folderID, err := c.EnsureFolder(ctx, folder)
		if err == nil {
			err = c.MoveToFolder(ctx, playlist.ID, folderID)
		}
		if err != nil {
			logging.WarnWithContext(c.logger, "playlist folder placement failed", "playlist_folder",
				logging.String("playlist_id", playlist.ID),
				logging.String("folder", folder),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the playlist stays in the library root"),
			)
		}
	}
	return playlist, nil
}

// AddTracksToPlaylist adds the given track ids, skipping any the playlist
// already holds. Membership is fetched fresh on every call so a run that
// added tracks but failed to record it does not add them twice. It returns
// the number of ids submitted.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) (int, error) {
	if len(trackIDs) == 0 {
		return 0, nil
	}
	playlist, err := c.Playlist(ctx, playlistID)
	if err != nil {
		return 0, err
	}
	current, err := c.PlaylistTracks(ctx, playlistID)
	if err != nil {
		return 0, err
	}
	present := make(map[string]struct{}, len(current))
	for _, track := range current {
		present[track.ID] = struct{}{}
	}

	missing := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return 0, nil
	}

	etag := playlist.ETag
	added := 0
	for start := 0; start < len(missing); start += addBatchSize {
		end := min(start+addBatchSize, len(missing))
		batch := missing[start:end]
		next, err := c.postItems(ctx, playlistID, etag, batch)
		if errors.Is(err, services.ErrRemoteStale) {
			// Someone else changed the playlist; pick up the new ETag once.
			refreshed, fetchErr := c.Playlist(ctx, playlistID)
			if fetchErr != nil {
				return added, fetchErr
			}
			next, err = c.postItems(ctx, playlistID, refreshed.ETag, batch)
		}
		if err != nil {
			return added, err
		}
		etag = next
		added += len(batch)
	}
	c.logger.Info("tidal playlist tracks added",
		logging.String("playlist_id", playlistID),
		logging.Int("added", added),
		logging.Int("skipped", len(trackIDs)-added),
	)
	return added, nil
}

func (c *Client) postItems(ctx context.Context, playlistID, etag string, ids []string) (string, error) {
	form := url.Values{}
	form.Set("trackIds", strings.Join(ids, ","))
	form.Set("onDupes", "SKIP")
	form.Set("onArtifactNotFound", "SKIP")
	headers := map[string]string{"If-None-Match": etag}
	header, err := c.v1(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/items", nil, form, headers, nil)
	if err != nil {
		return "", err
	}
	return header.Get("ETag"), nil
}
