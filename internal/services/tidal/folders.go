package tidal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cratesync/internal/services"
)

const rootFolderID = "root"

type folderPage struct {
	Items []struct {
		TRN      string `json:"trn"`
		ItemType string `json:"itemType"`
		Name     string `json:"name"`
		Data     struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	} `json:"items"`
	Cursor string `json:"cursor"`
}

// FindFolder returns the id of the root-level playlist folder named name
// (case-insensitive), or services.ErrNotFound.
func (c *Client) FindFolder(ctx context.Context, name string) (string, error) {
	cursor := ""
	for {
		query := url.Values{}
		query.Set("folderId", rootFolderID)
		query.Set("includeOnly", "FOLDER")
		query.Set("offset", "0")
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("order", "NAME")
		query.Set("orderDirection", "ASC")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page folderPage
		if err := c.v2(ctx, http.MethodGet, "/my-collection/playlists/folders", query, &page); err != nil {
			return "", err
		}
		for _, item := range page.Items {
			if item.ItemType != "" && item.ItemType != "FOLDER" {
				continue
			}
			label := firstNonEmpty(item.Name, item.Data.Name)
			if strings.EqualFold(label, name) && item.Data.ID != "" {
				return item.Data.ID, nil
			}
		}
		if page.Cursor == "" || page.Cursor == cursor || len(page.Items) == 0 {
			return "", services.Wrap(services.ErrNotFound, "tidal", "folder", name, nil)
		}
		cursor = page.Cursor
	}
}

// EnsureFolder returns the id of the named root-level folder, creating it when
// it does not exist.
func (c *Client) EnsureFolder(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", services.Wrap(services.ErrValidation, "tidal", "folder", "folder name is required", nil)
	}
	id, err := c.FindFolder(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return "", err
	}

	query := url.Values{}
	query.Set("name", name)
	query.Set("folderId", rootFolderID)
	query.Set("trns", "")
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.v2(ctx, http.MethodPut, "/my-collection/playlists/folders/create-folder", query, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", services.Wrap(services.ErrMalformed, "tidal", "folder", "create-folder response carried no id", nil)
	}
	return resp.Data.ID, nil
}

// MoveToFolder places a playlist inside a folder.
func (c *Client) MoveToFolder(ctx context.Context, playlistID, folderID string) error {
	query := url.Values{}
	query.Set("folderId", folderID)
	query.Set("trns", "trn:playlist:"+playlistID)
	return c.v2(ctx, http.MethodPut, "/my-collection/playlists/folders/move", query, nil)
}
