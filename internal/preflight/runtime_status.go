package preflight

import (
	"fmt"
	"time"

	"cratesync/internal/config"
	"cratesync/internal/services/tidal"
)

// CheckTidalSession inspects the saved Tidal session without contacting the
// service. An expired access token passes when a refresh token is present.
func CheckTidalSession(cfg *config.Config) Result {
	const name = "Tidal session"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if cfg.Tidal.ClientID == "" {
		return Result{Name: name, Detail: "tidal.client_id is not set"}
	}
	store := tidal.NewFileTokenStore(cfg.TokenPath())
	session, err := store.Load()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreadable token file (%v)", err)}
	}
	switch {
	case session.AccessToken == "" && session.RefreshToken == "":
		return Result{Name: name, Detail: "not logged in; run `cratesync auth login`"}
	case session.Valid(time.Now(), 0):
		detail := "logged in"
		if !session.ExpiresAt.IsZero() {
			detail += ", expires " + session.ExpiresAt.Local().Format(time.RFC3339)
		}
		return Result{Name: name, Passed: true, Detail: detail}
	case session.RefreshToken != "":
		return Result{Name: name, Passed: true, Detail: "access token expired; will refresh"}
	default:
		return Result{Name: name, Detail: "session expired; run `cratesync auth login`"}
	}
}
