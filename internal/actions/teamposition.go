package actions

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
)

// KindTeamPosition reports the position of a field team to the team
// position service. It logs in first; the session cookie authorizes the
// update.
//
// Event data: teamID, geo (GeoJSON point).
// Configuration: teamPositionUrl (falls back to frostServerUrl), tpUname,
// tpPswd.
const KindTeamPosition = "team_position"

const (
	teamPositionLoginPath = "/servlet/is/rest/login"
	teamPositionEntryPath = "/servlet/is/rest/entry/4554/TeamPosition"
)

type teamPositionAction struct {
	caller
	event scenario.Event
	cfg   scenario.Configuration
}

func validateTeamPosition(data map[string]any) error {
	if _, err := text(data, "teamID"); err != nil {
		return err
	}
	_, _, err := point(data, "geo")
	return err
}

func (a *teamPositionAction) Execute(ctx context.Context) core.ExecutionReport {
	start := time.Now()
	status, err := a.execute(ctx)
	return finish(KindTeamPosition, start, status, nil, err)
}

func (a *teamPositionAction) execute(ctx context.Context) (int, error) {
	base, err := a.cfg.Property("teamPositionUrl")
	if err != nil {
		if base, err = a.cfg.Property("frostServerUrl"); err != nil {
			return 0, err
		}
	}
	base = strings.TrimRight(base, "/")
	user, err := a.cfg.Property("tpUname")
	if err != nil {
		return 0, err
	}
	password, err := a.cfg.Property("tpPswd")
	if err != nil {
		return 0, err
	}
	lon, lat, err := point(a.event.Data, "geo")
	if err != nil {
		return 0, err
	}

	// a private cookie jar keeps the login session to this action
	jar, _ := cookiejar.New(nil)
	c := a.caller
	client := *c.client
	client.Jar = jar
	c.client = &client

	q := url.Values{"user": {user}, "key": {password}, "aspect": {"doLogin"}}
	if _, err := c.do(ctx, request{
		method: http.MethodGet,
		url:    base + teamPositionLoginPath + "?" + q.Encode(),
	}); err != nil {
		return 0, err
	}

	body, err := mustJSON(map[string]any{
		"position": map[string]any{
			"latitude":  lat,
			"longitude": lon,
		},
		"status":      "Not ready",
		"description": "",
	})
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		url:    base + teamPositionEntryPath,
		body:   body,
		ok:     statusIs(http.StatusOK),
	})
	return resp.status, err
}
