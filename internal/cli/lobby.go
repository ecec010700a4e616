package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dkeye/Meet/internal/domain"
)

// lobby talks to the REST side of the server.
type lobby struct {
	base string
	http *http.Client
}

// newLobby derives the http base from the signaling url.
func newLobby(serverURL string) (*lobby, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""
	return &lobby{base: strings.TrimSuffix(u.String(), "/"), http: &http.Client{Timeout: 10 * time.Second}}, nil
}

type roomLink struct {
	ID   domain.RoomID `json:"id"`
	Path string        `json:"path"`
}

func (l *lobby) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%s: %s", path, body.Error)
		}
		return fmt.Errorf("%s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (l *lobby) rooms(ctx context.Context) ([]domain.RoomInfo, error) {
	var out struct {
		Rooms []domain.RoomInfo `json:"rooms"`
	}
	if err := l.get(ctx, "/api/rooms", &out); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (l *lobby) newRoom(ctx context.Context) (roomLink, error) {
	var out roomLink
	err := l.get(ctx, "/api/rooms/new", &out)
	return out, err
}

func roomsTable(rooms []domain.RoomInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Count", "Participants"})
	for _, r := range rooms {
		ids := make([]string, len(r.Participants))
		for i, p := range r.Participants {
			ids[i] = string(p)
		}
		t.AppendRow(table.Row{r.ID, r.Count, strings.Join(ids, ", ")})
	}
	t.AppendFooter(table.Row{"", len(rooms), ""})
	return t.Render()
}
