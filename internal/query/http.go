package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/alimutlu55/localchat-discovery/internal/room"
)

const (
	ClustersPath = "/api/v1/rooms/clusters"
	ViewportPath = "/api/v1/rooms/viewport"
)

var ErrStatus = errors.New("unexpected status from room query service")

// HTTPClient implements Service over the query service's REST API.
type HTTPClient struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing query service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("query service url %q must be absolute", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{base: u, http: &http.Client{Timeout: timeout}, log: log.Named("query")}, nil
}

type clusterBody struct {
	Features []*geojson.Feature `json:"features"`
	Metadata room.Metadata      `json:"metadata"`
}

func (c *HTTPClient) Clusters(ctx context.Context, q ClusterQuery) (ClusterResponse, error) {
	v := boundsValues(q.Bounds, q.Category, q.User)
	v.Set("zoom", strconv.Itoa(q.Zoom))

	var body clusterBody
	if err := c.get(ctx, ClustersPath, v, &body); err != nil {
		return ClusterResponse{}, err
	}

	resp := ClusterResponse{Metadata: body.Metadata, Features: make([]room.Feature, 0, len(body.Features))}
	for _, gf := range body.Features {
		if gf == nil {
			c.log.Warn("skipping null feature")
			continue
		}
		f, err := room.FromGeoJSON(gf)
		if err != nil {
			c.log.Warn("skipping malformed feature", zap.Error(err))
			continue
		}
		resp.Features = append(resp.Features, f)
	}
	return resp, nil
}

type roomDTO struct {
	ID               string    `json:"id"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Title            string    `json:"title"`
	Category         string    `json:"category"`
	ParticipantCount int       `json:"participantCount"`
	Status           string    `json:"status"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	IsCreator        bool      `json:"isCreator"`
	HasJoined        bool      `json:"hasJoined"`
}

func (d roomDTO) room() room.Room {
	return room.Room{
		ID:               d.ID,
		Location:         orb.Point{d.Longitude, d.Latitude},
		Title:            d.Title,
		Category:         room.Category(d.Category),
		ParticipantCount: d.ParticipantCount,
		Status:           room.Status(strings.ToLower(d.Status)),
		ExpiresAt:        d.ExpiresAt,
		CreatedAt:        d.CreatedAt,
		IsCreator:        d.IsCreator,
		HasJoined:        d.HasJoined,
	}
}

type pageBody struct {
	Rooms         []roomDTO `json:"rooms"`
	HasNext       bool      `json:"hasNext"`
	TotalElements int       `json:"totalElements"`
}

func (c *HTTPClient) Rooms(ctx context.Context, q PageQuery) (PageResponse, error) {
	v := boundsValues(q.Bounds, q.Category, q.User)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("pageSize", strconv.Itoa(q.PageSize))

	var body pageBody
	if err := c.get(ctx, ViewportPath, v, &body); err != nil {
		return PageResponse{}, err
	}
	resp := PageResponse{HasNext: body.HasNext, TotalElements: body.TotalElements}
	for _, d := range body.Rooms {
		if d.ID == "" {
			continue
		}
		resp.Rooms = append(resp.Rooms, d.room())
	}
	return resp, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, v url.Values, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return fmt.Errorf("%w: %s %s: %s", ErrStatus, res.Status, path, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func boundsValues(b orb.Bound, cat room.Category, user *UserLocation) url.Values {
	f := func(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }
	v := url.Values{}
	v.Set("minLng", f(b.Min.Lon()))
	v.Set("minLat", f(b.Min.Lat()))
	v.Set("maxLng", f(b.Max.Lon()))
	v.Set("maxLat", f(b.Max.Lat()))
	if cat != "" {
		v.Set("category", string(cat))
	}
	if user != nil {
		v.Set("userLat", f(user.Lat))
		v.Set("userLng", f(user.Lng))
	}
	return v
}
