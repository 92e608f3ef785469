package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/musthaq16/vehicle-route-tracker/types"
)

// ErrNoRoute is returned when OSRM answers with anything but code "Ok"
var ErrNoRoute = errors.New("no route")

// Client requests driving routes from an OSRM-compatible server
type Client struct {
	baseURL    string
	apiKey     string
	profile    string
	httpClient *http.Client
}

// New creates a directions client. apiKey is optional and sent as access_token.
func New(baseURL, apiKey, profile string, timeout time.Duration) *Client {
	if profile == "" {
		profile = string(types.Driving)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		profile:    profile,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type osrmManeuver struct {
	Location []float64 `json:"location"`
	Type     string    `json:"type"`
	Modifier string    `json:"modifier"`
}

type osrmStep struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Name     string       `json:"name"`
	Geometry string       `json:"geometry"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmLeg struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Steps    []osrmStep `json:"steps"`
}

// OSRM response format
type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64   `json:"distance"`
		Duration float64   `json:"duration"`
		Geometry string    `json:"geometry"`
		Legs     []osrmLeg `json:"legs"`
	} `json:"routes"`
	Waypoints []struct {
		Location []float64 `json:"location"`
	} `json:"waypoints"`
}

func (c *Client) routeURL(req types.DirectionsRequest) string {
	points := req.Points()
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
	}

	q := url.Values{}
	q.Set("steps", "true")
	q.Set("overview", "full")
	q.Set("geometries", "polyline")
	if c.apiKey != "" {
		q.Set("access_token", c.apiKey)
	}

	return fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, c.profile, strings.Join(parts, ";"), q.Encode())
}

// Route fetches the full route origin -> waypoints -> destination.
// Exactly one HTTP request is made; failures are returned, never retried.
func (c *Client) Route(ctx context.Context, req types.DirectionsRequest) (types.Route, error) {
	if req.Mode != "" && req.Mode != types.Driving {
		return types.Route{}, fmt.Errorf("unsupported travel mode %q", req.Mode)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(req), nil)
	if err != nil {
		return types.Route{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return types.Route{}, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Route{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return types.Route{}, fmt.Errorf("OSRM returned %d", resp.StatusCode)
		}
		return types.Route{}, fmt.Errorf("JSON decode failed: %w", err)
	}

	if parsed.Code != "Ok" {
		return types.Route{}, fmt.Errorf("%w: %s: %s", ErrNoRoute, parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return types.Route{}, fmt.Errorf("%w: empty routes", ErrNoRoute)
	}

	return convert(parsed)
}

func convert(parsed osrmResponse) (types.Route, error) {
	r := parsed.Routes[0]

	path, err := decodePath(r.Geometry)
	if err != nil {
		return types.Route{}, fmt.Errorf("route geometry: %w", err)
	}

	route := types.Route{
		Distance: r.Distance,
		Duration: r.Duration,
		Path:     path,
		Legs:     make([]types.Leg, 0, len(r.Legs)),
	}

	for i, l := range r.Legs {
		leg := types.Leg{
			Distance: l.Distance,
			Duration: l.Duration,
			Steps:    make([]types.Step, 0, len(l.Steps)),
		}
		// leg i runs between snapped waypoints i and i+1
		if i+1 < len(parsed.Waypoints) {
			leg.Start = lngLat(parsed.Waypoints[i].Location)
			leg.End = lngLat(parsed.Waypoints[i+1].Location)
		}

		for j, s := range l.Steps {
			stepPath, err := decodePath(s.Geometry)
			if err != nil {
				return types.Route{}, fmt.Errorf("leg %d step %d geometry: %w", i, j, err)
			}
			step := types.Step{
				Start:       lngLat(s.Maneuver.Location),
				Instruction: instruction(s.Maneuver, s.Name),
				Distance:    s.Distance,
				Duration:    s.Duration,
				Path:        stepPath,
			}
			step.End = step.Start
			if len(stepPath) > 0 {
				step.End = stepPath[len(stepPath)-1]
			}
			leg.Steps = append(leg.Steps, step)
		}

		if len(parsed.Waypoints) <= i+1 && len(leg.Steps) > 0 {
			leg.Start = leg.Steps[0].Start
			leg.End = leg.Steps[len(leg.Steps)-1].End
		}
		route.Legs = append(route.Legs, leg)
	}

	return route, nil
}

func decodePath(encoded string) ([]types.Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	path := make([]types.Coordinate, 0, len(coords))
	for _, c := range coords {
		path = append(path, types.Coordinate{Lat: c[0], Lng: c[1]})
	}
	return path, nil
}

// OSRM locations are [lng, lat]
func lngLat(loc []float64) types.Coordinate {
	if len(loc) < 2 {
		return types.Coordinate{}
	}
	return types.Coordinate{Lat: loc[1], Lng: loc[0]}
}

func instruction(m osrmManeuver, name string) string {
	parts := []string{m.Type}
	if m.Modifier != "" {
		parts = append(parts, m.Modifier)
	}
	text := strings.Join(parts, " ")
	if name != "" {
		text += " onto " + name
	}
	return text
}
