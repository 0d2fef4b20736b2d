// feed/routes.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmp/busview/log"
	"github.com/mmp/busview/util"
)

// RouteClient fetches route geometry as KML. Routes change rarely, so the
// parsed result is cached on disk and used as a fallback when the server
// is unreachable.
type RouteClient struct {
	URL        string
	HTTPClient *http.Client
	lg         *log.Logger
}

// Cached routes older than this are refetched; on fetch failure the stale
// copy is still used.
const routeCacheMaxAge = 24 * time.Hour

func NewRouteClient(url string, lg *log.Logger) *RouteClient {
	return &RouteClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		lg:         lg,
	}
}

func (c *RouteClient) cachePath() string {
	h := fnv.New64a()
	h.Write([]byte(c.URL))
	return fmt.Sprintf("routes/%016x.msgpack", h.Sum64())
}

// Fetch returns the route polylines, preferring a fresh disk cache, then
// the network, then a stale disk cache.
func (c *RouteClient) Fetch(ctx context.Context) ([]RoutePath, error) {
	var routes []RoutePath
	if err := util.CacheRetrieveObjectIfFresh(c.cachePath(), routeCacheMaxAge, &routes); err == nil {
		c.lg.Debugf("%s: %d routes from cache", c.URL, len(routes))
		return routes, nil
	}

	routes, err := c.fetchRemote(ctx)
	if err != nil {
		// Fall back to the cache regardless of age.
		var cached []RoutePath
		if cerr := util.CacheRetrieveObjectIfFresh(c.cachePath(), 0, &cached); cerr == nil {
			c.lg.Warnf("%s: fetch failed (%v); using cached routes", c.URL, err)
			return cached, nil
		}
		return nil, err
	}

	if err := util.CacheStoreObject(c.cachePath(), routes); err != nil {
		c.lg.Warnf("%s: unable to cache routes: %v", c.URL, err)
	}
	return routes, nil
}

func (c *RouteClient) fetchRemote(ctx context.Context) ([]RoutePath, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", c.URL, resp.StatusCode)
	}

	return ParseKMLRoutes(resp.Body)
}

// The subset of KML we care about: Placemarks holding LineStrings, either
// directly or inside a MultiGeometry.
type kmlFile struct {
	Placemarks []kmlPlacemark `xml:"Document>Placemark"`
	// Some exporters put Placemarks in Folders inside the Document.
	FolderPlacemarks []kmlPlacemark `xml:"Document>Folder>Placemark"`
}

type kmlPlacemark struct {
	Name          string          `xml:"name"`
	LineStrings   []kmlLineString `xml:"LineString"`
	MultiGeometry []kmlLineString `xml:"MultiGeometry>LineString"`
}

type kmlLineString struct {
	Coordinates string `xml:"coordinates"`
}

// ParseKMLRoutes extracts named polylines from a KML document. Placemarks
// without line geometry (stop markers and the like) are skipped.
func ParseKMLRoutes(r io.Reader) ([]RoutePath, error) {
	var f kmlFile
	if err := xml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing KML: %w", err)
	}

	var routes []RoutePath
	for _, pm := range append(f.Placemarks, f.FolderPlacemarks...) {
		for _, ls := range append(pm.LineStrings, pm.MultiGeometry...) {
			wps, err := parseKMLCoordinates(ls.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
			}
			if len(wps) >= 2 {
				routes = append(routes, RoutePath{Name: pm.Name, Waypoints: wps})
			}
		}
	}
	return routes, nil
}

// parseKMLCoordinates parses KML's whitespace-separated list of
// "lon,lat[,alt]" tuples.
func parseKMLCoordinates(s string) ([]Waypoint, error) {
	var wps []Waypoint
	for _, tuple := range strings.Fields(s) {
		coords := strings.Split(tuple, ",")
		if len(coords) < 2 {
			return nil, fmt.Errorf("%q: malformed coordinate tuple", tuple)
		}

		var v [3]float64
		for i := range min(len(coords), 3) {
			var err error
			if v[i], err = strconv.ParseFloat(coords[i], 32); err != nil {
				return nil, fmt.Errorf("%q: %w", tuple, err)
			}
		}
		wps = append(wps, Waypoint{
			Longitude: float32(v[0]),
			Latitude:  float32(v[1]),
			Altitude:  float32(v[2]),
		})
	}
	return wps, nil
}
