// feed/vehicles.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package feed

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/log"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// VehicleClient fetches a GTFS-Realtime VehiclePositions feed and maps it
// to VehicleTelemetry.
type VehicleClient struct {
	URL        string
	HTTPClient *http.Client
	lg         *log.Logger
}

func NewVehicleClient(url string, lg *log.Logger) *VehicleClient {
	return &VehicleClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		lg:         lg,
	}
}

// Fetch returns the current vehicle positions. An empty feed is a valid
// result and returns an empty slice, not an error.
func (c *VehicleClient) Fetch(ctx context.Context) ([]VehicleTelemetry, error) {
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

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var fm gtfsrt.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("%s: decoding feed: %w", c.URL, err)
	}

	telemetry := make([]VehicleTelemetry, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		v := e.Vehicle
		if v == nil || v.Position == nil || v.Position.Latitude == nil ||
			v.Position.Longitude == nil {
			continue
		}

		var t VehicleTelemetry
		t.Position = geo.Point2LL{*v.Position.Longitude, *v.Position.Latitude}
		if v.Position.Bearing != nil {
			t.Heading = *v.Position.Bearing
		}

		id := e.GetId()
		if v.Vehicle != nil && v.Vehicle.Id != nil {
			id = *v.Vehicle.Id
		}
		t.ID = vehicleID(id)

		if v.Vehicle != nil && v.Vehicle.Label != nil {
			t.Destination = *v.Vehicle.Label
		}

		// GTFS-RT reports occupancy as a percentage of capacity, so the
		// count is normalized to a capacity of 100.
		if v.OccupancyPercentage != nil {
			t.Occupancy = int(*v.OccupancyPercentage)
			t.Capacity = 100
		}

		if v.Timestamp != nil {
			t.Timestamp = time.Unix(int64(*v.Timestamp), 0)
		} else {
			t.Timestamp = time.Now()
		}

		telemetry = append(telemetry, t)
	}

	c.lg.Debugf("%s: fetched %d vehicles from %d entities", c.URL, len(telemetry), len(fm.Entity))
	return telemetry, nil
}

// vehicleID maps a feed's vehicle id string to a stable int. Most feeds
// use numeric ids; for the ones that don't, hash the string.
func vehicleID(s string) int {
	if id, err := strconv.Atoi(s); err == nil {
		return id
	}
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32())
}
