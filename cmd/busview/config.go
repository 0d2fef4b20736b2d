// cmd/busview/config.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/mmp/busview/follow"
	"github.com/mmp/busview/geo"
	"github.com/mmp/busview/log"
	"github.com/mmp/busview/platform"
	"github.com/mmp/busview/scene"
)

// GlobalConfig is saved as JSON in the user's config directory and
// restored at startup. Version is bumped whenever a change requires
// migrating old saved configs.
type GlobalConfig struct {
	Version int

	Config platform.Config

	VehicleFeedURL      string
	RouteFeedURL        string
	PollIntervalSeconds int
	ModelPath           string

	InitialPose geo.CameraPose

	Follow follow.Config
	Scene  scene.Policy
}

const currentConfigVersion = 1

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("Unable to find user config dir: %v", err)
		dir = "."
	}

	dir = path.Join(dir, "Busview")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		lg.Errorf("%s: unable to make directory for config file: %v", dir, err)
	}

	return path.Join(dir, "config.json")
}

func (gc *GlobalConfig) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(gc)
}

func (gc *GlobalConfig) Save(lg *log.Logger) error {
	fn := configFilePath(lg)
	lg.Infof("Saving config to: %s", fn)
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()

	return gc.Encode(f)
}

// SaveIfChanged grabs the things that may have changed during the session
// and writes the config back out, unless it matches what is already on
// disk.
func (gc *GlobalConfig) SaveIfChanged(plat platform.Platform, pose geo.CameraPose, lg *log.Logger) bool {
	gc.Config.InitialWindowSize = plat.WindowSize()
	gc.Config.InitialWindowPosition = plat.WindowPosition()
	gc.InitialPose = pose

	fn := configFilePath(lg)
	onDisk, err := os.ReadFile(fn)
	if err != nil {
		lg.Infof("%s: unable to read config file: %v", fn, err)
	}

	var b strings.Builder
	if err := gc.Encode(&b); err != nil {
		lg.Errorf("%s: unable to encode config: %v", fn, err)
		return false
	}

	if b.String() == string(onDisk) {
		return false
	}

	if err := gc.Save(lg); err != nil {
		lg.Errorf("Error saving configuration file: %v", err)
		return false
	}
	return true
}

func defaultConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: currentConfigVersion,

		VehicleFeedURL:      "https://cdn.mbta.com/realtime/VehiclePositions.pb",
		RouteFeedURL:        "",
		PollIntervalSeconds: 10,
		ModelPath:           "resources/models/bus.obj",

		InitialPose: geo.CameraPose{
			Center:  geo.Point2LL{-71.0589, 42.3601}, // downtown Boston
			Zoom:    13,
			Pitch:   45,
			Bearing: 0,
		},

		Follow: follow.DefaultConfig(),
		Scene:  scene.DefaultPolicy(),
	}
}

func LoadOrMakeDefaultConfig(lg *log.Logger) *GlobalConfig {
	fn := configFilePath(lg)
	lg.Infof("Loading config from: %s", fn)

	contents, err := os.ReadFile(fn)
	if err != nil {
		return defaultConfig()
	}

	gc := defaultConfig()
	d := json.NewDecoder(bytes.NewReader(contents))
	if err := d.Decode(gc); err != nil {
		lg.Errorf("%s: configuration file is corrupt: %v", fn, err)
		return defaultConfig()
	}

	if gc.Version < 1 {
		// Pre-release configs did not carry the camera pose; start from
		// the default view.
		gc.InitialPose = defaultConfig().InitialPose
	}
	gc.Version = currentConfigVersion

	if gc.PollIntervalSeconds <= 0 {
		gc.PollIntervalSeconds = 10
	}
	if gc.Follow.FlyDuration <= 0 {
		gc.Follow.FlyDuration = 1500 * time.Millisecond
	}

	return gc
}
