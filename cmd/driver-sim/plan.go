package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/pkg/geospatial"
)

// Waypoint is one point the simulated matatu drives through. Occupancy, when
// set, is reported on arrival.
type Waypoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	SpeedKmh  float64 `json:"speed_kmh"`
	Occupancy *int    `json:"occupancy,omitempty"`
}

// Plan describes one simulated trip.
type Plan struct {
	Server    string     `json:"server"`
	Token     string     `json:"token"`
	TripID    string     `json:"trip_id"`
	VehicleID string     `json:"vehicle_id"`
	RouteID   string     `json:"route_id"`
	Interval  string     `json:"interval"`
	Steps     int        `json:"steps"`
	Complete  bool       `json:"complete"`
	Waypoints []Waypoint `json:"waypoints"`

	tick time.Duration
}

// LoadPlan reads and checks a JSON plan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return &p, p.normalize()
}

func (p *Plan) normalize() error {
	var errs []error
	if p.Server == "" {
		p.Server = "ws://localhost:8080/ws"
	}
	if _, err := url.Parse(p.Server); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if p.TripID == "" && (p.VehicleID == "" || p.RouteID == "") {
		errs = append(errs, errors.New("either trip_id or vehicle_id and route_id are required"))
	}
	if len(p.Waypoints) < 2 {
		errs = append(errs, errors.New("at least two waypoints are required"))
	}
	if p.Steps <= 0 {
		p.Steps = 5
	}
	p.tick = 2 * time.Second
	if p.Interval != "" {
		d, err := time.ParseDuration(p.Interval)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("interval %q is not a positive duration", p.Interval))
		} else {
			p.tick = d
		}
	}
	return errors.Join(errs...)
}

// Fix is one location report produced by the plan.
type Fix struct {
	Point     domain.GeoPoint
	SpeedKmh  float64
	Heading   float64
	Occupancy *int
}

// Fixes interpolates Steps points per leg. The last fix of every leg is the
// leg's end waypoint and carries its occupancy.
func (p *Plan) Fixes() []Fix {
	fixes := []Fix{{
		Point:     domain.GeoPoint{Lat: p.Waypoints[0].Lat, Lon: p.Waypoints[0].Lon},
		Occupancy: p.Waypoints[0].Occupancy,
	}}
	for i := 1; i < len(p.Waypoints); i++ {
		from, to := p.Waypoints[i-1], p.Waypoints[i]
		heading := geospatial.Bearing(from.Lat, from.Lon, to.Lat, to.Lon)
		for s := 1; s <= p.Steps; s++ {
			lat, lon := geospatial.Lerp(from.Lat, from.Lon, to.Lat, to.Lon, float64(s)/float64(p.Steps))
			fix := Fix{
				Point:    domain.GeoPoint{Lat: lat, Lon: lon},
				SpeedKmh: to.SpeedKmh,
				Heading:  heading,
			}
			if s == p.Steps {
				fix.Point = domain.GeoPoint{Lat: to.Lat, Lon: to.Lon}
				fix.Occupancy = to.Occupancy
			}
			fixes = append(fixes, fix)
		}
	}
	return fixes
}

// APIBase turns the socket URL into the REST base: ws://h/ws → http://h.
func APIBase(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("server scheme %q is not ws or wss", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws")
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/"), nil
}
