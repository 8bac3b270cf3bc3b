// Command driver-sim drives one trip along a JSON plan over the realtime
// socket, the way a driver app would.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/samirrijal/safiri/internal/core/domain"
	"github.com/samirrijal/safiri/internal/core/realtime"
	"github.com/samirrijal/safiri/internal/pkg/logging"
)

func main() {
	planPath := flag.String("plan", "plan.json", "path to the trip plan")
	token := flag.String("token", os.Getenv("SAFIRI_SIM_TOKEN"), "driver bearer token (overrides the plan)")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.Setup("safiri-driver-sim", *level, "text")

	plan, err := LoadPlan(*planPath)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}
	if *token != "" {
		plan.Token = *token
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if plan.TripID == "" {
		id, err := startTrip(plan)
		if err != nil {
			log.Fatalf("start trip: %v", err)
		}
		plan.TripID = id
		logger.Info("trip started", "trip_id", id)
	}

	if err := drive(ctx, plan, logger); err != nil {
		log.Fatalf("drive: %v", err)
	}
}

// startTrip creates the trip over REST for the token's driver.
func startTrip(plan *Plan) (string, error) {
	base, err := APIBase(plan.Server)
	if err != nil {
		return "", err
	}
	agent := fiber.Post(base + "/v1/trips").
		Set(fiber.HeaderAuthorization, "Bearer "+plan.Token).
		Timeout(10 * time.Second).
		JSON(map[string]string{"vehicle_id": plan.VehicleID, "route_id": plan.RouteID})

	var out struct {
		Trip domain.TripSnapshot `json:"trip"`
	}
	code, body, errs := agent.Struct(&out)
	if len(errs) > 0 {
		return "", errs[0]
	}
	if code != fiber.StatusCreated && code != fiber.StatusAccepted {
		return "", fmt.Errorf("status %d: %s", code, body)
	}
	return out.Trip.ID, nil
}

func drive(ctx context.Context, plan *Plan, logger *slog.Logger) error {
	u, err := url.Parse(plan.Server)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", plan.Token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", plan.Server, err)
	}
	defer conn.Close()

	go readLoop(conn, logger)

	send := func(in realtime.Inbound) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(in)
	}
	update := func(kind domain.UpdateKind, payload any) error {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return send(realtime.Inbound{Type: realtime.TypeUpdate, TripID: plan.TripID, Kind: kind, Payload: raw})
	}

	if err := send(realtime.Inbound{Type: realtime.TypeJoin, Room: realtime.TripRoom(plan.TripID)}); err != nil {
		return err
	}
	if err := update(domain.UpdateStatus, realtime.StatusPayload{To: domain.StatusActive}); err != nil {
		return err
	}

	ticker := time.NewTicker(plan.tick)
	defer ticker.Stop()
	for i, fix := range plan.Fixes() {
		select {
		case <-ctx.Done():
			return closeConn(conn)
		case <-ticker.C:
		}
		err := update(domain.UpdateLocation, realtime.LocationPayload{
			Lat:        fix.Point.Lat,
			Lon:        fix.Point.Lon,
			SpeedKmh:   fix.SpeedKmh,
			Heading:    fix.Heading,
			RecordedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if fix.Occupancy != nil {
			if err := update(domain.UpdateOccupancy, realtime.OccupancyPayload{Count: *fix.Occupancy}); err != nil {
				return err
			}
		}
		logger.Debug("fix sent", "n", i, "lat", fix.Point.Lat, "lon", fix.Point.Lon)
	}

	if plan.Complete {
		if err := update(domain.UpdateStatus, realtime.StatusPayload{To: domain.StatusCompleted}); err != nil {
			return err
		}
		// let the ack arrive before closing
		time.Sleep(plan.tick)
	}
	return closeConn(conn)
}

func readLoop(conn *websocket.Conn, logger *slog.Logger) {
	for {
		var msg realtime.Outbound
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Debug("read loop stopped", "error", err)
			}
			return
		}
		switch msg.Type {
		case realtime.TypeError:
			logger.Warn("server rejected update", "code", msg.Code, "message", msg.Message)
		case realtime.TypeSnapshot:
			if msg.Trip != nil {
				logger.Info("snapshot", "version", msg.Trip.Version, "stage", msg.Trip.CurrentStageIndex,
					"crowd", msg.Trip.CrowdLevel, "etas", len(msg.Trip.ETAs))
			}
		default:
			logger.Debug("message", "type", msg.Type, "version", msg.Version)
		}
	}
}

func closeConn(conn *websocket.Conn) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "trip done")
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
