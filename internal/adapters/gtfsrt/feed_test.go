package gtfsrt_test

import (
	"encoding/json"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/samirrijal/safiri/internal/adapters/gtfsrt"
	"github.com/samirrijal/safiri/internal/core/domain"
)

func snapshot(id string, loc *domain.Location, level domain.CrowdLevel) domain.TripSnapshot {
	return domain.TripSnapshot{Trip: domain.Trip{
		ID:                id,
		RouteID:           "r46",
		VehicleID:         "KCA-" + id,
		Status:            domain.StatusActive,
		CurrentStageIndex: 2,
		Location:          loc,
		CrowdLevel:        level,
	}}
}

func TestVehiclePositions(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	fix := &domain.Location{
		Point:      domain.GeoPoint{Lat: -1.2833, Lon: 36.8172},
		SpeedKmh:   36,
		Heading:    90,
		RecordedAt: now.Add(-5 * time.Second),
	}
	trips := []domain.TripSnapshot{
		snapshot("t1", fix, domain.CrowdHigh),
		snapshot("t2", nil, domain.CrowdEmpty),
	}

	data, err := gtfsrt.Encode(gtfsrt.VehiclePositions(trips, now))
	require.NoError(t, err)

	var feed gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(data, &feed))

	assert.Equal(t, gtfsrt.Version, feed.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfsrtpb.FeedHeader_FULL_DATASET, feed.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(now.Unix()), feed.GetHeader().GetTimestamp())
	require.Len(t, feed.GetEntity(), 1, "trips without a fix are skipped")

	vp := feed.GetEntity()[0].GetVehicle()
	assert.Equal(t, "t1", vp.GetTrip().GetTripId())
	assert.Equal(t, "r46", vp.GetTrip().GetRouteId())
	assert.Equal(t, "KCA-t1", vp.GetVehicle().GetId())
	assert.InDelta(t, -1.2833, vp.GetPosition().GetLatitude(), 1e-4)
	assert.InDelta(t, 10.0, vp.GetPosition().GetSpeed(), 1e-4, "speed is m/s")
	assert.Equal(t, uint32(3), vp.GetCurrentStopSequence())
	assert.Equal(t, uint64(fix.RecordedAt.Unix()), vp.GetTimestamp())
	assert.Equal(t, gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE, vp.GetOccupancyStatus())
}

func TestOccupancyStatus(t *testing.T) {
	tests := []struct {
		level domain.CrowdLevel
		want  gtfsrtpb.VehiclePosition_OccupancyStatus
	}{
		{domain.CrowdEmpty, gtfsrtpb.VehiclePosition_EMPTY},
		{domain.CrowdLow, gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE},
		{domain.CrowdHalf, gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE},
		{domain.CrowdHigh, gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE},
		{domain.CrowdFull, gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE},
		{domain.CrowdStanding, gtfsrtpb.VehiclePosition_FULL},
		{"", gtfsrtpb.VehiclePosition_NO_DATA_AVAILABLE},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gtfsrt.OccupancyStatus(tt.level), "level %q", tt.level)
	}
}

func TestEncodeJSON(t *testing.T) {
	feed := gtfsrt.VehiclePositions(nil, time.Unix(1700000000, 0))
	data, err := gtfsrt.EncodeJSON(feed)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "header")
}
