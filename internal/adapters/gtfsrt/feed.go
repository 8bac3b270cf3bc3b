// Package gtfsrt exports live trips as a GTFS-Realtime vehicle positions feed.
package gtfsrt

import (
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/samirrijal/safiri/internal/core/domain"
)

// Version is the GTFS-Realtime format version written to the feed header.
const Version = "2.0"

// OccupancyStatus maps a crowd level to the closest GTFS-RT occupancy status.
func OccupancyStatus(level domain.CrowdLevel) gtfsrtpb.VehiclePosition_OccupancyStatus {
	switch level {
	case domain.CrowdEmpty:
		return gtfsrtpb.VehiclePosition_EMPTY
	case domain.CrowdLow, domain.CrowdHalf:
		return gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE
	case domain.CrowdHigh, domain.CrowdFull:
		return gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE
	case domain.CrowdStanding:
		return gtfsrtpb.VehiclePosition_FULL
	default:
		return gtfsrtpb.VehiclePosition_NO_DATA_AVAILABLE
	}
}

// VehiclePositions builds a full-dataset feed. Trips without a fix are skipped.
func VehiclePositions(trips []domain.TripSnapshot, now time.Time) *gtfsrtpb.FeedMessage {
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(Version),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	for i := range trips {
		t := &trips[i]
		if t.Location == nil {
			continue
		}
		vp := &gtfsrtpb.VehiclePosition{
			Trip: &gtfsrtpb.TripDescriptor{
				TripId:  proto.String(t.ID),
				RouteId: proto.String(t.RouteID),
			},
			Vehicle: &gtfsrtpb.VehicleDescriptor{
				Id: proto.String(t.VehicleID),
			},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(t.Location.Point.Lat)),
				Longitude: proto.Float32(float32(t.Location.Point.Lon)),
				Bearing:   proto.Float32(float32(t.Location.Heading)),
				Speed:     proto.Float32(float32(t.Location.SpeedKmh / 3.6)),
			},
			CurrentStatus:   gtfsrtpb.VehiclePosition_IN_TRANSIT_TO.Enum(),
			OccupancyStatus: OccupancyStatus(t.CrowdLevel).Enum(),
		}
		if t.CurrentStageIndex >= 0 {
			vp.CurrentStopSequence = proto.Uint32(uint32(t.CurrentStageIndex + 1))
		}
		if !t.Location.RecordedAt.IsZero() {
			vp.Timestamp = proto.Uint64(uint64(t.Location.RecordedAt.Unix()))
		}
		feed.Entity = append(feed.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(t.ID),
			Vehicle: vp,
		})
	}
	return feed
}

// Encode serializes the feed as protobuf.
func Encode(feed *gtfsrtpb.FeedMessage) ([]byte, error) {
	return proto.Marshal(feed)
}

// EncodeJSON serializes the feed as protobuf JSON for debugging.
func EncodeJSON(feed *gtfsrtpb.FeedMessage) ([]byte, error) {
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(feed)
}
