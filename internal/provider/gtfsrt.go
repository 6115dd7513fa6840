// ABOUTME: GTFS-realtime vehicle position decoding
// ABOUTME: Turns VehiclePosition entities of one vehicle into replayable fixes

package provider

import (
	"fmt"
	"sort"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/harper/offroute/internal/models"
	"google.golang.org/protobuf/proto"
)

// DecodeFeed parses a GTFS-realtime FeedMessage and returns the positions of vehicleID
// ordered by timestamp. An empty vehicleID takes the first vehicle found in the feed.
// Entities without a vehicle timestamp use the feed header timestamp.
func DecodeFeed(data []byte, vehicleID string) ([]Record, error) {
	var feed gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse gtfs-realtime feed: %w", err)
	}

	var headerTS uint64
	if feed.Header != nil && feed.Header.Timestamp != nil {
		headerTS = *feed.Header.Timestamp
	}

	var records []Record
	for _, e := range feed.Entity {
		vp := e.GetVehicle()
		if vp == nil || vp.Position == nil {
			continue
		}

		id := vp.GetVehicle().GetId()
		if id == "" {
			id = e.GetId()
		}
		if vehicleID == "" {
			vehicleID = id
		}
		if id != vehicleID {
			continue
		}

		pos := vp.Position
		lat := float64(pos.GetLatitude())
		lng := float64(pos.GetLongitude())
		if err := models.ValidateCoordinates(lat, lng); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.GetId(), err)
		}

		ts := headerTS
		if vp.Timestamp != nil {
			ts = *vp.Timestamp
		}

		bearing, speed := -1.0, -1.0
		if pos.Bearing != nil {
			bearing = float64(*pos.Bearing)
		}
		if pos.Speed != nil {
			speed = float64(*pos.Speed)
		}

		loc := models.Location{
			Longitude: lng,
			Latitude:  lat,
			Timestamp: int64(ts) * 1000,
		}.WithMotion(bearing, speed)
		records = append(records, Record{Location: &loc})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Location.Timestamp < records[j].Location.Timestamp
	})
	return records, nil
}

// EncodeFeed builds a FeedMessage holding one VehiclePosition per fix for vehicleID.
// Journal exports use it so a recorded track can be replayed later.
func EncodeFeed(vehicleID string, fixes []models.Location) ([]byte, error) {
	version := "2.0"
	feed := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: &version},
	}
	for i, loc := range fixes {
		id := fmt.Sprintf("%s-%d", vehicleID, i)
		ts := uint64(loc.Timestamp / 1000)
		pos := &gtfsrtpb.Position{
			Latitude:  proto.Float32(float32(loc.Latitude)),
			Longitude: proto.Float32(float32(loc.Longitude)),
		}
		if loc.Bearing != nil {
			pos.Bearing = proto.Float32(float32(*loc.Bearing))
		}
		if loc.Speed != nil {
			pos.Speed = proto.Float32(float32(*loc.Speed))
		}
		feed.Entity = append(feed.Entity, &gtfsrtpb.FeedEntity{
			Id: &id,
			Vehicle: &gtfsrtpb.VehiclePosition{
				Vehicle:   &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleID)},
				Position:  pos,
				Timestamp: &ts,
			},
		})
	}
	data, err := proto.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("encode gtfs-realtime feed: %w", err)
	}
	return data, nil
}
