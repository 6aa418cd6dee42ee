package models

import "time"

type Position struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Altitude float64 `json:"altitude"`
}

// LocationReport is one periodic report from a device.
// Speed is in km/h as reported by the device.
type LocationReport struct {
	UserID   string  `json:"userId"`
	DeviceID string  `json:"deviceId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Altitude float64 `json:"altitude"`
	Speed    float64 `json:"speed"`
	RoomName string  `json:"roomName"`
}

func (r LocationReport) Position() Position {
	return Position{Lat: r.Lat, Lng: r.Lng, Altitude: r.Altitude}
}

type IdleStatus string

const (
	StatusOnline IdleStatus = "online"
	StatusIdle   IdleStatus = "idle"
)

// UserPresence is the current snapshot for one user. IdleSince is the zero
// time while the user is moving; once set it marks when the idle clock started.
type UserPresence struct {
	UserID      string     `json:"userId"`
	DeviceID    string     `json:"deviceId,omitempty"`
	Position    Position   `json:"position"`
	Speed       float64    `json:"speed"`
	RoomName    string     `json:"roomName"`
	LastSeen    time.Time  `json:"lastSeen"`
	IdleSince   time.Time  `json:"-"`
	IdleStatus  IdleStatus `json:"idleStatus"`
	IdleMinutes int        `json:"idleMinutes"`
}

type RoutePoint struct {
	Position   Position  `json:"position"`
	Speed      float64   `json:"speed"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Pin is one collectible marker. A creator holds at most one pin per room.
// CollectorID is empty while the pin is unclaimed.
type Pin struct {
	ID                string    `json:"id"`
	RoomName          string    `json:"roomName"`
	Creator           string    `json:"creator"`
	Position          Position  `json:"position"`
	CreatedAt         time.Time `json:"createdAt"`
	CollectorID       string    `json:"collectorId,omitempty"`
	CollectionStarted time.Time `json:"-"`
	CollectionElapsed int       `json:"collectionElapsed"`
}

type ScoreEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

type CollectionEvent struct {
	ID          string    `json:"id"`
	RoomName    string    `json:"roomName"`
	PinID       string    `json:"pinId"`
	CollectorID string    `json:"collectorId"`
	CreatorID   string    `json:"creatorId"`
	Position    Position  `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	CollectedAt time.Time `json:"collectedAt"`
}

type VisibilityMode string

const (
	VisibilityAll    VisibilityMode = "all"
	VisibilityRoom   VisibilityMode = "room"
	VisibilityCustom VisibilityMode = "custom"
	VisibilityHidden VisibilityMode = "hidden"
)

type Visibility struct {
	Mode    VisibilityMode `json:"mode"`
	Allowed []string       `json:"allowed"`
}
