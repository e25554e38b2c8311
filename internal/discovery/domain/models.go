package domain

import (
	"time"

	"github.com/google/uuid"
)

// GeoPoint is a WGS 84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoFix is a single geolocation reading. A fix is immutable once created;
// a later, more accurate reading supersedes it rather than mutating it.
type GeoFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Point returns the fix coordinates as a GeoPoint.
func (f GeoFix) Point() GeoPoint {
	return GeoPoint{Lat: f.Latitude, Lng: f.Longitude}
}

// ScheduleEntry is a per-day opening window as supplied by the backend.
// Day carries the raw backend day name; evaluation normalizes it. A missing
// entry for a day means the branch is closed that day.
type ScheduleEntry struct {
	Day       string `json:"day"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
	Closed    bool   `json:"is_closed"`
}

// Store groups branches under a brand with a shared logo.
type Store struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	LogoURL string    `json:"logo_url,omitempty"`
}

// Branch is a physical location of a store. Latitude/Longitude are optional
// because the backend may hold branches that were never geocoded; such
// branches cannot be placed on a map.
type Branch struct {
	ID            uuid.UUID       `json:"id"`
	StoreID       uuid.UUID       `json:"store_id"`
	Name          string          `json:"name"`
	Address       string          `json:"address,omitempty"`
	PhoneNumber   string          `json:"phone_number,omitempty"`
	Latitude      *float64        `json:"latitude,omitempty"`
	Longitude     *float64        `json:"longitude,omitempty"`
	AverageRating *float64        `json:"average_rating,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	Status        string          `json:"status,omitempty"`
	Schedule      []ScheduleEntry `json:"schedule,omitempty"`
}

// CafeRecord is the render-ready projection of a branch.
// DistanceKm is present only while a GeoFix exists.
type CafeRecord struct {
	ID           uuid.UUID `json:"id"`
	StoreID      uuid.UUID `json:"store_id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Rating       *float64  `json:"rating,omitempty"`
	RatingText   string    `json:"rating_text"`
	Tags         []string  `json:"tags,omitempty"`
	IsOpenNow    bool      `json:"is_open_now"`
	HasSchedule  bool      `json:"has_schedule"`
	DistanceKm   *float64  `json:"distance_km,omitempty"`
	DistanceText string    `json:"distance_text,omitempty"`
	LogoURL      string    `json:"logo_url,omitempty"`
}

// Point returns the cafe coordinates as a GeoPoint.
func (c CafeRecord) Point() GeoPoint {
	return GeoPoint{Lat: c.Latitude, Lng: c.Longitude}
}

// SortCriterion selects the cafe list ordering.
type SortCriterion string

const (
	SortByDistance SortCriterion = "distance"
	SortByRating   SortCriterion = "rating"
	SortByName     SortCriterion = "name"
)

// FilterOptions are the user-mutable list filters. The zero value sorts by
// distance and passes every cafe.
type FilterOptions struct {
	SortBy    SortCriterion `json:"sort_by"`
	MinRating float64       `json:"min_rating"`
	Tags      []string      `json:"tags,omitempty"`
	OnlyOpen  bool          `json:"only_open"`
}

// Criterion returns the effective sort criterion, defaulting to distance.
func (f FilterOptions) Criterion() SortCriterion {
	switch f.SortBy {
	case SortByRating, SortByName:
		return f.SortBy
	default:
		return SortByDistance
	}
}

// StoreFacet is a distinct store surfaced to the UI for filter chips.
type StoreFacet struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// NotificationKind distinguishes success from failure toasts.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a user-facing toast. DedupeKey lets a rendering layer
// safely drop repeats of the same logical announcement.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Text      string           `json:"text"`
	IconHint  string           `json:"icon_hint,omitempty"`
	Duration  time.Duration    `json:"duration_ms"`
	DedupeKey string           `json:"dedupe_key"`
}

// CameraIntent is a pending map recenter request.
type CameraIntent struct {
	Center   GeoPoint      `json:"center"`
	Zoom     int           `json:"zoom"`
	Duration time.Duration `json:"duration"`
}

// ViewportController is the external map viewport collaborator.
type ViewportController interface {
	FlyTo(center GeoPoint, zoom int, duration time.Duration)
}

// Clock abstracts wall-clock time for tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
