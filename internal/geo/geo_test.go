package geo

import (
	"math"
	"testing"

	"github.com/example/geotrack/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(41.0082, 28.9784, 41.0082, 28.9784)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := models.Position{Lat: 41.0082, Lng: 28.9784}
	b := models.Position{Lat: 39.9334, Lng: 32.8597}
	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)
	if d1 != d2 {
		t.Fatalf("not symmetric: %f vs %f", d1, d2)
	}
	if d1 <= 0 {
		t.Fatalf("expected positive distance, got %f", d1)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111.19 km on the R=6371km sphere
	d := Haversine(0, 0, 1, 0)
	if math.Abs(d-111195) > 100 {
		t.Fatalf("expected ~111195m, got %f", d)
	}
}

func TestDistanceMetersIgnoresAltitude(t *testing.T) {
	a := models.Position{Lat: 10, Lng: 10, Altitude: 0}
	b := models.Position{Lat: 10, Lng: 10, Altitude: 1200}
	if d := DistanceMeters(a, b); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}
