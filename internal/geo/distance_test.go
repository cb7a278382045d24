package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantKm                 float64
		tolerance              float64
	}{
		{"same point", -6.2, 106.8, -6.2, 106.8, 0, 0.001},
		{"monas to kota tua", -6.1754, 106.8272, -6.1352, 106.8133, 4.7, 0.5},
		{"jakarta to bandung", -6.2088, 106.8456, -6.9175, 107.6191, 116, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.wantKm, got, tt.tolerance)
		})
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := HaversineKm(-6.2, 106.8, -6.3, 106.9)
	b := HaversineKm(-6.3, 106.9, -6.2, 106.8)
	assert.InDelta(t, a, b, 1e-9)
}

func TestMapsLink(t *testing.T) {
	assert.Equal(t, "https://maps.google.com/?q=-6.200000,106.800000", MapsLink(-6.2, 106.8))
}
