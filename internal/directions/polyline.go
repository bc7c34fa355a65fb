package directions

import (
	"errors"

	"sinulogmap/internal/model"
)

var errBadPolyline = errors.New("malformed encoded polyline")

// DecodePolyline decodes the provider's encoded polyline format
// (5 decimal places, zig-zag varints in base64-ish ASCII offset by 63).
func DecodePolyline(s string) ([]model.LatLng, error) {
	out := make([]model.LatLng, 0, len(s)/4)
	var lat, lng int64
	for i := 0; i < len(s); {
		dlat, n, err := decodeValue(s, i)
		if err != nil {
			return nil, err
		}
		i = n
		dlng, n, err := decodeValue(s, i)
		if err != nil {
			return nil, err
		}
		i = n
		lat += dlat
		lng += dlng
		out = append(out, model.LatLng{Lat: float64(lat) / 1e5, Lng: float64(lng) / 1e5})
	}
	return out, nil
}

func decodeValue(s string, i int) (int64, int, error) {
	var result int64
	var shift uint
	for {
		if i >= len(s) {
			return 0, i, errBadPolyline
		}
		b := int64(s[i]) - 63
		i++
		if b < 0 || shift > 60 {
			return 0, i, errBadPolyline
		}
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(points []model.LatLng) string {
	buf := make([]byte, 0, len(points)*6)
	var prevLat, prevLng int64
	for _, p := range points {
		lat := round5(p.Lat)
		lng := round5(p.Lng)
		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return string(buf)
}

func round5(v float64) int64 {
	if v < 0 {
		return int64(v*1e5 - 0.5)
	}
	return int64(v*1e5 + 0.5)
}

func encodeValue(buf []byte, v int64) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte((0x20|(u&0x1f))+63))
		u >>= 5
	}
	return append(buf, byte(u+63))
}
