package geo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sinulogmap/internal/model"
)

func TestKindFromCode(t *testing.T) {
	assert.Equal(t, PermissionDenied, KindFromCode(1))
	assert.Equal(t, PositionUnavailable, KindFromCode(2))
	assert.Equal(t, Timeout, KindFromCode(3))
	assert.Equal(t, Unknown, KindFromCode(0))
	assert.Equal(t, Unknown, KindFromCode(42))
}

func TestMessages_AreDistinct(t *testing.T) {
	kinds := []ErrorKind{PermissionDenied, PositionUnavailable, Timeout, Unknown, Unsupported}
	seen := make(map[string]ErrorKind)
	for _, k := range kinds {
		msg := k.Message()
		require.NotEmpty(t, msg)
		_, dup := seen[msg]
		assert.False(t, dup, "duplicate message for %s", k)
		seen[msg] = k
	}
	assert.Equal(t, "Location request timed out", Timeout.Message())
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, PermissionDenied, ParseKind("permission_denied"))
	assert.Equal(t, Unsupported, ParseKind("unsupported"))
	assert.Equal(t, Unknown, ParseKind("garbage"))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", &Error{Kind: PositionUnavailable})
	assert.Equal(t, PositionUnavailable, KindOf(wrapped))
	assert.Equal(t, Timeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Unknown, KindOf(errors.New("boom")))
}

func TestPosition_Validate(t *testing.T) {
	assert.NoError(t, Position{LatLng: model.LatLng{Lat: 10.3, Lng: 123.9}}.Validate())
	assert.ErrorIs(t, Position{LatLng: model.LatLng{Lat: 100}}.Validate(), ErrInvalidPosition)
	assert.ErrorIs(t, Position{Accuracy: -1}.Validate(), ErrInvalidPosition)
}

func TestFixedLocator(t *testing.T) {
	want := Position{LatLng: model.LatLng{Lat: 10.31, Lng: 123.89}, Accuracy: 12}
	got, err := FixedLocator{Position: want}.Locate(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FixedLocator{Err: &Error{Kind: PermissionDenied}}.Locate(context.Background(), DefaultOptions())
	assert.Equal(t, PermissionDenied, KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FixedLocator{Position: want}.Locate(ctx, Options{Timeout: time.Second})
	assert.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.HighAccuracy)
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.Zero(t, o.MaximumAge)
}
