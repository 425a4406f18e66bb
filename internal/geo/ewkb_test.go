package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func TestPointEWKB(t *testing.T) {
	data, err := PointEWKB(-1.9441, 30.0619)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	p, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, SRID, p.SRID())
	assert.InDelta(t, 30.0619, p.X(), 1e-12)
	assert.InDelta(t, -1.9441, p.Y(), 1e-12)
}
