package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorValue(t *testing.T) {
	v := Vector{0.5, -1, 0.25}
	val, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-1,0.25]", val)
}

func TestVectorValueEmpty(t *testing.T) {
	val, err := Vector{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", val)
}

func TestVectorScanRoundtrip(t *testing.T) {
	original := Vector{0.5, -1, 0.25}
	val, err := original.Value()
	require.NoError(t, err)

	var scanned Vector
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, original, scanned)
}

func TestVectorScanBytes(t *testing.T) {
	var v Vector
	require.NoError(t, v.Scan([]byte("[1, 2.5, 3]")))
	assert.Equal(t, Vector{1, 2.5, 3}, v)
}

func TestVectorScanNil(t *testing.T) {
	v := Vector{1}
	require.NoError(t, v.Scan(nil))
	assert.Nil(t, v)
}

func TestVectorScanMalformed(t *testing.T) {
	var v Vector
	assert.Error(t, v.Scan("1,2,3"))
	assert.Error(t, v.Scan("[1,x,3]"))
	assert.Error(t, v.Scan(42))
}
