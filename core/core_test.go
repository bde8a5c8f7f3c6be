package core_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/ragent/core"
)

func TestNormalize(t *testing.T) {
	v := core.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, core.Norm(v), 1e-6)

	zero := core.Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, zero)
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, core.Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
}

func TestDimensionMismatchError(t *testing.T) {
	err := core.CheckDimension(make([]float32, 300), 384)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))

	var dm *core.DimensionMismatchError
	require.True(t, errors.As(fmt.Errorf("search: %w", err), &dm))
	assert.Equal(t, 384, dm.Expected)
	assert.Equal(t, 300, dm.Got)

	assert.NoError(t, core.CheckDimension(make([]float32, 384), 384))
}

func TestIngestionError(t *testing.T) {
	err := &core.IngestionError{Path: "/tmp/a.txt", Err: fs.ErrPermission}
	assert.True(t, errors.Is(err, core.ErrIngestion))
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.Contains(t, err.Error(), "/tmp/a.txt")
}

func TestTaskLogClone(t *testing.T) {
	orig := &core.TaskLog{
		TaskID:       "t1",
		RetrievedIDs: []string{"a", "b"},
		Steps:        []string{"one"},
		CreatedAt:    time.Now(),
	}
	c := orig.Clone()
	c.RetrievedIDs[0] = "z"
	c.Steps = append(c.Steps, "two")

	assert.Equal(t, "a", orig.RetrievedIDs[0])
	assert.Len(t, orig.Steps, 1)
	assert.Nil(t, (*core.TaskLog)(nil).Clone())
}

func TestTaskLogSuccessful(t *testing.T) {
	assert.True(t, (&core.TaskLog{Verified: true}).Successful())
	assert.False(t, (&core.TaskLog{Verified: true, TimedOut: true}).Successful())
	assert.False(t, (&core.TaskLog{}).Successful())
}
