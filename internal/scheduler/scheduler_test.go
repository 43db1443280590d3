package scheduler

import (
	"testing"
	"time"

	"github.com/EricW9888/ScreenGuardian/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_ResourceSaverRunsEveryThirdFrame(t *testing.T) {
	s := New(true, 3)

	detections := 0
	for i := 0; i < 9; i++ {
		if s.Admit(false).Detect {
			detections++
		}
	}
	assert.Equal(t, 3, detections)
}

func TestAdmit_AnyNineConsecutiveFrames(t *testing.T) {
	s := New(true, 3)
	for i := 0; i < 4; i++ {
		s.Admit(false)
	}

	detections := 0
	for i := 0; i < 9; i++ {
		if s.Admit(false).Detect {
			detections++
		}
	}
	assert.Equal(t, 3, detections)
}

func TestAdmit_ResourceSaverOff(t *testing.T) {
	s := New(false, 3)
	for i := 0; i < 5; i++ {
		assert.True(t, s.Admit(false).Detect)
	}
}

func TestAdmit_MinimizedSkipsRenderButKeepsDetecting(t *testing.T) {
	s := New(true, 3)

	detections := 0
	for i := 0; i < 6; i++ {
		d := s.Admit(true)
		assert.False(t, d.Render)
		if d.Detect {
			detections++
		}
	}
	assert.Equal(t, 2, detections)
	assert.True(t, s.Admit(false).Render)
}

func TestHoldOverEqualsLastComputedResult(t *testing.T) {
	s := New(true, 3)
	_, ok := s.Last()
	assert.False(t, ok)

	var computed models.ClassificationResult
	for i := 0; i < 9; i++ {
		d := s.Admit(false)
		if d.Detect {
			dist := float64(40 + i)
			computed = models.ClassificationResult{
				FrameSeq:   d.Seq,
				Timestamp:  time.Unix(int64(i), 0),
				Posture:    models.PostureGood,
				DistanceCM: &dist,
			}
			s.Record(computed)
			continue
		}
		held, ok := s.Last()
		require.True(t, ok)
		assert.Equal(t, computed, held)
	}
}

func TestRecordIsolatesCaller(t *testing.T) {
	s := New(false, 1)
	dist := 50.0
	r := models.ClassificationResult{DistanceCM: &dist, PostureReasons: []string{"Sit up straight"}}
	s.Record(r)

	dist = 10
	r.PostureReasons[0] = "changed"

	held, _ := s.Last()
	assert.Equal(t, 50.0, *held.DistanceCM)
	assert.Equal(t, "Sit up straight", held.PostureReasons[0])
}

func TestConfigureKeepsCounter(t *testing.T) {
	s := New(true, 2)
	s.Admit(false) // seq 0
	s.Configure(true, 5)
	d := s.Admit(false)
	assert.Equal(t, uint64(1), d.Seq)
	assert.False(t, d.Detect)

	s.Configure(true, 0)
	assert.True(t, s.Admit(false).Detect)
}

func TestInvalidate(t *testing.T) {
	s := New(false, 1)
	s.Record(models.ClassificationResult{Posture: models.PostureGood})
	s.Invalidate()
	_, ok := s.Last()
	assert.False(t, ok)
}
