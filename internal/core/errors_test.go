package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"transient stage error", Transientf(StageFetch, "timeout"), true},
		{"permanent stage error", Permanentf(StageParse, "corrupt"), false},
		{"wrapped transient", fmt.Errorf("outer: %w", Transientf(StageEmbed, "rate limited")), true},
		{"bare deadline", context.DeadlineExceeded, true},
		{"unclassified", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.transient, IsTransient(tc.err))
		})
	}
}

func TestFailedStage(t *testing.T) {
	assert.Equal(t, StageUpsert, FailedStage(Transientf(StageUpsert, "conn reset")))
	assert.Equal(t, StageFetch, FailedStage(fmt.Errorf("wrap: %w", Permanentf(StageFetch, "404"))))
	assert.Equal(t, Stage("unknown"), FailedStage(errors.New("boom")))
}

func TestStageError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Transient(StageEmbed, inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "embed")
	assert.Contains(t, err.Error(), "transient")
}
