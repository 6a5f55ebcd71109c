package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeEnv_AmbientWins(t *testing.T) {
	ambient := []string{"PATH=/usr/bin", "HOME=/root"}
	extra := map[string]string{
		"PATH":  "/evil",
		"B_VAR": "2",
		"A_VAR": "1",
		"":      "ignored",
	}

	merged := MergeEnv(ambient, extra)

	assert.Equal(t, []string{"PATH=/usr/bin", "HOME=/root", "A_VAR=1", "B_VAR=2"}, merged)
}

func TestMergeEnv_Empty(t *testing.T) {
	assert.Equal(t, []string{"A=1"}, MergeEnv([]string{"A=1"}, nil))
	assert.Equal(t, []string{"A=1"}, MergeEnv(nil, map[string]string{"A": "1"}))
}

func TestMergeEnv_DoesNotMutateAmbient(t *testing.T) {
	ambient := make([]string, 1, 4)
	ambient[0] = "A=1"

	_ = MergeEnv(ambient, map[string]string{"B": "2"})

	assert.Equal(t, []string{"A=1"}, ambient)
}
