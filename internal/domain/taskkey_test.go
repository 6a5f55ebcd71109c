package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTaskKey_Encode(t *testing.T) {
	key, err := NewTaskKey("etl", "load", "run42", 1)
	require.NoError(t, err)

	encoded, err := key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "etl:load:run42:1", encoded)
}

func TestTaskKey_RoundTrip_Property(t *testing.T) {
	field := rapid.StringMatching(`[A-Za-z0-9_.\-+ ]{1,24}`)

	rapid.Check(t, func(t *rapid.T) {
		key := TaskKey{
			WorkflowID: field.Draw(t, "workflow_id"),
			StepID:     field.Draw(t, "step_id"),
			RunID:      field.Draw(t, "run_id"),
			Attempt:    rapid.IntRange(1, 1<<20).Draw(t, "attempt"),
		}

		encoded, err := key.Encode()
		if err != nil {
			t.Fatalf("encode %+v: %v", key, err)
		}

		decoded, err := ParseTaskKey(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", encoded, err)
		}
		if decoded != key {
			t.Fatalf("round trip mismatch: %+v != %+v", decoded, key)
		}
	})
}

func TestTaskKey_Encode_DelimiterInField(t *testing.T) {
	tests := []struct {
		name string
		key  TaskKey
	}{
		{"workflow", TaskKey{WorkflowID: "a:b", StepID: "s", RunID: "r", Attempt: 1}},
		{"step", TaskKey{WorkflowID: "w", StepID: "s:1", RunID: "r", Attempt: 1}},
		{"run", TaskKey{WorkflowID: "w", StepID: "s", RunID: "scheduled__2024-01-01T00:00:00", Attempt: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.key.Encode()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedKey))
		})
	}
}

func TestNewTaskKey_Invalid(t *testing.T) {
	_, err := NewTaskKey("", "s", "r", 1)
	assert.ErrorIs(t, err, ErrMalformedKey)

	_, err = NewTaskKey("w", "s", "r", 0)
	assert.ErrorIs(t, err, ErrMalformedKey)
}

func TestParseTaskKey_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"a:b:c",
		"a:b:c:d:1",
		"a:b:c:x",
		"a:b:c:0",
		"a:b:c:-3",
		"a::c:1",
		"a:b:c:01",
		"a:b:c:+1",
		"a:b:c: 1",
	}

	for _, in := range inputs {
		_, err := ParseTaskKey(in)
		assert.ErrorIs(t, err, ErrMalformedKey, "input %q", in)
	}
}
