package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

// TestMarshalUnmarshalRecord_RoundTrip tests JSON marshaling/unmarshaling
func TestMarshalUnmarshalRecord_RoundTrip(t *testing.T) {
	original := &testRecord{Name: "uatom", Count: 3, Tags: []string{"a", "b"}}

	data, err := MarshalRecord(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalRecord[testRecord](data)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, original, restored)
}

// TestMarshalRecord_NilInput tests error handling for nil input
func TestMarshalRecord_NilInput(t *testing.T) {
	var rec *testRecord
	_, err := MarshalRecord(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot marshal nil")
}

// TestUnmarshalRecord_EmptyData tests error handling for empty input
func TestUnmarshalRecord_EmptyData(t *testing.T) {
	_, err := UnmarshalRecord[testRecord](nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty data")

	_, err = UnmarshalRecord[testRecord]([]byte("{not json"))
	require.Error(t, err)
}

func TestLoadRecord_NotFound(t *testing.T) {
	store := NewOverlay(newSortedMap())
	loaded, err := LoadRecord[testRecord](store, []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, SaveRecord(store, []byte("present"), &testRecord{Name: "x"}))
	loaded, err = LoadRecord[testRecord](store, []byte("present"))
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "x", loaded.Name)
}
