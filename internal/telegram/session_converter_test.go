package telegram

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gotd/td/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToGotgprotoSession_Wrapped(t *testing.T) {
	// Arrange
	input := &session.Data{
		DC:      2,
		Addr:    "1.2.3.4:443",
		AuthKey: []byte("test-key-32-bytes-long-abc-12345"),
	}

	// Act
	result, err := ConvertToGotgprotoSession(input)
	require.NoError(t, err)

	// Assert: {"Version":1,"Data":{...}}
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(result.Data, &parsed))
	assert.Equal(t, float64(1), parsed["Version"])
	dataObj, ok := parsed["Data"].(map[string]any)
	require.True(t, ok, "Data should be a nested object")
	assert.Equal(t, float64(2), dataObj["DC"])
	assert.Equal(t, "1.2.3.4:443", dataObj["Addr"])
}

func TestConvertToGotgprotoSession_LoadsBack(t *testing.T) {
	input := &session.Data{DC: 4, Addr: "5.6.7.8:443", AuthKey: []byte("another-key-32-bytes-long-xyz-00")}

	result, err := ConvertToGotgprotoSession(input)
	require.NoError(t, err)

	mem := &session.StorageMemory{}
	require.NoError(t, mem.StoreSession(context.Background(), result.Data))
	loaded, err := (&session.Loader{Storage: mem}).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, loaded.DC)
	assert.Equal(t, input.AuthKey, loaded.AuthKey)
}

func TestConvertToGotgprotoSession_NilInput(t *testing.T) {
	result, err := ConvertToGotgprotoSession(nil)

	assert.Error(t, err)
	assert.Nil(t, result)
}
