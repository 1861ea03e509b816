package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/openclaw/clawguard/pkg/errclass"
	"github.com/openclaw/clawguard/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerEntry_DecodeData(t *testing.T) {
	payload, err := json.Marshal(model.FreezeData{Message: "frozen", EntryCount: 4, ChainIntact: true})
	require.NoError(t, err)

	entry := &model.LedgerEntry{Event: model.EventFreeze, Data: payload}
	data, err := entry.DecodeData()
	require.NoError(t, err)

	freeze, ok := data.(*model.FreezeData)
	require.True(t, ok)
	assert.Equal(t, 4, freeze.EntryCount)
	assert.True(t, freeze.ChainIntact)
	assert.Equal(t, "frozen", model.Message(data))
	assert.Equal(t, model.EventFreeze, data.Event())
}

func TestLedgerEntry_DecodeData_Record(t *testing.T) {
	payload := []byte(`{"message":"m","changes":{"modified":["a"],"added":[],"deleted":["b"]}}`)
	entry := &model.LedgerEntry{Event: model.EventRecord, Data: payload}
	data, err := entry.DecodeData()
	require.NoError(t, err)

	changes := model.ChangesOf(data)
	require.NotNil(t, changes)
	assert.Equal(t, []string{"a"}, changes.Modified)
	assert.Equal(t, 2, changes.Total())
	assert.Equal(t, "1 modified, 1 deleted", changes.Summary())
}

func TestLedgerEntry_DecodeData_UnknownEvent(t *testing.T) {
	entry := &model.LedgerEntry{Event: "bogus", Data: []byte(`{}`)}
	_, err := entry.DecodeData()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrCorruptData))
}

func TestLedgerEntry_DecodeData_Malformed(t *testing.T) {
	entry := &model.LedgerEntry{Event: model.EventInit, Data: []byte(`{"file_count":"many"}`)}
	_, err := entry.DecodeData()
	assert.True(t, errors.Is(err, errclass.ErrCorruptData))
}

func TestHashValue_Short(t *testing.T) {
	assert.Equal(t, "0000000000000000...", model.GenesisHash.Short())
	assert.Equal(t, "abc", model.HashValue("abc").Short())
	assert.Len(t, string(model.GenesisHash), 64)
}

func TestChanges_Empty(t *testing.T) {
	assert.True(t, model.Changes{}.Empty())
	assert.False(t, model.Changes{Added: []string{"x"}}.Empty())
	assert.Equal(t, "", model.Changes{}.Summary())
}
