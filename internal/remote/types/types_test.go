package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeer_UnmarshalToleratesFieldTypeDrift(t *testing.T) {
	data := []byte(`[{"pid":"PID1","name":"nas","online":"1","vodPort":"8080","extra":true}]`)

	var peers []Peer
	require.NoError(t, json.Unmarshal(data, &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "PID1", peers[0].PID)
	assert.Equal(t, "nas", peers[0].Name)
	assert.Zero(t, peers[0].VodPort)

	out, err := json.Marshal(peers)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestTask_UnmarshalToleratesFieldTypeDrift(t *testing.T) {
	data := []byte(`{"id":"7","name":"a.mkv","progress":"50","state":1}`)

	var task Task
	require.NoError(t, json.Unmarshal(data, &task))
	assert.Equal(t, "7", task.ID)
	assert.Equal(t, 1, task.State)
	assert.Zero(t, task.Progress)
	assert.JSONEq(t, string(data), string(task.Raw))
}

func TestPeer_UnmarshalRejectsNonObject(t *testing.T) {
	var peers []Peer
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &peers))
	assert.Error(t, json.Unmarshal([]byte(`[{"pid":`), &peers))
}

func TestParseListType(t *testing.T) {
	tests := []struct {
		in      string
		want    ListType
		wantErr bool
	}{
		{"downloading", ListDownloading, false},
		{" Finished ", ListFinished, false},
		{"3", ListFailed, false},
		{"0", ListDownloading, false},
		{"9", 0, true},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseListType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
