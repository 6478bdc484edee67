package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/slipstream/homecloud/internal/crypto"
)

// fakeHomecloud answers the four remote endpoints for peer PID1.
func fakeHomecloud(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sessionid"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/listPeer":
			fmt.Fprint(w, `{"rtn":0,"peerList":[{"pid":"PID1","name":"nas","online":1}]}`)
		case "/list":
			fmt.Fprint(w, `{"rtn":0,"tasks":[{"id":"7","name":"movie.mkv","progress":5000}]}`)
		case "/urlCheck":
			u := r.URL.Query().Get("url")
			if strings.Contains(u, "bad") {
				fmt.Fprint(w, `{"rtn":15414}`)
				return
			}
			fmt.Fprintf(w, `{"rtn":0,"taskInfo":{"url":%q,"name":"movie.mkv","size":1024}}`, u)
		case "/createTask":
			fmt.Fprint(w, `{"rtn":0,"tasks":[{"id":1,"taskid":"99","url":"ed2k://good","result":0}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

const testSession = `session:
  user_id: "42"
  session_id: abc
`

func writeTestConfig(t *testing.T, session string, baseURL string) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`
remote:
  base_url: %s/
logging:
  level: "off"
database:
  path: %s
%s`, baseURL, filepath.Join(dir, "homecloud.db"), session)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// flags keep their values between executions
	outputFormat = "json"
	addPath = ""
	addNoHistory = false
	taskCategory = "downloading"
	taskPos = 0
	taskNumber = 10
	historyPeer, historyBatch, historyLimit = "", "", 50

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPeersCommand_YAML(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	out, err := execute(t, "--config", cfgPath, "-o", "yaml", "peers")
	require.NoError(t, err)

	var peers []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &peers))
	require.Len(t, peers, 1)
	assert.Equal(t, "PID1", peers[0]["pid"])
	assert.Equal(t, "nas", peers[0]["name"])
}

func TestTasksCommand(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	out, err := execute(t, "--config", cfgPath, "tasks", "PID1", "--category", "finished", "--number", "5")
	require.NoError(t, err)

	var tasks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "movie.mkv", tasks[0]["name"])

	_, err = execute(t, "--config", cfgPath, "tasks", "PID1", "--category", "bogus")
	assert.Error(t, err)
}

func TestCheckCommand_SkipsRejected(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	out, err := execute(t, "--config", cfgPath, "check", "PID1", "ed2k://good", "ed2k://bad")
	require.NoError(t, err)

	var descriptors []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &descriptors))
	require.Len(t, descriptors, 1)
	assert.Equal(t, "ed2k://good", descriptors[0]["url"])
	assert.Equal(t, float64(1024), descriptors[0]["filesize"])
}

func TestAddCommand_RecordsHistory(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	out, err := execute(t, "--config", cfgPath, "add", "PID1", "ed2k://good", "--path", "D:/dl/")
	require.NoError(t, err)

	var added addOutput
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.NotEmpty(t, added.BatchID)
	assert.Equal(t, "D:/dl/", added.Path)
	require.Len(t, added.Results, 1)
	assert.Equal(t, "99", added.Results[0].TaskID)

	out, err = execute(t, "--config", cfgPath, "history", "--batch", added.BatchID)
	require.NoError(t, err)
	assert.Contains(t, out, "ed2k://good")
	assert.Contains(t, out, `"total": 1`)
}

func TestAddCommand_NothingAccepted(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	out, err := execute(t, "--config", cfgPath, "add", "PID1", "ed2k://bad")
	require.NoError(t, err)

	var added addOutput
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	assert.Empty(t, added.BatchID)
	assert.Empty(t, added.Submitted)
	assert.Equal(t, "C:/TDDOWNLOAD/", added.Path)
}

func TestRemoteFailureIsReported(t *testing.T) {
	srv := fakeHomecloud(t)
	cfgPath := writeTestConfig(t, testSession, srv.URL)

	t.Setenv("HOMECLOUD_SESSION_SESSION_ID", "wrong")
	_, err := execute(t, "--config", cfgPath, "peers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEncryptCommand(t *testing.T) {
	salt, err := crypto.GenerateSalt()
	require.NoError(t, err)
	cfgPath := writeTestConfig(t, fmt.Sprintf("session:\n  session_id: abc\n  passphrase: hunter2\n  salt: %q\n", crypto.EncodeSalt(salt)), "http://127.0.0.1:1")

	out, err := execute(t, "--config", cfgPath, "encrypt", "cookie-value")
	require.NoError(t, err)

	encrypted := strings.TrimSpace(out)
	assert.True(t, crypto.IsEncrypted(encrypted))

	plain, err := crypto.NewSecretStore("hunter2", salt).Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "cookie-value", plain)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	cfgPath := writeTestConfig(t, testSession, "http://127.0.0.1:1")
	_, err := execute(t, "--config", cfgPath, "token")
	assert.Error(t, err)
}

func TestUnsupportedOutputFormat(t *testing.T) {
	cfgPath := writeTestConfig(t, testSession, "http://127.0.0.1:1")
	_, err := execute(t, "--config", cfgPath, "-o", "xml", "gen-salt")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestWriteOutput(t *testing.T) {
	v := map[string]any{"url": "magnet:?xt=urn:btih:abc&dn=a<b>"}

	var js bytes.Buffer
	require.NoError(t, writeOutput(&js, "json", v))
	assert.Contains(t, js.String(), "a<b>")

	var ym bytes.Buffer
	require.NoError(t, writeOutput(&ym, "yaml", v))
	var back map[string]any
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &back))
	assert.Equal(t, v, back)

	assert.Error(t, writeOutput(&bytes.Buffer{}, "toml", v))
}
