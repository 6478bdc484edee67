// Package types defines shared types for the homecloud remote-download client.
package types

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Wire constants for the homecloud remote API.
const (
	DefaultBaseURL      = "http://homecloud.yuancheng.xunlei.com/"
	DefaultDownloadPath = "C:/TDDOWNLOAD/"

	ProtocolVersion     = 2
	ChannelTypeDefault  = 0 // list, urlCheck and createTask
	ChannelTypePeerList = 2
	PeerListType        = 0
	URLCheckType        = 1

	DefaultListLimit = 10
)

// Session is the authenticated transport the remote client issues requests through.
// Cookies or tokens may be refreshed by the implementation; callers only read through it.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
}

// ClientConfig holds configuration for the remote client.
type ClientConfig struct {
	BaseURL     string
	DefaultPath string // download directory used when SubmitTasks gets an empty path
}

// ListType selects which task list a peer returns.
type ListType int

const (
	ListDownloading ListType = 0
	ListFinished    ListType = 1
	ListRecycle     ListType = 2
	ListFailed      ListType = 3
)

var listTypeNames = map[ListType]string{
	ListDownloading: "downloading",
	ListFinished:    "finished",
	ListRecycle:     "recycle",
	ListFailed:      "failed",
}

func (t ListType) String() string {
	if name, ok := listTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ListType(%d)", int(t))
}

// Valid reports whether t is one of the known list categories.
func (t ListType) Valid() bool {
	_, ok := listTypeNames[t]
	return ok
}

// ParseListType converts a category name ("downloading", "finished", "recycle", "failed")
// or its wire number into a ListType.
func ParseListType(name string) (ListType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if n, err := strconv.Atoi(name); err == nil {
		if t := ListType(n); t.Valid() {
			return t, nil
		}
		return 0, fmt.Errorf("unknown task category %q", name)
	}
	for t, n := range listTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown task category %q", name)
}

// Peer is a remote download device registered to the account.
// Raw holds the object exactly as the server sent it.
type Peer struct {
	PID           string `json:"pid"`
	Name          string `json:"name"`
	Online        int    `json:"online"`
	Status        int    `json:"status"`
	LocalIP       string `json:"localIP"`
	Location      string `json:"location"`
	Company       string `json:"company"`
	Category      string `json:"category"`
	AccessCode    string `json:"accesscode"`
	PathList      string `json:"path_list"`
	Type          int    `json:"type"`
	VodPort       int    `json:"vodPort"`
	LastLoginTime int64  `json:"lastLoginTime"`
	DeviceVersion int64  `json:"deviceVersion"`

	Raw json.RawMessage `json:"-"`
}

// IsOnline reports whether the peer is currently connected.
func (p *Peer) IsOnline() bool {
	return p.Online == 1
}

func (p *Peer) UnmarshalJSON(data []byte) error {
	type alias Peer
	var a alias
	if err := decodeLenient(data, &a); err != nil {
		return err
	}
	*p = Peer(a)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (p Peer) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type alias Peer
	return json.Marshal(alias(p))
}

// decodeLenient fills the typed fields it can. A field whose JSON type
// differs from the struct stays zero instead of failing the whole object;
// the caller keeps the raw bytes either way.
func decodeLenient(data []byte, v any) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return json.Unmarshal(data, v)
	}
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// Task is the listing view of a download task on a peer. The channel blocks are
// passed through without interpretation.
type Task struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	URL           string          `json:"url"`
	Path          string          `json:"path"`
	Type          int             `json:"type"`
	Size          int64           `json:"size"`
	Progress      int             `json:"progress"`
	State         int             `json:"state"`
	Speed         int64           `json:"speed"`
	FailCode      int             `json:"failCode"`
	CreateTime    int64           `json:"createTime"`
	CompleteTime  int64           `json:"completeTime"`
	DownTime      int64           `json:"downTime"`
	RemainTime    int64           `json:"remainTime"`
	SubList       json.RawMessage `json:"subList,omitempty"`
	VipChannel    json.RawMessage `json:"vipChannel,omitempty"`
	LixianChannel json.RawMessage `json:"lixianChannel,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	var a alias
	if err := decodeLenient(data, &a); err != nil {
		return err
	}
	*t = Task(a)
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	if len(t.Raw) > 0 {
		return t.Raw, nil
	}
	type alias Task
	return json.Marshal(alias(t))
}

// TaskDescriptor is the submission view of a task, produced by URL validation.
// GCID and CID are always empty; content hashes are not computed client side.
type TaskDescriptor struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	FileSize int64  `json:"filesize"`
	GCID     string `json:"gcid"`
	CID      string `json:"cid"`
}

// TaskInfo is the payload of a urlCheck response.
type TaskInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Type     int    `json:"type"`
	Size     int64  `json:"size"`
	FailCode int    `json:"failCode"`
}

// Descriptor converts the server-normalized info into a submission descriptor.
func (i *TaskInfo) Descriptor() TaskDescriptor {
	return TaskDescriptor{
		URL:      i.URL,
		Name:     i.Name,
		FileSize: i.Size,
		GCID:     "",
		CID:      "",
	}
}

// SubmittedTask is the per-task outcome reported by createTask.
type SubmittedTask struct {
	ID     int    `json:"id"`
	TaskID string `json:"taskid"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Result int    `json:"result"`
	Msg    string `json:"msg"`
}

// SubmitResult is the createTask envelope. The zero value means nothing was submitted.
type SubmitResult struct {
	Rtn   int             `json:"rtn"`
	Tasks []SubmittedTask `json:"tasks"`

	Envelope *Envelope `json:"-"`
}

// Empty reports whether the result came from a short-circuited empty submission.
func (r *SubmitResult) Empty() bool {
	return r.Envelope == nil
}
