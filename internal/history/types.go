package history

import "time"

// Entry is one submitted task as recorded after createTask returned.
type Entry struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batchId"`
	PeerID    string    `json:"peerId"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	FileSize  int64     `json:"filesize"`
	Rtn       int       `json:"rtn"`
	Result    *int      `json:"result,omitempty"` // per-task result code, absent if the server sent none
	TaskID    string    `json:"taskId,omitempty"`
	Msg       string    `json:"msg,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions filters history listings.
type ListOptions struct {
	PeerID  string
	BatchID string
	Limit   int
}

// ListResponse is a page of history entries.
type ListResponse struct {
	Items []*Entry `json:"items"`
	Total int64    `json:"total"`
}
