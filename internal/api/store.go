package api

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	DefaultRecordTTL = 15 * time.Minute
	defaultRecordCap = 1024
)

// Record is a finished generation call as returned by the API.
type Record struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	CreatedAt    int64  `json:"created_at"`
	Model        string `json:"model,omitempty"`
	Prompt       string `json:"prompt"`
	Text         string `json:"text"`
	Reason       string `json:"reason"`
	TimedOut     bool   `json:"timed_out"`
	StopSequence string `json:"stop_sequence,omitempty"`
	Error        string `json:"error,omitempty"`
	Usage        Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	DurationMS       int64   `json:"duration_ms"`
	TokensPerSecond  float64 `json:"tokens_per_second"`
}

// RecordStore keeps generation records for a fixed time after creation.
type RecordStore struct {
	cache *ttlcache.Cache[string, Record]
}

// NewRecordStore starts a store whose records expire ttl after they are
// written. Reads do not extend the lifetime. Call Stop to end the expiry
// loop.
func NewRecordStore(ttl time.Duration) *RecordStore {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	c := ttlcache.New[string, Record](
		ttlcache.WithTTL[string, Record](ttl),
		ttlcache.WithCapacity[string, Record](defaultRecordCap),
		ttlcache.WithDisableTouchOnHit[string, Record](),
	)
	go c.Start()
	return &RecordStore{cache: c}
}

func (s *RecordStore) Put(r Record) {
	s.cache.Set(r.ID, r, ttlcache.DefaultTTL)
}

func (s *RecordStore) Get(id string) (Record, bool) {
	item := s.cache.Get(id)
	if item == nil {
		return Record{}, false
	}
	return item.Value(), true
}

func (s *RecordStore) Len() int {
	return s.cache.Len()
}

func (s *RecordStore) Stop() {
	s.cache.Stop()
}
