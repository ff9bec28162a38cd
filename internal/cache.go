package internal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// CacheKeyPrefix prefixes every cached session record
	CacheKeyPrefix = "ai_code_task_data"
	// DefaultMaxHistory is the number of transcript entries kept on save
	DefaultMaxHistory = 250
	// DefaultFallbackHistory is the number of entries kept by a degraded save
	DefaultFallbackHistory = 5
)

// SaveOutcome reports how a cache write went
type SaveOutcome int

const (
	SaveFull SaveOutcome = iota
	SaveDegraded
	SaveFailed
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveFull:
		return "full"
	case SaveDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// CacheKey returns the cache key for a user identity
func CacheKey(userID string) string {
	if userID == "" {
		return CacheKeyPrefix
	}
	return CacheKeyPrefix + "_" + userID
}

// cachedAttachment is the persisted form of an attachment
type cachedAttachment struct {
	Filename      string `json:"filename"`
	Content       string `json:"content,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int    `json:"contentLength,omitempty"`
}

// cachedMessage is the persisted form of a transcript message.
// Text is the legacy name of Content and is only read.
type cachedMessage struct {
	ID               string             `json:"id,omitempty"`
	Role             Role               `json:"role"`
	Content          *string            `json:"content,omitempty"`
	Text             *string            `json:"text,omitempty"`
	Code             string             `json:"code,omitempty"`
	ProviderName     string             `json:"providerName,omitempty"`
	Attachments      []cachedAttachment `json:"attachments,omitempty"`
	IncludedEntities []string           `json:"include_entities,omitempty"`
	FilePath         string             `json:"filepath,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
}

// cacheRecord is the persisted form of a session
type cacheRecord struct {
	ChatHistory        []cachedMessage `json:"chatHistory"`
	CurrentCode        string          `json:"currentCode"`
	SendOnEnter        *bool           `json:"sendOnEnter,omitempty"`
	IsCodeUserModified bool            `json:"isCodeUserModified"`
	SelectedProvider   string          `json:"selectedProvider"`
	ActiveFilePath     *string         `json:"activeFilePath"`
	SelectedEntities   []string        `json:"selectedEntities"`
}

// CacheEntry summarises one cached session
type CacheEntry struct {
	Key              string
	MessageCount     int
	ActiveFilePath   string
	SelectedProvider string
	LastMessageAt    time.Time
}

// SessionCache persists session state to a Store
type SessionCache struct {
	store           Store
	maxHistory      int
	fallbackHistory int
	mu              sync.Mutex
}

// NewSessionCache creates a cache over store. Zero limits use the defaults.
func NewSessionCache(store Store, maxHistory, fallbackHistory int) *SessionCache {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if fallbackHistory <= 0 {
		fallbackHistory = DefaultFallbackHistory
	}
	return &SessionCache{store: store, maxHistory: maxHistory, fallbackHistory: fallbackHistory}
}

// Save writes state under key. A failed write is retried with a minimal
// snapshot; a second failure is logged and swallowed.
func (c *SessionCache) Save(ctx context.Context, key string, state SessionState) SaveOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(toRecord(state, c.maxHistory))
	if err == nil {
		err = c.store.Put(ctx, key, data)
	}
	if err == nil {
		return SaveFull
	}
	LogWarn("Failed to save session %s, retrying with the last %d messages: %v", key, c.fallbackHistory, err)

	data, err = json.Marshal(toRecord(state, c.fallbackHistory))
	if err == nil {
		err = c.store.Put(ctx, key, data)
	}
	if err == nil {
		return SaveDegraded
	}
	LogError("Failed to save minimal session %s: %v", key, err)
	return SaveFailed
}

// Load reads the state stored under key. Missing or unreadable records
// yield default state and false.
func (c *SessionCache) Load(ctx context.Context, key string) (SessionState, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			LogError("Failed to load session %s: %v", key, err)
		}
		return DefaultSessionState(), false
	}

	var rec cacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		LogError("%v", &ParseError{Source: "cache", Key: key, Err: err})
		return DefaultSessionState(), false
	}
	return fromRecord(rec), true
}

// Delete removes the record stored under key
func (c *SessionCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Delete(ctx, key)
}

// List summarises every cached session
func (c *SessionCache) List(ctx context.Context) ([]CacheEntry, error) {
	keys, err := c.store.Keys(ctx, CacheKeyPrefix)
	if err != nil {
		return nil, err
	}

	entries := make([]CacheEntry, 0, len(keys))
	for _, key := range keys {
		state, ok := c.Load(ctx, key)
		if !ok {
			continue
		}
		entry := CacheEntry{
			Key:              key,
			MessageCount:     len(state.Transcript),
			ActiveFilePath:   state.ActiveFilePath,
			SelectedProvider: state.SelectedProvider,
		}
		if n := len(state.Transcript); n > 0 {
			entry.LastMessageAt = state.Transcript[n-1].Timestamp
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// UserIDFromKey extracts the user identity from a cache key
func UserIDFromKey(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, CacheKeyPrefix), "_")
}

func toRecord(state SessionState, keep int) cacheRecord {
	transcript := state.Transcript
	if len(transcript) > keep {
		transcript = transcript[len(transcript)-keep:]
	}

	history := make([]cachedMessage, 0, len(transcript))
	for _, msg := range transcript {
		history = append(history, toCachedMessage(msg))
	}

	sendOnEnter := state.SendOnEnter
	rec := cacheRecord{
		ChatHistory:        history,
		CurrentCode:        state.CurrentCode,
		SendOnEnter:        &sendOnEnter,
		IsCodeUserModified: state.IsCodeModified,
		SelectedProvider:   state.SelectedProvider,
		SelectedEntities:   state.SelectedEntities,
	}
	if rec.SelectedEntities == nil {
		rec.SelectedEntities = []string{}
	}
	if state.ActiveFilePath != "" {
		path := state.ActiveFilePath
		rec.ActiveFilePath = &path
	}
	return rec
}

func toCachedMessage(msg TranscriptMessage) cachedMessage {
	content := msg.Content
	cm := cachedMessage{
		ID:               msg.ID,
		Role:             msg.Role,
		Content:          &content,
		Code:             msg.Code,
		ProviderName:     msg.ProviderName,
		IncludedEntities: msg.IncludedEntities,
		FilePath:         msg.FilePath,
		Timestamp:        msg.Timestamp,
	}

	strip := msg.Role == RoleUser
	for _, att := range msg.Attachments {
		ca := cachedAttachment{Filename: att.Filename}
		switch {
		case strip && att.HasContent():
			ca.ContentLength = len(att.Content)
		case strip:
			ca.ContentLength = att.ContentLength
		default:
			ca.Content = att.Content
			ca.ContentType = att.ContentType
			ca.ContentLength = att.ContentLength
		}
		cm.Attachments = append(cm.Attachments, ca)
	}
	return cm
}

func fromRecord(rec cacheRecord) SessionState {
	state := DefaultSessionState()
	state.CurrentCode = rec.CurrentCode
	state.IsCodeModified = rec.IsCodeUserModified
	state.SelectedProvider = rec.SelectedProvider
	if rec.SendOnEnter != nil {
		state.SendOnEnter = *rec.SendOnEnter
	}
	if rec.ActiveFilePath != nil {
		state.ActiveFilePath = *rec.ActiveFilePath
	}
	if rec.SelectedEntities != nil {
		state.SelectedEntities = rec.SelectedEntities
	}

	for _, cm := range rec.ChatHistory {
		msg := TranscriptMessage{
			ID:               cm.ID,
			Role:             cm.Role,
			Code:             cm.Code,
			ProviderName:     cm.ProviderName,
			IncludedEntities: cm.IncludedEntities,
			FilePath:         cm.FilePath,
			Timestamp:        cm.Timestamp,
		}
		switch {
		case cm.Content != nil:
			msg.Content = *cm.Content
		case cm.Text != nil:
			msg.Content = *cm.Text
		}
		for _, ca := range cm.Attachments {
			msg.Attachments = append(msg.Attachments, Attachment(ca))
		}
		state.Transcript = append(state.Transcript, msg)
	}
	return state
}
