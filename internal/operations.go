package internal

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Backend operation names
const (
	OpGenerate     = "generate"
	OpClearHistory = "clear_history"
	OpSyncHistory  = "sync_history"
	OpGetProviders = "get_providers"
	OpFileList     = "file_list"
	OpFileRead     = "file_read"
	OpFileSave     = "file_save"
	OpGetConfig    = "get_config"
)

// SyncHistoryLimit is the number of messages requested by sync_history
const SyncHistoryLimit = 50

// AttachmentPayload is an attachment as sent with generate
type AttachmentPayload struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// GenerateRequest is the payload of generate
type GenerateRequest struct {
	Prompt          string              `json:"prompt"`
	ProviderID      string              `json:"provider_id,omitempty"`
	Attachments     []AttachmentPayload `json:"attachments"`
	IncludeEntities []string            `json:"include_entities"`
	FilePath        string              `json:"file_path,omitempty"`
	Code            string              `json:"code,omitempty"`
	UserID          string              `json:"user_id,omitempty"`
}

// GenerateResult is the parsed result of generate
type GenerateResult struct {
	Text         string
	Code         string
	ProviderName string
}

type generateResponse struct {
	ResponseText *string `json:"response_text"`
	ResponseCode string  `json:"response_code"`
	ProviderName string  `json:"provider_name"`
}

// ParseGenerateResult decodes a generate result. A JSON object is read
// field by field; anything else is used verbatim as the response text.
func ParseGenerateResult(raw json.RawMessage) GenerateResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp generateResponse
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			res := GenerateResult{Code: resp.ResponseCode, ProviderName: resp.ProviderName}
			if resp.ResponseText != nil {
				res.Text = *resp.ResponseText
			}
			return res
		}
	}
	var s string
	if json.Unmarshal(trimmed, &s) == nil {
		return GenerateResult{Text: s}
	}
	if string(trimmed) == "null" {
		return GenerateResult{}
	}
	return GenerateResult{Text: string(trimmed)}
}

// UserRequest carries the optional user identity
type UserRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// SyncHistoryRequest is the payload of sync_history
type SyncHistoryRequest struct {
	Limit  int    `json:"limit"`
	UserID string `json:"user_id,omitempty"`
}

// SyncHistoryResponse is the result of sync_history. Messages is nil when
// the backend sent no messages field.
type SyncHistoryResponse struct {
	Messages []RawHistoryMessage `json:"messages"`
}

// ProvidersResponse is the result of get_providers
type ProvidersResponse struct {
	Providers       ProviderSet `json:"providers"`
	DefaultProvider string      `json:"default_provider"`
}

// FileListRequest is the payload of file_list
type FileListRequest struct {
	Path string `json:"path"`
}

// FileListResponse is the result of file_list
type FileListResponse struct {
	Items []ExplorerItem `json:"items"`
}

// FileReadRequest is the payload of file_read
type FileReadRequest struct {
	Path string `json:"path"`
}

// FileReadResponse is the result of file_read
type FileReadResponse struct {
	Content string `json:"content"`
}

// FileSaveRequest is the payload of file_save
type FileSaveRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ConfigResponse is the result of get_config
type ConfigResponse struct {
	AllowedFiles map[string][]string `json:"allowed_files"`
}

// quoteOrEmpty renders an optional string for log lines
func quoteOrEmpty(s string) string {
	if s == "" {
		return "<none>"
	}
	return strconv.Quote(s)
}
