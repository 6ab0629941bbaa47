package usage

import (
	"encoding/json"
	"time"
)

// SessionEvent is a single record from a session JSONL file. Historical log
// formats spell several fields differently, so decoding goes through
// UnmarshalJSON which coalesces the known aliases.
type SessionEvent struct {
	Type      string
	Message   *EventMessage
	Timestamp string
	Usage     *TokenUsage
	CostUSD   *float64
	MessageID string
	RequestID string
	UUID      string
}

// EventMessage is the nested message object carried by assistant events.
type EventMessage struct {
	ID    string      `json:"id"`
	Role  string      `json:"role"`
	Model string      `json:"model"`
	Usage *TokenUsage `json:"usage"`
}

// TokenUsage holds the four token counters of one event. Absent fields
// decode as zero.
type TokenUsage struct {
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

func (e *SessionEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type         string        `json:"type"`
		Message      *EventMessage `json:"message"`
		Timestamp    string        `json:"timestamp"`
		Usage        *TokenUsage   `json:"usage"`
		CostCamel    *float64      `json:"costUSD"`
		CostSnake    *float64      `json:"cost_usd"`
		MessageID    string        `json:"message_id"`
		RequestCamel string        `json:"requestId"`
		RequestSnake string        `json:"request_id"`
		UUID         string        `json:"uuid"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Type = raw.Type
	e.Message = raw.Message
	e.Timestamp = raw.Timestamp
	e.Usage = raw.Usage
	e.CostUSD = raw.CostCamel
	if e.CostUSD == nil {
		e.CostUSD = raw.CostSnake
	}
	e.MessageID = raw.MessageID
	e.RequestID = raw.RequestCamel
	if e.RequestID == "" {
		e.RequestID = raw.RequestSnake
	}
	e.UUID = raw.UUID
	return nil
}

func (u *TokenUsage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Input         *int64 `json:"input_tokens"`
		InputCamel    *int64 `json:"inputTokens"`
		Prompt        *int64 `json:"prompt_tokens"`
		Output        *int64 `json:"output_tokens"`
		OutputCamel   *int64 `json:"outputTokens"`
		Completion    *int64 `json:"completion_tokens"`
		CacheCreate   *int64 `json:"cache_creation_input_tokens"`
		CacheCreateCC *int64 `json:"cacheCreationInputTokens"`
		CacheRead     *int64 `json:"cache_read_input_tokens"`
		CacheReadCC   *int64 `json:"cacheReadInputTokens"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.InputTokens = firstInt64(raw.Input, raw.InputCamel, raw.Prompt)
	u.OutputTokens = firstInt64(raw.Output, raw.OutputCamel, raw.Completion)
	u.CacheCreationTokens = firstInt64(raw.CacheCreate, raw.CacheCreateCC)
	u.CacheReadTokens = firstInt64(raw.CacheRead, raw.CacheReadCC)
	return nil
}

func firstInt64(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

// Entry is one normalized, costed usage record after parsing and dedup.
type Entry struct {
	Timestamp           time.Time `json:"timestamp"`
	Model               string    `json:"model"`
	InputTokens         int64     `json:"inputTokens"`
	OutputTokens        int64     `json:"outputTokens"`
	CacheCreationTokens int64     `json:"cacheCreationTokens"`
	CacheReadTokens     int64     `json:"cacheReadTokens"`
	CostUSD             float64   `json:"costUSD"`
	MessageID           string    `json:"messageId"`
	RequestID           string    `json:"requestId"`
}

// TotalTokens is input plus output. Cache tokens are tracked separately
// and never count toward block or burn-rate totals.
func (e Entry) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens
}

// Project describes one project directory under the data root.
type Project struct {
	EncodedPath  string   `json:"encodedPath"`
	DecodedPath  string   `json:"decodedPath"`
	DisplayName  string   `json:"displayName"`
	SessionFiles []string `json:"sessionFiles"`
}

// ProjectStats is the aggregate for a single project.
type ProjectStats struct {
	ProjectPath         string  `json:"projectPath"`
	DisplayName         string  `json:"displayName"`
	TotalInputTokens    int64   `json:"totalInputTokens"`
	TotalOutputTokens   int64   `json:"totalOutputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalCostUSD        float64 `json:"totalCostUsd"`
	SessionCount        int     `json:"sessionCount"`
	MessageCount        int     `json:"messageCount"`
	FirstActivity       string  `json:"firstActivity,omitempty"`
	LastActivity        string  `json:"lastActivity,omitempty"`
}

// DailyUsage is the aggregate for one UTC calendar day.
type DailyUsage struct {
	Date                string  `json:"date"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	CostUSD             float64 `json:"costUsd"`
	MessageCount        int     `json:"messageCount"`
}

// ModelStats is the aggregate for one model family.
type ModelStats struct {
	Model               string  `json:"model"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	CostUSD             float64 `json:"costUsd"`
	MessageCount        int     `json:"messageCount"`
	Percentage          float64 `json:"percentage"`
}

// SessionBlock is a 5-hour billing window.
type SessionBlock struct {
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	ActualEnd    time.Time `json:"actualEnd"`
	IsActive     bool      `json:"isActive"`
	TotalTokens  int64     `json:"totalTokens"`
	TotalCostUSD float64   `json:"totalCostUsd"`
	Entries      int       `json:"entries"`
}

// BurnRate is the 1-hour activity rate. A nil *BurnRate means no signal
// rather than a measured zero.
type BurnRate struct {
	TokensPerMinute float64 `json:"tokensPerMinute"`
	CostPerHour     float64 `json:"costPerHour"`
}

// TodayStats is the slice of the daily series matching the local calendar
// date at snapshot time.
type TodayStats struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalTokens  int64   `json:"totalTokens"`
	CostUSD      float64 `json:"costUsd"`
	MessageCount int     `json:"messageCount"`
}

// OverallStats sums the per-project aggregates and carries session timing.
type OverallStats struct {
	TotalInputTokens    int64        `json:"totalInputTokens"`
	TotalOutputTokens   int64        `json:"totalOutputTokens"`
	CacheCreationTokens int64        `json:"cacheCreationTokens"`
	CacheReadTokens     int64        `json:"cacheReadTokens"`
	TotalCostUSD        float64      `json:"totalCostUsd"`
	TotalMessages       int          `json:"totalMessages"`
	TotalSessions       int          `json:"totalSessions"`
	ProjectCount        int          `json:"projectCount"`
	ModelDistribution   []ModelStats `json:"modelDistribution"`
	SessionStartTime    *time.Time   `json:"sessionStartTime,omitempty"`
	TimeToResetMinutes  int          `json:"timeToResetMinutes"`
	BurnRate            *BurnRate    `json:"burnRate,omitempty"`
	TodayStats          TodayStats   `json:"todayStats"`
}

// Snapshot is a complete aggregation result.
type Snapshot struct {
	Projects     []ProjectStats `json:"projects"`
	DailyUsage   []DailyUsage   `json:"dailyUsage"`
	OverallStats OverallStats   `json:"overallStats"`
	DataSource   string         `json:"dataSource,omitempty"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// Delta describes what changed between two refresh cycles.
type Delta struct {
	HasChanges      bool           `json:"hasChanges"`
	FullRefresh     bool           `json:"fullRefresh"`
	UpdatedProjects []ProjectStats `json:"updatedProjects,omitempty"`
	OverallStats    *OverallStats  `json:"overallStats,omitempty"`
	DailyUsage      []DailyUsage   `json:"dailyUsage,omitempty"`
}

// FileChanges is the three-way diff between the file registry and the
// directory contents on disk.
type FileChanges struct {
	New      []string
	Modified []string
	Deleted  []string
}

// Empty reports whether no files changed.
func (c FileChanges) Empty() bool {
	return len(c.New) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}
