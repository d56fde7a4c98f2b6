package db

import "time"

// ===========================
// NTFY MODELS
// ===========================

// Topic is an ntfy publish/subscribe channel managed by the console
type Topic struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	AccessLevel     string     `json:"access_level"` // read-write, read-only, write-only, deny
	RequiresAuth    bool       `json:"requires_auth"`
	DefaultPriority int        `json:"default_priority"`
	DefaultTags     []string   `json:"default_tags"`
	Enabled         bool       `json:"enabled"`
	MessageCount    int        `json:"message_count"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreateTopicRequest struct {
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	AccessLevel     string   `json:"access_level"`
	RequiresAuth    bool     `json:"requires_auth"`
	DefaultPriority int      `json:"default_priority"`
	DefaultTags     []string `json:"default_tags"`
}

// UpdateTopicRequest carries the editable fields; Name is accepted only to
// reject renames.
type UpdateTopicRequest struct {
	Name            *string  `json:"name,omitempty"`
	Description     *string  `json:"description,omitempty"`
	AccessLevel     *string  `json:"access_level,omitempty"`
	RequiresAuth    *bool    `json:"requires_auth,omitempty"`
	DefaultPriority *int     `json:"default_priority,omitempty"`
	DefaultTags     []string `json:"default_tags,omitempty"`
	Enabled         *bool    `json:"enabled,omitempty"`
}

// TopicCreated is returned once after creation so the console can show how
// to subscribe and how to reference the topic from n8n.
type TopicCreated struct {
	Topic          Topic  `json:"topic"`
	SubscribeTopic string `json:"subscribe_topic"`
	WebhookSlug    string `json:"webhook_slug"`
}

// MessageTemplate renders titles and bodies from JSON payloads
type MessageTemplate struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	TemplateType    string     `json:"template_type"` // custom, github, grafana, alertmanager
	TitleTemplate   string     `json:"title_template"`
	MessageTemplate string     `json:"message_template"`
	DefaultPriority int        `json:"default_priority"`
	UseMarkdown     bool       `json:"use_markdown"`
	DefaultTags     []string   `json:"default_tags"`
	SampleJSON      string     `json:"sample_json"`
	UseCount        int        `json:"use_count"`
	LastUsed        *time.Time `json:"last_used,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type SaveTemplateRequest struct {
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	TemplateType    string   `json:"template_type"`
	TitleTemplate   string   `json:"title_template"`
	MessageTemplate string   `json:"message_template" binding:"required"`
	DefaultPriority int      `json:"default_priority"`
	UseMarkdown     bool     `json:"use_markdown"`
	DefaultTags     []string `json:"default_tags"`
	SampleJSON      string   `json:"sample_json"`
}

type RenderTemplateRequest struct {
	Payload map[string]interface{} `json:"payload"`
}

type RenderedMessage struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
	Markdown bool     `json:"markdown"`
}

// NtfyAction is an action button attached to an ntfy message
type NtfyAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Clear  bool   `json:"clear,omitempty"`
}

// SavedMessage is a reusable composed message
type SavedMessage struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Topic     string       `json:"topic"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Priority  int          `json:"priority"`
	Tags      []string     `json:"tags"`
	ClickURL  string       `json:"click_url"`
	AttachURL string       `json:"attach_url"`
	IconURL   string       `json:"icon_url"`
	Delay     string       `json:"delay"`
	Email     string       `json:"email"`
	Actions   []NtfyAction `json:"actions"`
	UseCount  int          `json:"use_count"`
	LastUsed  *time.Time   `json:"last_used,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ComposeMessageRequest is what the message composer submits
type ComposeMessageRequest struct {
	Topic     string       `json:"topic" binding:"required"`
	Title     string       `json:"title"`
	Message   string       `json:"message" binding:"required"`
	Priority  int          `json:"priority"`
	Tags      []string     `json:"tags"`
	ClickURL  string       `json:"click_url"`
	AttachURL string       `json:"attach_url"`
	IconURL   string       `json:"icon_url"`
	Delay     string       `json:"delay"`
	Email     string       `json:"email"`
	Actions   []NtfyAction `json:"actions"`
	Markdown  bool         `json:"markdown"`
	Source    string       `json:"source"`
}

// Message history statuses
const (
	MessageStatusSent      = "sent"
	MessageStatusScheduled = "scheduled"
	MessageStatusFailed    = "failed"
)

// HistoryEntry records every publish attempt
type HistoryEntry struct {
	ID           string     `json:"id"`
	Topic        string     `json:"topic"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Tags         []string   `json:"tags"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ResponseID   string     `json:"response_id,omitempty"`
}

// Page is a generic "load more" page
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// NtfyServerSettings is the singleton ntfy server configuration
type NtfyServerSettings struct {
	BaseURL         string    `json:"base_url"`
	DefaultTopic    string    `json:"default_topic"`
	AuthToken       string    `json:"auth_token,omitempty"`
	DefaultPriority int       `json:"default_priority"`
	Enabled         bool      `json:"enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type UpdateNtfyServerRequest struct {
	BaseURL         *string `json:"base_url,omitempty"`
	DefaultTopic    *string `json:"default_topic,omitempty"`
	AuthToken       *string `json:"auth_token,omitempty"`
	DefaultPriority *int    `json:"default_priority,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
}

// ===========================
// CHANNEL MODELS
// ===========================

// Channel types
const (
	ChannelNtfy     = "ntfy"
	ChannelSlack    = "slack"
	ChannelDiscord  = "discord"
	ChannelWebhook  = "webhook"
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelFCM      = "fcm"
)

// Channel is a configured notification destination
type Channel struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	ChannelType string                 `json:"channel_type"`
	Config      map[string]interface{} `json:"config"`
	Enabled     bool                   `json:"enabled"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type SaveChannelRequest struct {
	Name        string                 `json:"name" binding:"required"`
	ChannelType string                 `json:"channel_type" binding:"required"`
	Config      map[string]interface{} `json:"config"`
	Enabled     *bool                  `json:"enabled,omitempty"`
}

// ChannelGroup is a named collection of channels
type ChannelGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ChannelIDs  []string  `json:"channel_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type SaveGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	ChannelIDs  []string `json:"channel_ids"`
}

// ===========================
// SYSTEM NOTIFICATION MODELS
// ===========================

// NotificationEvent is the rule for one system event type
type NotificationEvent struct {
	ID                 string               `json:"id"`
	EventType          string               `json:"event_type"`
	Category           string               `json:"category"`
	DisplayName        string               `json:"display_name"`
	Description        string               `json:"description"`
	Severity           string               `json:"severity"`
	Frequency          string               `json:"frequency"`
	CooldownMinutes    int                  `json:"cooldown_minutes"`
	Enabled            bool                 `json:"enabled"`
	Targets            []NotificationTarget `json:"targets"`
	EffectivelyEnabled bool                 `json:"effectively_enabled"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Target types
const (
	TargetChannel = "channel"
	TargetGroup   = "group"
)

// NotificationTarget attaches a channel or group to an event at an escalation level
type NotificationTarget struct {
	ID                       string  `json:"id"`
	EventID                  string  `json:"event_id"`
	TargetType               string  `json:"target_type"`
	ChannelID                *string `json:"channel_id,omitempty"`
	GroupID                  *string `json:"group_id,omitempty"`
	EscalationLevel          int     `json:"escalation_level"`
	EscalationTimeoutMinutes int     `json:"escalation_timeout_minutes"`
	TargetName               string  `json:"target_name,omitempty"`
}

// RefID returns the referenced channel or group id.
func (t NotificationTarget) RefID() string {
	if t.TargetType == TargetGroup && t.GroupID != nil {
		return *t.GroupID
	}
	if t.ChannelID != nil {
		return *t.ChannelID
	}
	return ""
}

type UpdateEventRequest struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	Severity        *string `json:"severity,omitempty"`
	Frequency       *string `json:"frequency,omitempty"`
	CooldownMinutes *int    `json:"cooldown_minutes,omitempty"`
}

type AddTargetRequest struct {
	TargetType               string `json:"target_type" binding:"required"`
	ChannelID                string `json:"channel_id"`
	GroupID                  string `json:"group_id"`
	EscalationLevel          int    `json:"escalation_level"`
	EscalationTimeoutMinutes int    `json:"escalation_timeout_minutes"`
}

// CategorySummary is the enabled/total count shown per category header
type CategorySummary struct {
	Enabled int `json:"enabled"`
	Total   int `json:"total"`
}

type EventsResponse struct {
	Events     []NotificationEvent        `json:"events"`
	Categories map[string]CategorySummary `json:"categories"`
}

// AvailableTargets lists what can still be attached to an event
type AvailableTargets struct {
	Channels []Channel      `json:"channels"`
	Groups   []ChannelGroup `json:"groups"`
}

// GlobalSettings is the singleton suppression/rate-limit configuration
type GlobalSettings struct {
	MaintenanceMode         bool       `json:"maintenance_mode"`
	MaintenanceUntil        *time.Time `json:"maintenance_until,omitempty"`
	MaintenanceReason       string     `json:"maintenance_reason"`
	QuietHoursEnabled       bool       `json:"quiet_hours_enabled"`
	QuietHoursStart         string     `json:"quiet_hours_start"`
	QuietHoursEnd           string     `json:"quiet_hours_end"`
	MaxNotificationsPerHour int        `json:"max_notifications_per_hour"`
	NotificationsThisHour   int        `json:"notifications_this_hour"`
	EmergencyContactID      *string    `json:"emergency_contact_id,omitempty"`
	DigestEnabled           bool       `json:"digest_enabled"`
	DigestTime              string     `json:"digest_time"`
	InQuietHours            bool       `json:"in_quiet_hours"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// MaintenanceActive reports whether maintenance mode currently applies.
func (g GlobalSettings) MaintenanceActive(now time.Time) bool {
	if !g.MaintenanceMode {
		return false
	}
	return g.MaintenanceUntil == nil || now.Before(*g.MaintenanceUntil)
}

type UpdateGlobalSettingsRequest struct {
	MaintenanceMode         *bool      `json:"maintenance_mode,omitempty"`
	MaintenanceUntil        *time.Time `json:"maintenance_until,omitempty"`
	MaintenanceReason       *string    `json:"maintenance_reason,omitempty"`
	QuietHoursEnabled       *bool      `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart         *string    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd           *string    `json:"quiet_hours_end,omitempty"`
	MaxNotificationsPerHour *int       `json:"max_notifications_per_hour,omitempty"`
	EmergencyContactID      *string    `json:"emergency_contact_id,omitempty"`
	DigestEnabled           *bool      `json:"digest_enabled,omitempty"`
	DigestTime              *string    `json:"digest_time,omitempty"`
}

// ContainerConfig holds per-container monitoring flags
type ContainerConfig struct {
	ContainerName    string    `json:"container_name"`
	MonitorUnhealthy bool      `json:"monitor_unhealthy"`
	MonitorRestart   bool      `json:"monitor_restart"`
	MonitorStopped   bool      `json:"monitor_stopped"`
	MonitorResources bool      `json:"monitor_resources"`
	CPUThreshold     int       `json:"cpu_threshold"`
	MemoryThreshold  int       `json:"memory_threshold"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// System notification history statuses
const (
	NotificationSent       = "sent"
	NotificationSuppressed = "suppressed"
	NotificationFailed     = "failed"
	NotificationEscalated  = "escalated"
	NotificationDigested   = "digested"
)

// SystemNotification is one row of the audit trail
type SystemNotification struct {
	ID              string     `json:"id"`
	EventType       string     `json:"event_type"`
	Severity        string     `json:"severity"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Status          string     `json:"status"`
	TargetLabel     string     `json:"target_label,omitempty"`
	ChannelID       *string    `json:"channel_id,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SystemEvent is an occurrence reported by the host (backup finished,
// container unhealthy, certificate expiring, ...)
type SystemEvent struct {
	EventType  string            `json:"event_type" binding:"required"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Severity   string            `json:"severity,omitempty"`
	Source     string            `json:"source,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// PendingEscalation is a level 2 delivery waiting for its timeout
type PendingEscalation struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	EventType      string    `json:"event_type"`
	Severity       string    `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	TargetType     string    `json:"target_type"`
	TargetRefID    string    `json:"target_ref_id"`
	DueAt          time.Time `json:"due_at"`
	Status         string    `json:"status"` // pending, fired, cancelled
}

// DigestEntry is a low priority event held for the daily digest
type DigestEntry struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ===========================
// ENVIRONMENT MODELS
// ===========================

// EnvVariable is one variable of the managed .env file merged with its schema
type EnvVariable struct {
	Key         string   `json:"key" yaml:"key"`
	Value       string   `json:"value" yaml:"-"`
	Default     string   `json:"default" yaml:"default"`
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description" yaml:"description"`
	Required    bool     `json:"required" yaml:"required"`
	Sensitive   bool     `json:"sensitive" yaml:"sensitive"`
	Editable    bool     `json:"editable" yaml:"editable"`
	IsCustom    bool     `json:"is_custom" yaml:"-"`
	Warning     string   `json:"warning,omitempty" yaml:"warning"`
	Type        string   `json:"type" yaml:"type"` // string, number, boolean, url, email
	Group       string   `json:"group" yaml:"group"`
	Containers  []string `json:"-" yaml:"containers"`
}

type EnvGroup struct {
	Name      string        `json:"name"`
	Variables []EnvVariable `json:"variables"`
}

type EnvConfigResponse struct {
	Groups           []EnvGroup `json:"groups"`
	RiskAcknowledged bool       `json:"risk_acknowledged"`
}

type SetEnvRequest struct {
	Value string `json:"value"`
}

type AddEnvRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// EnvBackup is a file snapshot of the whole variable set
type EnvBackup struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

type RestoreEnvRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// Tri-state check results
const (
	CheckSuccess = "success"
	CheckWarning = "warning"
	CheckFailure = "failure"
)

type HealthCheckRequest struct {
	Changes map[string]string `json:"changes"`
}

type HealthCheckResult struct {
	Status   string   `json:"status"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type RestartContainersRequest struct {
	Containers []string `json:"containers" binding:"required"`
}

type RestartResult struct {
	Container string `json:"container"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ===========================
// BACKUP MODELS
// ===========================

// Backup job statuses
const (
	BackupPending   = "pending"
	BackupRunning   = "running"
	BackupCompleted = "completed"
	BackupFailed    = "failed"
)

// Backup is an archive of the n8n data directory
type Backup struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Size        int64      `json:"size"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (b Backup) Done() bool {
	return b.Status == BackupCompleted || b.Status == BackupFailed
}

type VerifyResult struct {
	Status  string `json:"status"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
	Message string `json:"message"`
}
