package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/rules"
)

// HourlyCounterKey is the redis counter of notifications sent in the hour of t.
func HourlyCounterKey(t time.Time) string {
	return "sysnotif:sent:" + t.UTC().Format("2006010215")
}

// CooldownKey marks an event type as recently notified.
func CooldownKey(eventType string) string {
	return "sysnotif:cooldown:" + eventType
}

// SystemNotificationService manages event rules, their targets, the global
// suppression settings, container monitoring flags and the audit trail.
type SystemNotificationService struct {
	PG       *sql.DB
	Redis    *redis.Client
	Channels *ChannelService
	// Location is the operator's timezone for quiet hours and the digest;
	// nil means the process timezone.
	Location *time.Location
	now      func() time.Time
}

func NewSystemNotificationService(pg *sql.DB, rdb *redis.Client, channels *ChannelService) *SystemNotificationService {
	return &SystemNotificationService{PG: pg, Redis: rdb, Channels: channels, now: time.Now}
}

// LocalTime converts t to the operator's timezone.
func (s *SystemNotificationService) LocalTime(t time.Time) time.Time {
	if s.Location == nil {
		return t
	}
	return t.In(s.Location)
}

// EVENTS

const eventColumns = `id, event_type, category, display_name, description, severity, frequency,
	cooldown_minutes, enabled, updated_at`

func scanEvent(row scanner) (db.NotificationEvent, error) {
	var e db.NotificationEvent
	err := row.Scan(&e.ID, &e.EventType, &e.Category, &e.DisplayName, &e.Description, &e.Severity,
		&e.Frequency, &e.CooldownMinutes, &e.Enabled, &e.UpdatedAt)
	e.Targets = []db.NotificationTarget{}
	return e, err
}

const targetQuery = `
	SELECT t.id, t.event_id, t.target_type, t.channel_id, t.group_id, t.escalation_level,
		t.escalation_timeout_minutes, COALESCE(c.name, g.name, '') AS target_name
	FROM system_notification_targets t
	LEFT JOIN notification_channels c ON t.channel_id = c.id
	LEFT JOIN notification_groups g ON t.group_id = g.id`

func scanTarget(row scanner) (db.NotificationTarget, error) {
	var t db.NotificationTarget
	var channelID, groupID sql.NullString
	err := row.Scan(&t.ID, &t.EventID, &t.TargetType, &channelID, &groupID, &t.EscalationLevel,
		&t.EscalationTimeoutMinutes, &t.TargetName)
	if channelID.Valid {
		t.ChannelID = &channelID.String
	}
	if groupID.Valid {
		t.GroupID = &groupID.String
	}
	return t, err
}

func (s *SystemNotificationService) queryTargets(ctx context.Context, query string, args ...interface{}) ([]db.NotificationTarget, error) {
	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	targets := []db.NotificationTarget{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func finishEvent(e *db.NotificationEvent) {
	e.EffectivelyEnabled = rules.EffectivelyEnabled(e.Enabled, len(e.Targets))
}

// ListEvents returns every event with its targets and the per-category
// enabled/total summary.
func (s *SystemNotificationService) ListEvents(ctx context.Context) (db.EventsResponse, error) {
	resp := db.EventsResponse{Events: []db.NotificationEvent{}, Categories: map[string]db.CategorySummary{}}
	for _, c := range rules.Categories {
		resp.Categories[c] = db.CategorySummary{}
	}

	rows, err := s.PG.QueryContext(ctx, `SELECT `+eventColumns+` FROM system_notification_events ORDER BY category, display_name`)
	if err != nil {
		return resp, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	index := map[string]int{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return resp, fmt.Errorf("failed to scan event: %w", err)
		}
		index[e.ID] = len(resp.Events)
		resp.Events = append(resp.Events, e)
	}
	if err := rows.Err(); err != nil {
		return resp, err
	}

	targets, err := s.queryTargets(ctx, targetQuery+` ORDER BY t.escalation_level, t.created_at`)
	if err != nil {
		return resp, err
	}
	for _, t := range targets {
		if i, ok := index[t.EventID]; ok {
			resp.Events[i].Targets = append(resp.Events[i].Targets, t)
		}
	}

	for i := range resp.Events {
		e := &resp.Events[i]
		finishEvent(e)
		summary := resp.Categories[e.Category]
		summary.Total++
		if e.EffectivelyEnabled {
			summary.Enabled++
		}
		resp.Categories[e.Category] = summary
	}
	return resp, nil
}

func (s *SystemNotificationService) loadEvent(ctx context.Context, where string, arg string) (db.NotificationEvent, error) {
	e, err := scanEvent(s.PG.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM system_notification_events WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return e, notFound("event")
	}
	if err != nil {
		return e, fmt.Errorf("failed to get event: %w", err)
	}
	e.Targets, err = s.queryTargets(ctx, targetQuery+` WHERE t.event_id = $1 ORDER BY t.escalation_level, t.created_at`, e.ID)
	if err != nil {
		return e, err
	}
	finishEvent(&e)
	return e, nil
}

func (s *SystemNotificationService) GetEvent(ctx context.Context, id string) (db.NotificationEvent, error) {
	return s.loadEvent(ctx, "id = $1", id)
}

func (s *SystemNotificationService) GetEventByType(ctx context.Context, eventType string) (db.NotificationEvent, error) {
	return s.loadEvent(ctx, "event_type = $1", eventType)
}

// UpdateEvent applies a partial update. An event cannot be switched on
// while it has no targets.
func (s *SystemNotificationService) UpdateEvent(ctx context.Context, id string, req db.UpdateEventRequest) (db.NotificationEvent, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return e, err
	}
	if req.Severity != nil {
		if !rules.ValidSeverity(*req.Severity) {
			return e, invalid("unknown severity %q", *req.Severity)
		}
		e.Severity = *req.Severity
	}
	if req.Frequency != nil {
		if !rules.ValidFrequency(*req.Frequency) {
			return e, invalid("unknown frequency %q", *req.Frequency)
		}
		e.Frequency = *req.Frequency
	}
	if req.CooldownMinutes != nil {
		if *req.CooldownMinutes < 0 || *req.CooldownMinutes > rules.MaxCooldownMinutes {
			return e, invalid("cooldown must be between 0 and %d minutes", rules.MaxCooldownMinutes)
		}
		e.CooldownMinutes = *req.CooldownMinutes
	}
	if req.Enabled != nil {
		if *req.Enabled && len(e.Targets) == 0 {
			return e, ErrNoTargets
		}
		e.Enabled = *req.Enabled
	}
	e.UpdatedAt = s.now()

	// the target check is repeated in the write so a concurrent removal
	// cannot leave the event enabled without targets
	res, err := s.PG.ExecContext(ctx, `
		UPDATE system_notification_events
		SET severity = $2, frequency = $3, cooldown_minutes = $4, enabled = $5, updated_at = $6
		WHERE id = $1
		AND (NOT $5 OR EXISTS (SELECT 1 FROM system_notification_targets WHERE event_id = $1))`,
		e.ID, e.Severity, e.Frequency, e.CooldownMinutes, e.Enabled, e.UpdatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if e.Enabled {
			return e, ErrNoTargets
		}
		return e, notFound("event")
	}
	finishEvent(&e)
	return e, nil
}

// TARGETS

func (s *SystemNotificationService) AddTarget(ctx context.Context, eventID string, req db.AddTargetRequest) (db.NotificationTarget, error) {
	target := db.NotificationTarget{
		ID:                       uuid.New().String(),
		EventID:                  eventID,
		TargetType:               req.TargetType,
		EscalationLevel:          req.EscalationLevel,
		EscalationTimeoutMinutes: req.EscalationTimeoutMinutes,
	}

	var refID string
	switch req.TargetType {
	case db.TargetChannel:
		if req.ChannelID == "" || req.GroupID != "" {
			return target, invalid("channel targets need channel_id only")
		}
		refID = req.ChannelID
		target.ChannelID = &refID
	case db.TargetGroup:
		if req.GroupID == "" || req.ChannelID != "" {
			return target, invalid("group targets need group_id only")
		}
		refID = req.GroupID
		target.GroupID = &refID
	default:
		return target, invalid("target_type must be channel or group")
	}

	if target.EscalationLevel == 0 {
		target.EscalationLevel = rules.LevelImmediate
	}
	switch target.EscalationLevel {
	case rules.LevelImmediate:
		target.EscalationTimeoutMinutes = 0
	case rules.LevelEscalated:
		if target.EscalationTimeoutMinutes == 0 {
			target.EscalationTimeoutMinutes = rules.DefaultEscalationTimeout
		}
		if !rules.ValidEscalationTimeout(target.EscalationTimeoutMinutes) {
			return target, invalid("escalation timeout must be one of %v minutes", rules.EscalationTimeoutPresets)
		}
	default:
		return target, invalid("escalation level must be 1 or 2")
	}

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return target, err
	}
	for _, existing := range event.Targets {
		if existing.TargetType == target.TargetType && existing.RefID() == refID {
			return target, conflict("this target is already attached to the event")
		}
	}

	if target.TargetType == db.TargetChannel {
		ch, err := s.Channels.GetChannel(ctx, refID)
		if err != nil {
			return target, err
		}
		target.TargetName = ch.Name
	} else {
		g, err := s.Channels.GetGroup(ctx, refID)
		if err != nil {
			return target, err
		}
		target.TargetName = g.Name
	}

	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO system_notification_targets (id, event_id, target_type, channel_id, group_id,
			escalation_level, escalation_timeout_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		target.ID, target.EventID, target.TargetType, target.ChannelID, target.GroupID,
		target.EscalationLevel, target.EscalationTimeoutMinutes, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return target, conflict("this target is already attached to the event")
		}
		return target, fmt.Errorf("failed to add target: %w", err)
	}
	return target, nil
}

// RemoveTarget detaches a target. Removing the last target of an enabled
// event disables the event.
func (s *SystemNotificationService) RemoveTarget(ctx context.Context, eventID, targetID string) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM system_notification_targets WHERE id = $1 AND event_id = $2`, targetID, eventID)
	if err != nil {
		return fmt.Errorf("failed to remove target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("target")
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE system_notification_events SET enabled = FALSE, updated_at = NOW()
		WHERE id = $1 AND enabled
		AND NOT EXISTS (SELECT 1 FROM system_notification_targets WHERE event_id = $1)`, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event after target removal: %w", err)
	}
	return tx.Commit()
}

// AvailableTargets lists the channels and groups not yet attached to an event.
func (s *SystemNotificationService) AvailableTargets(ctx context.Context, eventID string) (db.AvailableTargets, error) {
	out := db.AvailableTargets{Channels: []db.Channel{}, Groups: []db.ChannelGroup{}}
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return out, err
	}
	attached := map[string]bool{}
	for _, t := range event.Targets {
		attached[t.TargetType+":"+t.RefID()] = true
	}

	channels, err := s.Channels.ListChannels(ctx)
	if err != nil {
		return out, err
	}
	for _, ch := range channels {
		if !attached[db.TargetChannel+":"+ch.ID] {
			out.Channels = append(out.Channels, ch)
		}
	}
	groups, err := s.Channels.ListGroups(ctx)
	if err != nil {
		return out, err
	}
	for _, g := range groups {
		if !attached[db.TargetGroup+":"+g.ID] {
			out.Groups = append(out.Groups, g)
		}
	}
	return out, nil
}

// GLOBAL SETTINGS

func defaultGlobalSettings() db.GlobalSettings {
	return db.GlobalSettings{
		QuietHoursStart:         "22:00",
		QuietHoursEnd:           "07:00",
		MaxNotificationsPerHour: 60,
		DigestTime:              "08:00",
	}
}

// LoadGlobalSettings reads the stored settings without computed fields.
func (s *SystemNotificationService) LoadGlobalSettings(ctx context.Context) (db.GlobalSettings, error) {
	g := defaultGlobalSettings()
	var until sql.NullTime
	var contact sql.NullString
	err := s.PG.QueryRowContext(ctx, `
		SELECT maintenance_mode, maintenance_until, maintenance_reason, quiet_hours_enabled, quiet_hours_start,
			quiet_hours_end, max_notifications_per_hour, emergency_contact_id, digest_enabled, digest_time, updated_at
		FROM system_notification_global_settings WHERE id = 1`).
		Scan(&g.MaintenanceMode, &until, &g.MaintenanceReason, &g.QuietHoursEnabled, &g.QuietHoursStart,
			&g.QuietHoursEnd, &g.MaxNotificationsPerHour, &contact, &g.DigestEnabled, &g.DigestTime, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return defaultGlobalSettings(), nil
	}
	if err != nil {
		return g, fmt.Errorf("failed to get global settings: %w", err)
	}
	if until.Valid {
		g.MaintenanceUntil = &until.Time
	}
	if contact.Valid {
		g.EmergencyContactID = &contact.String
	}
	return g, nil
}

// GetGlobalSettings adds the live counters shown on the settings page.
func (s *SystemNotificationService) GetGlobalSettings(ctx context.Context) (db.GlobalSettings, error) {
	g, err := s.LoadGlobalSettings(ctx)
	if err != nil {
		return g, err
	}
	now := s.now()
	g.MaintenanceMode = g.MaintenanceActive(now)
	if g.QuietHoursEnabled {
		g.InQuietHours, _ = rules.IsInQuietHours(s.LocalTime(now), g.QuietHoursStart, g.QuietHoursEnd)
	}
	if s.Redis != nil {
		count, err := s.Redis.Get(ctx, HourlyCounterKey(now)).Int()
		if err != nil && err != redis.Nil {
			return g, fmt.Errorf("failed to read hourly counter: %w", err)
		}
		g.NotificationsThisHour = count
	}
	return g, nil
}

func (s *SystemNotificationService) UpdateGlobalSettings(ctx context.Context, req db.UpdateGlobalSettingsRequest) (db.GlobalSettings, error) {
	g, err := s.LoadGlobalSettings(ctx)
	if err != nil {
		return g, err
	}
	if req.MaintenanceMode != nil {
		g.MaintenanceMode = *req.MaintenanceMode
		if !g.MaintenanceMode {
			g.MaintenanceUntil = nil
		}
	}
	if req.MaintenanceUntil != nil {
		g.MaintenanceUntil = req.MaintenanceUntil
	}
	if req.MaintenanceReason != nil {
		g.MaintenanceReason = *req.MaintenanceReason
	}
	if req.QuietHoursEnabled != nil {
		g.QuietHoursEnabled = *req.QuietHoursEnabled
	}
	if req.QuietHoursStart != nil {
		g.QuietHoursStart = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		g.QuietHoursEnd = *req.QuietHoursEnd
	}
	if req.MaxNotificationsPerHour != nil {
		g.MaxNotificationsPerHour = *req.MaxNotificationsPerHour
	}
	if req.EmergencyContactID != nil {
		if id := strings.TrimSpace(*req.EmergencyContactID); id == "" {
			g.EmergencyContactID = nil
		} else {
			g.EmergencyContactID = &id
		}
	}
	if req.DigestEnabled != nil {
		g.DigestEnabled = *req.DigestEnabled
	}
	if req.DigestTime != nil {
		g.DigestTime = *req.DigestTime
	}

	for _, clock := range []string{g.QuietHoursStart, g.QuietHoursEnd, g.DigestTime} {
		if _, err := rules.ParseClock(clock); err != nil {
			return g, invalid("%v", err)
		}
	}
	if g.MaxNotificationsPerHour < 0 {
		return g, invalid("max notifications per hour cannot be negative")
	}
	if g.DigestEnabled && g.EmergencyContactID == nil {
		return g, invalid("the daily digest needs an emergency contact channel")
	}
	if g.EmergencyContactID != nil {
		if _, err := s.Channels.GetChannel(ctx, *g.EmergencyContactID); err != nil {
			return g, err
		}
	}
	g.UpdatedAt = s.now()

	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO system_notification_global_settings (id, maintenance_mode, maintenance_until, maintenance_reason,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, max_notifications_per_hour,
			emergency_contact_id, digest_enabled, digest_time, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET maintenance_mode = EXCLUDED.maintenance_mode, maintenance_until = EXCLUDED.maintenance_until,
			maintenance_reason = EXCLUDED.maintenance_reason, quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start, quiet_hours_end = EXCLUDED.quiet_hours_end,
			max_notifications_per_hour = EXCLUDED.max_notifications_per_hour,
			emergency_contact_id = EXCLUDED.emergency_contact_id, digest_enabled = EXCLUDED.digest_enabled,
			digest_time = EXCLUDED.digest_time, updated_at = EXCLUDED.updated_at`,
		g.MaintenanceMode, g.MaintenanceUntil, g.MaintenanceReason, g.QuietHoursEnabled, g.QuietHoursStart,
		g.QuietHoursEnd, g.MaxNotificationsPerHour, g.EmergencyContactID, g.DigestEnabled, g.DigestTime, g.UpdatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to save global settings: %w", err)
	}
	return s.GetGlobalSettings(ctx)
}

// CONTAINER CONFIGS

func (s *SystemNotificationService) ListContainerConfigs(ctx context.Context) ([]db.ContainerConfig, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT container_name, monitor_unhealthy, monitor_restart, monitor_stopped, monitor_resources,
			cpu_threshold, memory_threshold, updated_at
		FROM system_notification_container_configs ORDER BY container_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list container configs: %w", err)
	}
	defer rows.Close()

	configs := []db.ContainerConfig{}
	for rows.Next() {
		var c db.ContainerConfig
		if err := rows.Scan(&c.ContainerName, &c.MonitorUnhealthy, &c.MonitorRestart, &c.MonitorStopped,
			&c.MonitorResources, &c.CPUThreshold, &c.MemoryThreshold, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan container config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *SystemNotificationService) UpdateContainerConfig(ctx context.Context, name string, c db.ContainerConfig) (db.ContainerConfig, error) {
	c.ContainerName = name
	if c.ContainerName == "" {
		return c, invalid("container name is required")
	}
	if c.CPUThreshold < 1 || c.CPUThreshold > 100 || c.MemoryThreshold < 1 || c.MemoryThreshold > 100 {
		return c, invalid("thresholds must be between 1 and 100 percent")
	}
	c.UpdatedAt = s.now()

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO system_notification_container_configs (container_name, monitor_unhealthy, monitor_restart,
			monitor_stopped, monitor_resources, cpu_threshold, memory_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (container_name) DO UPDATE
		SET monitor_unhealthy = EXCLUDED.monitor_unhealthy, monitor_restart = EXCLUDED.monitor_restart,
			monitor_stopped = EXCLUDED.monitor_stopped, monitor_resources = EXCLUDED.monitor_resources,
			cpu_threshold = EXCLUDED.cpu_threshold, memory_threshold = EXCLUDED.memory_threshold,
			updated_at = EXCLUDED.updated_at`,
		c.ContainerName, c.MonitorUnhealthy, c.MonitorRestart, c.MonitorStopped, c.MonitorResources,
		c.CPUThreshold, c.MemoryThreshold, c.UpdatedAt)
	if err != nil {
		return c, fmt.Errorf("failed to save container config: %w", err)
	}
	return c, nil
}

// HISTORY

type SystemHistoryFilter struct {
	Limit     int
	Offset    int
	EventType string
	Status    string
}

func (s *SystemNotificationService) RecordHistory(ctx context.Context, n db.SystemNotification) (db.SystemNotification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.EscalationLevel == 0 {
		n.EscalationLevel = rules.LevelImmediate
	}
	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO system_notification_history (id, event_type, severity, title, message, status, target_label,
			channel_id, escalation_level, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.EventType, n.Severity, n.Title, n.Message, n.Status, n.TargetLabel,
		n.ChannelID, n.EscalationLevel, n.ErrorMessage, n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("failed to record notification history: %w", err)
	}
	return n, nil
}

func (s *SystemNotificationService) History(ctx context.Context, f SystemHistoryFilter) (db.Page[db.SystemNotification], error) {
	page := db.Page[db.SystemNotification]{Items: []db.SystemNotification{}}
	limit, offset := clampPage(f.Limit, f.Offset)

	var where whereBuilder
	if f.EventType != "" {
		where.add("event_type = ?", f.EventType)
	}
	if f.Status != "" {
		where.add("status = ?", f.Status)
	}

	if err := s.PG.QueryRowContext(ctx, `SELECT COUNT(*) FROM system_notification_history`+where.clause(), where.args...).
		Scan(&page.Total); err != nil {
		return page, fmt.Errorf("failed to count notification history: %w", err)
	}

	query := `
		SELECT id, event_type, severity, title, message, status, target_label, channel_id, escalation_level,
			error_message, acknowledged_at, created_at
		FROM system_notification_history` + where.clause() +
		` ORDER BY created_at DESC LIMIT ` + where.next(limit) + ` OFFSET ` + where.next(offset)
	rows, err := s.PG.QueryContext(ctx, query, where.args...)
	if err != nil {
		return page, fmt.Errorf("failed to list notification history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n db.SystemNotification
		var channelID sql.NullString
		var ackAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.EventType, &n.Severity, &n.Title, &n.Message, &n.Status, &n.TargetLabel,
			&channelID, &n.EscalationLevel, &n.ErrorMessage, &ackAt, &n.CreatedAt); err != nil {
			return page, fmt.Errorf("failed to scan notification history: %w", err)
		}
		if channelID.Valid {
			n.ChannelID = &channelID.String
		}
		if ackAt.Valid {
			n.AcknowledgedAt = &ackAt.Time
		}
		page.Items = append(page.Items, n)
	}
	if err := rows.Err(); err != nil {
		return page, err
	}
	page.HasMore = offset+len(page.Items) < page.Total
	return page, nil
}

// Acknowledge marks a notification as seen and cancels its pending
// escalations.
func (s *SystemNotificationService) Acknowledge(ctx context.Context, id string) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE system_notification_history SET acknowledged_at = COALESCE(acknowledged_at, $2) WHERE id = $1`,
		id, s.now())
	if err != nil {
		return fmt.Errorf("failed to acknowledge notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("notification")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE system_notification_escalations SET status = 'cancelled'
		WHERE notification_id = $1 AND status = 'pending'`, id); err != nil {
		return fmt.Errorf("failed to cancel escalations: %w", err)
	}
	return tx.Commit()
}
