package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/internal/logging"
	"github.com/n8nhost/console/internal/rules"
	"github.com/n8nhost/console/providers"
)

// Sender delivers a message to a single channel.
type Sender interface {
	Send(ctx context.Context, ch db.Channel, msg providers.Message) error
}

// Broadcaster pushes history rows to live subscribers.
type Broadcaster interface {
	Broadcast(n db.SystemNotification)
}

// Emit outcomes
const (
	EmitDropped    = "dropped"
	EmitSuppressed = "suppressed"
	EmitDigested   = "digested"
	EmitDispatched = "dispatched"
)

type EmitResult struct {
	Outcome        string `json:"outcome"`
	Reason         string `json:"reason,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Queued         int    `json:"queued"`
	Escalations    int    `json:"escalations"`
}

type delivery struct {
	channel        db.Channel
	message        providers.Message
	notificationID string
	eventType      string
	level          int
}

// Dispatcher applies the notification rules to incoming system events and
// fans deliveries out to a bounded worker pool.
type Dispatcher struct {
	PG            *sql.DB
	Redis         *redis.Client
	Notifications *SystemNotificationService
	Channels      *ChannelService
	Sender        Sender
	Hub           Broadcaster
	Logger        *logging.Logger

	workers int
	tasks   chan delivery
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	now     func() time.Time
}

func NewDispatcher(pg *sql.DB, rdb *redis.Client, notifications *SystemNotificationService, channels *ChannelService,
	sender Sender, logger *logging.Logger, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		PG:            pg,
		Redis:         rdb,
		Notifications: notifications,
		Channels:      channels,
		Sender:        sender,
		Logger:        logger,
		workers:       workers,
		tasks:         make(chan delivery, queueSize),
		ctx:           ctx,
		cancel:        cancel,
		now:           time.Now,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(wg *sync.WaitGroup) {
	d.wg = wg
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop cancels in-flight sends and stops the workers.
func (d *Dispatcher) Stop() {
	d.cancel()
}

func (d *Dispatcher) queueTask(t delivery) bool {
	select {
	case d.tasks <- t:
		return true
	default:
		d.Logger.Errorf("Delivery queue full, dropping %s to channel %s", t.eventType, t.channel.Name)
		return false
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	d.Logger.Infof("Dispatch worker %d started", id)
	for {
		select {
		case <-d.ctx.Done():
			d.Logger.Infof("Dispatch worker %d stopped", id)
			return
		case t := <-d.tasks:
			d.deliver(d.ctx, t)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, t delivery) {
	err := d.Sender.Send(ctx, t.channel, t.message)
	if err == nil {
		d.Logger.Debugf("Delivered %s to %s", t.eventType, t.channel.Name)
		return
	}
	d.Logger.Errorf("Delivery of %s to %s failed: %v", t.eventType, t.channel.Name, err)
	channelID := t.channel.ID
	d.record(ctx, db.SystemNotification{
		EventType:       t.eventType,
		Severity:        t.message.Severity,
		Title:           t.message.Title,
		Message:         t.message.Body,
		Status:          db.NotificationFailed,
		TargetLabel:     t.channel.Name,
		ChannelID:       &channelID,
		EscalationLevel: t.level,
		ErrorMessage:    err.Error(),
	})
}

func (d *Dispatcher) record(ctx context.Context, n db.SystemNotification) db.SystemNotification {
	saved, err := d.Notifications.RecordHistory(ctx, n)
	if err != nil {
		d.Logger.Errorf("record history: %v", err)
		return n
	}
	if d.Hub != nil {
		d.Hub.Broadcast(saved)
	}
	return saved
}

func (d *Dispatcher) suppress(ctx context.Context, ev db.SystemEvent, severity, reason string) EmitResult {
	saved := d.record(ctx, db.SystemNotification{
		EventType:    ev.EventType,
		Severity:     severity,
		Title:        ev.Title,
		Message:      ev.Message,
		Status:       db.NotificationSuppressed,
		ErrorMessage: reason,
	})
	return EmitResult{Outcome: EmitSuppressed, Reason: reason, NotificationID: saved.ID}
}

// Emit runs an event through the rules in order: enable gate, maintenance,
// quiet hours, hourly cap, frequency window, digest, then delivery.
func (d *Dispatcher) Emit(ctx context.Context, ev db.SystemEvent) (EmitResult, error) {
	event, err := d.Notifications.GetEventByType(ctx, ev.EventType)
	if err != nil {
		return EmitResult{}, err
	}
	if !event.EffectivelyEnabled {
		return EmitResult{Outcome: EmitDropped, Reason: "event disabled"}, nil
	}

	severity := event.Severity
	if rules.ValidSeverity(ev.Severity) {
		severity = ev.Severity
	}
	if ev.Title == "" {
		ev.Title = event.DisplayName
	}

	settings, err := d.Notifications.LoadGlobalSettings(ctx)
	if err != nil {
		return EmitResult{}, err
	}
	now := d.now()

	if settings.MaintenanceActive(now) {
		return d.suppress(ctx, ev, severity, "maintenance mode"), nil
	}
	if settings.QuietHoursEnabled && severity != rules.SeverityCritical {
		quiet, err := rules.IsInQuietHours(d.Notifications.LocalTime(now), settings.QuietHoursStart, settings.QuietHoursEnd)
		if err != nil {
			d.Logger.Warnf("invalid quiet hours: %v", err)
		}
		if quiet {
			return d.suppress(ctx, ev, severity, "quiet hours"), nil
		}
	}

	// info events wait for the digest only when someone will receive it
	digest := settings.DigestEnabled && settings.EmergencyContactID != nil && severity == rules.SeverityInfo

	// INCR is the cap check itself; the slot is handed back on suppression
	counterKey := HourlyCounterKey(now)
	counted := false
	if !digest {
		count, err := d.Redis.Incr(ctx, counterKey).Result()
		if err != nil {
			return EmitResult{}, fmt.Errorf("failed to bump hourly counter: %w", err)
		}
		counted = true
		if count == 1 {
			d.Redis.Expire(ctx, counterKey, time.Hour)
		}
		if severity != rules.SeverityCritical && settings.MaxNotificationsPerHour > 0 &&
			count > int64(settings.MaxNotificationsPerHour) {
			d.releaseSlot(ctx, counterKey)
			return d.suppress(ctx, ev, severity, "hourly limit reached"), nil
		}
	}

	// the window is claimed last so that only delivered or digested events start it
	cooldownKey := ""
	if window := rules.SuppressionWindow(event.Frequency, event.CooldownMinutes); window > 0 {
		first, err := d.Redis.SetNX(ctx, CooldownKey(event.EventType), now.Unix(), window).Result()
		if err != nil {
			if counted {
				d.releaseSlot(ctx, counterKey)
			}
			return EmitResult{}, fmt.Errorf("failed to check cooldown: %w", err)
		}
		if !first {
			if counted {
				d.releaseSlot(ctx, counterKey)
			}
			return d.suppress(ctx, ev, severity, "frequency limit"), nil
		}
		cooldownKey = CooldownKey(event.EventType)
	}

	if digest {
		if err := d.queueDigest(ctx, ev, severity, now); err != nil {
			if cooldownKey != "" {
				d.Redis.Del(ctx, cooldownKey)
			}
			return EmitResult{}, err
		}
		saved := d.record(ctx, db.SystemNotification{
			EventType: ev.EventType,
			Severity:  severity,
			Title:     ev.Title,
			Message:   ev.Message,
			Status:    db.NotificationDigested,
		})
		return EmitResult{Outcome: EmitDigested, NotificationID: saved.ID}, nil
	}

	var immediate, escalated []db.NotificationTarget
	var labels []string
	for _, t := range event.Targets {
		if t.EscalationLevel == rules.LevelEscalated {
			escalated = append(escalated, t)
		} else {
			immediate = append(immediate, t)
			labels = append(labels, t.TargetName)
		}
	}

	parent := d.record(ctx, db.SystemNotification{
		EventType:       ev.EventType,
		Severity:        severity,
		Title:           ev.Title,
		Message:         ev.Message,
		Status:          db.NotificationSent,
		TargetLabel:     strings.Join(labels, ", "),
		EscalationLevel: rules.LevelImmediate,
	})
	result := EmitResult{Outcome: EmitDispatched, NotificationID: parent.ID}

	msg := providers.Message{
		Title:    ev.Title,
		Body:     ev.Message,
		Priority: rules.SeverityPriority(severity),
		Severity: severity,
		Tags:     []string{event.Category, ev.EventType},
	}
	for _, t := range immediate {
		channels, err := d.Channels.ResolveTarget(ctx, t.TargetType, t.RefID())
		if err != nil {
			d.Logger.Errorf("resolve target %s: %v", t.ID, err)
			continue
		}
		for _, ch := range channels {
			if d.queueTask(delivery{channel: ch, message: msg, notificationID: parent.ID, eventType: ev.EventType, level: rules.LevelImmediate}) {
				result.Queued++
			}
		}
	}

	for _, t := range escalated {
		due := now.Add(time.Duration(t.EscalationTimeoutMinutes) * time.Minute)
		_, err := d.PG.ExecContext(ctx, `
			INSERT INTO system_notification_escalations (id, notification_id, event_type, severity, title, message,
				target_type, target_ref_id, due_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')`,
			uuid.New().String(), parent.ID, ev.EventType, severity, ev.Title, ev.Message, t.TargetType, t.RefID(), due)
		if err != nil {
			d.Logger.Errorf("schedule escalation for %s: %v", ev.EventType, err)
			continue
		}
		result.Escalations++
	}
	return result, nil
}

func (d *Dispatcher) releaseSlot(ctx context.Context, counterKey string) {
	if err := d.Redis.Decr(ctx, counterKey).Err(); err != nil {
		d.Logger.Warnf("release hourly slot: %v", err)
	}
}

func (d *Dispatcher) queueDigest(ctx context.Context, ev db.SystemEvent, severity string, now time.Time) error {
	_, err := d.PG.ExecContext(ctx, `
		INSERT INTO system_notification_digest (id, event_type, severity, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), ev.EventType, severity, ev.Title, ev.Message, now)
	if err != nil {
		return fmt.Errorf("failed to queue digest entry: %w", err)
	}
	return nil
}

// FireDueEscalations delivers level 2 targets whose timeout passed without
// the notification being acknowledged.
func (d *Dispatcher) FireDueEscalations(ctx context.Context) (int, error) {
	rows, err := d.PG.QueryContext(ctx, `
		SELECT e.id, e.notification_id, e.event_type, e.severity, e.title, e.message, e.target_type,
			e.target_ref_id, e.due_at, e.status
		FROM system_notification_escalations e
		JOIN system_notification_history h ON h.id = e.notification_id
		WHERE e.status = 'pending' AND e.due_at <= $1 AND h.acknowledged_at IS NULL
		ORDER BY e.due_at
		LIMIT 100`, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to query due escalations: %w", err)
	}
	var due []db.PendingEscalation
	for rows.Next() {
		var p db.PendingEscalation
		if err := rows.Scan(&p.ID, &p.NotificationID, &p.EventType, &p.Severity, &p.Title, &p.Message,
			&p.TargetType, &p.TargetRefID, &p.DueAt, &p.Status); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan escalation: %w", err)
		}
		due = append(due, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	fired := 0
	for _, p := range due {
		res, err := d.PG.ExecContext(ctx, `
			UPDATE system_notification_escalations SET status = 'fired' WHERE id = $1 AND status = 'pending'`, p.ID)
		if err != nil {
			d.Logger.Errorf("claim escalation %s: %v", p.ID, err)
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		channels, err := d.Channels.ResolveTarget(ctx, p.TargetType, p.TargetRefID)
		if err != nil {
			d.Logger.Errorf("resolve escalation target %s: %v", p.TargetRefID, err)
			continue
		}
		names := make([]string, 0, len(channels))
		msg := providers.Message{
			Title:    "[Escalated] " + p.Title,
			Body:     p.Message,
			Priority: rules.SeverityPriority(p.Severity),
			Severity: p.Severity,
			Tags:     []string{"escalated", p.EventType},
		}
		for _, ch := range channels {
			names = append(names, ch.Name)
			d.queueTask(delivery{channel: ch, message: msg, notificationID: p.NotificationID, eventType: p.EventType, level: rules.LevelEscalated})
		}
		d.record(ctx, db.SystemNotification{
			EventType:       p.EventType,
			Severity:        p.Severity,
			Title:           p.Title,
			Message:         p.Message,
			Status:          db.NotificationEscalated,
			TargetLabel:     strings.Join(names, ", "),
			EscalationLevel: rules.LevelEscalated,
		})
		fired++
	}
	return fired, nil
}

// FlushDigest sends all queued digest entries as one message to the
// emergency contact channel. The entries are removed in the same
// transaction, which commits only after the send succeeded.
func (d *Dispatcher) FlushDigest(ctx context.Context) (int, error) {
	settings, err := d.Notifications.LoadGlobalSettings(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.DigestEnabled || settings.EmergencyContactID == nil {
		return 0, nil
	}

	tx, err := d.PG.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		DELETE FROM system_notification_digest
		RETURNING id, event_type, severity, title, message, created_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to read digest queue: %w", err)
	}
	var entries []db.DigestEntry
	for rows.Next() {
		var e db.DigestEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity, &e.Title, &e.Message, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan digest entry: %w", err)
		}
		e.CreatedAt = d.Notifications.LocalTime(e.CreatedAt)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	ch, err := d.Channels.GetChannel(ctx, *settings.EmergencyContactID)
	if err != nil {
		return 0, err
	}
	msg := DigestMessage(entries)
	if err := d.Sender.Send(ctx, ch, msg); err != nil {
		return 0, fmt.Errorf("failed to send digest: %w", err)
	}
	// the digest is out; a failed commit must not make the worker send it again
	if err := tx.Commit(); err != nil {
		d.Logger.Errorf("digest sent but queue not cleared: %v", err)
	}

	channelID := ch.ID
	d.record(ctx, db.SystemNotification{
		EventType:   "digest",
		Severity:    rules.SeverityInfo,
		Title:       msg.Title,
		Message:     msg.Body,
		Status:      db.NotificationSent,
		TargetLabel: ch.Name,
		ChannelID:   &channelID,
	})
	return len(entries), nil
}

// DigestMessage summarizes queued entries, one line each.
func DigestMessage(entries []db.DigestEntry) providers.Message {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s: %s\n", e.CreatedAt.Format("15:04"), e.EventType, e.Title)
	}
	return providers.Message{
		Title:    fmt.Sprintf("Daily digest: %d notifications", len(entries)),
		Body:     strings.TrimRight(b.String(), "\n"),
		Priority: rules.PriorityLow,
		Severity: rules.SeverityInfo,
		Tags:     []string{"digest"},
	}
}
