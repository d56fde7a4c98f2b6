package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/n8nhost/console/db"
	"github.com/n8nhost/console/providers"
)

// ChannelService manages notification channels and channel groups.
type ChannelService struct {
	PG *sql.DB
}

func NewChannelService(pg *sql.DB) *ChannelService {
	return &ChannelService{PG: pg}
}

// CHANNELS

const channelColumns = `id, name, channel_type, config, enabled, created_at, updated_at`

func scanChannel(row scanner) (db.Channel, error) {
	var ch db.Channel
	var cfg []byte
	if err := row.Scan(&ch.ID, &ch.Name, &ch.ChannelType, &cfg, &ch.Enabled, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return ch, err
	}
	ch.Config = map[string]interface{}{}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &ch.Config); err != nil {
			return ch, fmt.Errorf("invalid config for channel %s: %w", ch.ID, err)
		}
	}
	return ch, nil
}

func (s *ChannelService) queryChannels(ctx context.Context, query string, args ...interface{}) ([]db.Channel, error) {
	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := []db.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *ChannelService) ListChannels(ctx context.Context) ([]db.Channel, error) {
	return s.queryChannels(ctx, `SELECT `+channelColumns+` FROM notification_channels ORDER BY name`)
}

func (s *ChannelService) GetChannel(ctx context.Context, id string) (db.Channel, error) {
	ch, err := scanChannel(s.PG.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM notification_channels WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return ch, notFound("channel")
	}
	if err != nil {
		return ch, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelService) CreateChannel(ctx context.Context, req db.SaveChannelRequest) (db.Channel, error) {
	now := time.Now()
	ch := db.Channel{
		ID:          uuid.New().String(),
		Name:        req.Name,
		ChannelType: req.ChannelType,
		Config:      req.Config,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Enabled != nil {
		ch.Enabled = *req.Enabled
	}
	if ch.Config == nil {
		ch.Config = map[string]interface{}{}
	}
	if err := providers.ValidateChannel(ch); err != nil {
		return ch, invalid("%v", err)
	}

	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return ch, invalid("config is not serializable")
	}
	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO notification_channels (id, name, channel_type, config, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ch.ID, ch.Name, ch.ChannelType, cfg, ch.Enabled, ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return ch, fmt.Errorf("failed to create channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelService) UpdateChannel(ctx context.Context, id string, req db.SaveChannelRequest) (db.Channel, error) {
	ch, err := s.GetChannel(ctx, id)
	if err != nil {
		return ch, err
	}
	if req.ChannelType != ch.ChannelType {
		return ch, invalid("channel type cannot be changed")
	}
	ch.Name = req.Name
	if req.Config != nil {
		ch.Config = req.Config
	}
	if req.Enabled != nil {
		ch.Enabled = *req.Enabled
	}
	if err := providers.ValidateChannel(ch); err != nil {
		return ch, invalid("%v", err)
	}
	ch.UpdatedAt = time.Now()

	cfg, err := json.Marshal(ch.Config)
	if err != nil {
		return ch, invalid("config is not serializable")
	}
	_, err = s.PG.ExecContext(ctx, `
		UPDATE notification_channels SET name = $2, config = $3, enabled = $4, updated_at = $5 WHERE id = $1`,
		ch.ID, ch.Name, cfg, ch.Enabled, ch.UpdatedAt)
	if err != nil {
		return ch, fmt.Errorf("failed to update channel: %w", err)
	}
	return ch, nil
}

// DeleteChannel removes the channel from every group and event. Events left
// without targets are switched off so that an enabled event always has
// somewhere to go.
func (s *ChannelService) DeleteChannel(ctx context.Context, id string) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM system_notification_targets WHERE channel_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach channel targets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE notification_groups SET channel_ids = array_remove(channel_ids, $1), updated_at = NOW()
		WHERE $1 = ANY(channel_ids)`, id); err != nil {
		return fmt.Errorf("failed to remove channel from groups: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("channel")
	}
	if err := disableOrphanedEvents(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func disableOrphanedEvents(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE system_notification_events e SET enabled = FALSE, updated_at = NOW()
		WHERE e.enabled AND NOT EXISTS (SELECT 1 FROM system_notification_targets t WHERE t.event_id = e.id)`)
	if err != nil {
		return fmt.Errorf("failed to disable events without targets: %w", err)
	}
	return nil
}

// GROUPS

const groupColumns = `id, name, description, channel_ids, created_at, updated_at`

func scanGroup(row scanner) (db.ChannelGroup, error) {
	var g db.ChannelGroup
	if err := row.Scan(&g.ID, &g.Name, &g.Description, pq.Array(&g.ChannelIDs), &g.CreatedAt, &g.UpdatedAt); err != nil {
		return g, err
	}
	if g.ChannelIDs == nil {
		g.ChannelIDs = []string{}
	}
	return g, nil
}

func (s *ChannelService) ListGroups(ctx context.Context) ([]db.ChannelGroup, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT `+groupColumns+` FROM notification_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []db.ChannelGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *ChannelService) GetGroup(ctx context.Context, id string) (db.ChannelGroup, error) {
	g, err := scanGroup(s.PG.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM notification_groups WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return g, notFound("group")
	}
	if err != nil {
		return g, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := []string{}
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *ChannelService) checkChannelsExist(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var count int
	if err := s.PG.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_channels WHERE id = ANY($1)`,
		pq.Array(ids)).Scan(&count); err != nil {
		return fmt.Errorf("failed to check group channels: %w", err)
	}
	if count != len(ids) {
		return invalid("group references unknown channels")
	}
	return nil
}

func (s *ChannelService) CreateGroup(ctx context.Context, req db.SaveGroupRequest) (db.ChannelGroup, error) {
	now := time.Now()
	g := db.ChannelGroup{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		ChannelIDs:  uniqueIDs(req.ChannelIDs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.checkChannelsExist(ctx, g.ChannelIDs); err != nil {
		return g, err
	}
	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO notification_groups (id, name, description, channel_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Name, g.Description, pq.Array(g.ChannelIDs), g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to create group: %w", err)
	}
	return g, nil
}

func (s *ChannelService) UpdateGroup(ctx context.Context, id string, req db.SaveGroupRequest) (db.ChannelGroup, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return g, err
	}
	g.Name = req.Name
	g.Description = req.Description
	g.ChannelIDs = uniqueIDs(req.ChannelIDs)
	g.UpdatedAt = time.Now()
	if err := s.checkChannelsExist(ctx, g.ChannelIDs); err != nil {
		return g, err
	}
	_, err = s.PG.ExecContext(ctx, `
		UPDATE notification_groups SET name = $2, description = $3, channel_ids = $4, updated_at = $5 WHERE id = $1`,
		g.ID, g.Name, g.Description, pq.Array(g.ChannelIDs), g.UpdatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to update group: %w", err)
	}
	return g, nil
}

func (s *ChannelService) DeleteGroup(ctx context.Context, id string) error {
	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM system_notification_targets WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach group targets: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM notification_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("group")
	}
	if err := disableOrphanedEvents(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ResolveTarget expands a target into the enabled channels it delivers to.
func (s *ChannelService) ResolveTarget(ctx context.Context, targetType, refID string) ([]db.Channel, error) {
	switch targetType {
	case db.TargetChannel:
		ch, err := s.GetChannel(ctx, refID)
		if err != nil {
			return nil, err
		}
		if !ch.Enabled {
			return []db.Channel{}, nil
		}
		return []db.Channel{ch}, nil
	case db.TargetGroup:
		return s.queryChannels(ctx, `
			SELECT `+channelColumns+` FROM notification_channels
			WHERE enabled AND id = ANY((SELECT channel_ids FROM notification_groups WHERE id = $1)::text[])
			ORDER BY name`, refID)
	default:
		return nil, invalid("unknown target type %q", targetType)
	}
}
