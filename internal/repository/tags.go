package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/radiowatch/radiowatch/internal/domain"
)

// SaveTag replaces any existing tag on the network.
func (r *SQLRepository) SaveTag(ctx context.Context, tag *domain.UserTag) error {
	if tag == nil {
		return ErrInvalidInput
	}
	tag.NetworkID = domain.NormalizeNetworkID(tag.NetworkID)
	if err := tag.Validate(); err != nil {
		return err
	}
	if tag.TaggedAt.IsZero() {
		tag.TaggedAt = time.Now().UTC()
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM network_tags WHERE network_id = ?`), tag.NetworkID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, r.rebind(`
			INSERT INTO network_tags (network_id, tag_type, confidence, notes, tagged_at)
			VALUES (?, ?, ?, ?, ?)
		`), tag.NetworkID, string(tag.TagType), tag.Confidence, tag.Notes, tag.TaggedAt.UTC())
		return err
	})
}

// GetTag returns the active tag on a network.
func (r *SQLRepository) GetTag(ctx context.Context, networkID string) (*domain.UserTag, error) {
	var t domain.UserTag
	var tagType string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT network_id, tag_type, confidence, notes, tagged_at
		FROM network_tags
		WHERE network_id = ?
	`), domain.NormalizeNetworkID(networkID)).Scan(&t.NetworkID, &tagType, &t.Confidence, &t.Notes, &t.TaggedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.TagType = domain.TagType(tagType)
	return &t, nil
}

// DeleteTag removes the tag on a network.
func (r *SQLRepository) DeleteTag(ctx context.Context, networkID string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM network_tags WHERE network_id = ?`),
		domain.NormalizeNetworkID(networkID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
