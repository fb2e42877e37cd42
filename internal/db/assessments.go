package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/circuitbreaker"
	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

// ErrNotFound is returned when an assessment has no items at all
var ErrNotFound = errors.New("assessment not found")

type itemRow struct {
	ID       string  `db:"id"`
	Label    string  `db:"label"`
	Axis     string  `db:"axis"`
	Score    float64 `db:"score"`
	Recorded bool    `db:"recorded"`
}

type suggestionRow struct {
	ItemID   string       `db:"item_id"`
	NoteID   string       `db:"note_id"`
	Excerpt  string       `db:"excerpt"`
	NoteDate sql.NullTime `db:"note_date"`
}

// ListEntries loads the scored items of one assessment for a table, each with its
// AI suggestions. An assessment with items in other domains only yields an empty
// slice; an unknown assessment yields ErrNotFound.
func (c *Client) ListEntries(ctx context.Context, assessmentID string, domain pdpm.Domain, variant string) ([]pdpm.Entry, error) {
	if variant == "" {
		variant = pdpm.DefaultVariant
	}
	start := time.Now()
	defer func() { metrics.AssessmentQueryDuration.Observe(time.Since(start).Seconds()) }()

	entries, err := circuitbreaker.Do(ctx, c.breaker, func(ctx context.Context) ([]pdpm.Entry, error) {
		return c.listEntries(ctx, assessmentID, string(domain), variant)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("Assessment query failed",
				zap.String("assessment_id", assessmentID),
				zap.String("domain", string(domain)),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return entries, nil
}

func (c *Client) listEntries(ctx context.Context, assessmentID, domain, variant string) ([]pdpm.Entry, error) {
	var items []itemRow
	q := c.db.Rebind(`SELECT id, label, axis, score, recorded FROM mds_items
		WHERE assessment_id = ? AND domain = ? AND variant = ? ORDER BY id`)
	if err := c.db.SelectContext(ctx, &items, q, assessmentID, domain, variant); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}

	if len(items) == 0 {
		var n int
		q := c.db.Rebind(`SELECT COUNT(*) FROM mds_items WHERE assessment_id = ?`)
		if err := c.db.GetContext(ctx, &n, q, assessmentID); err != nil {
			return nil, fmt.Errorf("count items: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, assessmentID)
		}
		return []pdpm.Entry{}, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	q, args, err := sqlx.In(`SELECT item_id, note_id, excerpt, note_date FROM ai_suggestions
		WHERE item_id IN (?) ORDER BY item_id, note_date, note_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build suggestion query: %w", err)
	}
	var suggestions []suggestionRow
	if err := c.db.SelectContext(ctx, &suggestions, c.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select suggestions: %w", err)
	}

	byItem := make(map[string][]pdpm.Evidence, len(items))
	for _, s := range suggestions {
		ev := pdpm.Evidence{NoteID: s.NoteID, Excerpt: s.Excerpt}
		if s.NoteDate.Valid {
			ev.NoteDate = s.NoteDate.Time
		}
		byItem[s.ItemID] = append(byItem[s.ItemID], ev)
	}

	entries := make([]pdpm.Entry, len(items))
	for i, it := range items {
		entries[i] = pdpm.Entry{
			Item:       it.Label,
			Points:     it.Score,
			Dimension:  pdpm.Axis(it.Axis),
			IsRecorded: it.Recorded,
			Evidence:   byItem[it.ID],
		}
	}
	return entries, nil
}
