package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type draw struct {
	ID            int64      `db:"id"`
	Prize         string     `db:"prize"`
	WinnersWanted int        `db:"winners_wanted"`
	EndsAt        time.Time  `db:"ends_at"`
	ImageURL      string     `db:"image_url"`
	State         string     `db:"state"`
	CreatedAt     time.Time  `db:"created_at"`
	FinishedAt    *time.Time `db:"finished_at"`
}

type drawParticipant struct {
	ID         int64  `db:"id"`
	DrawID     int64  `db:"draw_id"`
	TelegramID int64  `db:"telegram_id"`
	Name       string `db:"name"`
	IsWinner   bool   `db:"is_winner"`
}

func (d *draw) toModel(participants []drawParticipant) *model.Draw {
	m := &model.Draw{
		ID:            d.ID,
		Prize:         d.Prize,
		WinnersWanted: d.WinnersWanted,
		EndsAt:        d.EndsAt,
		ImageURL:      d.ImageURL,
		State:         model.DrawState(d.State),
		CreatedAt:     d.CreatedAt,
		FinishedAt:    d.FinishedAt,
	}
	for _, p := range participants {
		participant := model.Participant{TelegramID: p.TelegramID, Name: p.Name}
		m.Participants = append(m.Participants, participant)
		if p.IsWinner {
			m.Winners = append(m.Winners, participant)
		}
	}
	return m
}

func (r *Repository) CreateDraw(ctx context.Context, d *model.Draw) (int64, error) {
	query, args, err := squirrel.
		Insert("draws").
		SetMap(map[string]interface{}{
			"prize":          d.Prize,
			"winners_wanted": d.WinnersWanted,
			"ends_at":        d.EndsAt,
			"image_url":      d.ImageURL,
			"state":          string(model.DrawOpen),
			"created_at":     d.CreatedAt,
		}).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build draw insert query: %w", err)
	}

	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("failed to insert draw: %w", err)
	}
	return id, nil
}

func (r *Repository) GetDraw(ctx context.Context, drawID int64) (*model.Draw, error) {
	var row draw
	query, args, err := squirrel.
		Select("*").
		From("draws").
		Where(squirrel.Eq{"id": drawID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	participants, err := r.listParticipants(ctx, r.db, drawID)
	if err != nil {
		return nil, err
	}

	return row.toModel(participants), nil
}

type sqlxQueryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func (r *Repository) listParticipants(ctx context.Context, q sqlxQueryer, drawID int64) ([]drawParticipant, error) {
	query, args, err := squirrel.
		Select("*").
		From("draw_participants").
		Where(squirrel.Eq{"draw_id": drawID}).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var participants []drawParticipant
	if err := q.SelectContext(ctx, &participants, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return participants, nil
}

func (r *Repository) AddParticipant(ctx context.Context, drawID int64, p model.Participant, now time.Time) (int, error) {
	var count int
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		lockQuery, lockArgs, err := squirrel.
			Select("*").
			From("draws").
			Where(squirrel.Eq{"id": drawID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var row draw
		if err := tx.GetContext(ctx, &row, lockQuery, lockArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if row.State != string(model.DrawOpen) || !row.EndsAt.After(now) {
			return ErrDrawClosed
		}

		existsQuery, existsArgs, err := squirrel.
			Select("COUNT(*)").
			From("draw_participants").
			Where(squirrel.Eq{"draw_id": drawID, "telegram_id": p.TelegramID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var exists int
		if err := tx.GetContext(ctx, &exists, existsQuery, existsArgs...); err != nil {
			return err
		}
		if exists > 0 {
			return ErrAlreadyJoined
		}

		insertQuery, insertArgs, err := squirrel.
			Insert("draw_participants").
			SetMap(map[string]interface{}{
				"draw_id":     drawID,
				"telegram_id": p.TelegramID,
				"name":        p.Name,
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}

		countQuery, countArgs, err := squirrel.
			Select("COUNT(*)").
			From("draw_participants").
			Where(squirrel.Eq{"draw_id": drawID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		return tx.GetContext(ctx, &count, countQuery, countArgs...)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) FinalizeDraw(ctx context.Context, drawID int64, finishedAt time.Time) (*model.Draw, error) {
	var result *model.Draw
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		lockQuery, lockArgs, err := squirrel.
			Select("*").
			From("draws").
			Where(squirrel.Eq{"id": drawID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var row draw
		if err := tx.GetContext(ctx, &row, lockQuery, lockArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if row.State != string(model.DrawOpen) {
			return ErrDrawClosed
		}

		updateQuery, updateArgs, err := squirrel.
			Update("draws").
			Set("state", string(model.DrawFinalized)).
			Set("finished_at", finishedAt).
			Where(squirrel.Eq{"id": drawID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
			return fmt.Errorf("failed to finalize draw: %w", err)
		}

		participants, err := r.listParticipants(ctx, tx, drawID)
		if err != nil {
			return err
		}

		row.State = string(model.DrawFinalized)
		row.FinishedAt = &finishedAt
		result = row.toModel(participants)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) SetWinners(ctx context.Context, drawID int64, winners []model.Participant) error {
	if len(winners) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(winners))
	for _, w := range winners {
		ids = append(ids, w.TelegramID)
	}

	query, args, err := squirrel.
		Update("draw_participants").
		Set("is_winner", true).
		Where(squirrel.Eq{"draw_id": drawID, "telegram_id": ids}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build winners update query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set winners: %w", err)
	}
	return nil
}

func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]model.DrawSummary, error) {
	query, args, err := squirrel.
		Select("d.id", "d.prize", "d.winners_wanted", "d.ends_at", "d.image_url",
			"COUNT(p.id) AS participants_count").
		From("draws d").
		LeftJoin("draw_participants p ON p.draw_id = d.id").
		Where(squirrel.Eq{"d.state": string(model.DrawOpen)}).
		Where(squirrel.Gt{"d.ends_at": now}).
		GroupBy("d.id").
		OrderBy("d.id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID                int64     `db:"id"`
		Prize             string    `db:"prize"`
		WinnersWanted     int       `db:"winners_wanted"`
		EndsAt            time.Time `db:"ends_at"`
		ImageURL          string    `db:"image_url"`
		ParticipantsCount int       `db:"participants_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list active draws: %w", err)
	}

	summaries := make([]model.DrawSummary, 0, len(rows))
	for _, row := range rows {
		d := model.Draw{ID: row.ID, Prize: row.Prize}
		_, isMoney := d.MoneyPrize()
		summaries = append(summaries, model.DrawSummary{
			ID:                row.ID,
			Prize:             row.Prize,
			IsMoney:           isMoney,
			WinnersWanted:     row.WinnersWanted,
			EndsAt:            row.EndsAt,
			ImageURL:          row.ImageURL,
			ParticipantsCount: row.ParticipantsCount,
		})
	}
	return summaries, nil
}

func (r *Repository) ListOpen(ctx context.Context) ([]*model.Draw, error) {
	return r.listDraws(ctx, squirrel.Eq{"state": string(model.DrawOpen)}, "id")
}

func (r *Repository) ListFinished(ctx context.Context) ([]*model.Draw, error) {
	return r.listDraws(ctx, squirrel.Eq{"state": string(model.DrawFinalized)}, "finished_at DESC")
}

func (r *Repository) listDraws(ctx context.Context, pred interface{}, order string) ([]*model.Draw, error) {
	query, args, err := squirrel.
		Select("*").
		From("draws").
		Where(pred).
		OrderBy(order).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []draw
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list draws: %w", err)
	}

	draws := make([]*model.Draw, 0, len(rows))
	for i := range rows {
		participants, err := r.listParticipants(ctx, r.db, rows[i].ID)
		if err != nil {
			return nil, err
		}
		draws = append(draws, rows[i].toModel(participants))
	}
	return draws, nil
}

func (r *Repository) DeleteFinished(ctx context.Context, drawID int64) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		stateQuery, stateArgs, err := squirrel.
			Select("state").
			From("draws").
			Where(squirrel.Eq{"id": drawID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var state string
		if err := tx.GetContext(ctx, &state, stateQuery, stateArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if state == string(model.DrawOpen) {
			return ErrStillActive
		}

		deleteQuery, deleteArgs, err := squirrel.
			Delete("draws").
			Where(squirrel.Eq{"id": drawID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, deleteQuery, deleteArgs...)
		return err
	})
}
