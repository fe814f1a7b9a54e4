package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type promoCode struct {
	Code      string    `db:"code"`
	Reward    int64     `db:"reward"`
	MaxUses   int       `db:"max_uses"`
	UsedCount int       `db:"used_count"`
	VipOnly   bool      `db:"vip_only"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *Repository) CreatePromo(ctx context.Context, promo *model.PromoCode) error {
	query, args, err := squirrel.
		Insert("promo_codes").
		SetMap(map[string]interface{}{
			"code":       promo.Code,
			"reward":     promo.Reward,
			"max_uses":   promo.MaxUses,
			"vip_only":   promo.VipOnly,
			"created_at": promo.CreatedAt,
		}).
		Suffix(`ON CONFLICT (code) DO UPDATE
			SET reward = EXCLUDED.reward, max_uses = EXCLUDED.max_uses,
				vip_only = EXCLUDED.vip_only`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build promo insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert promo code: %w", err)
	}
	return nil
}

// RedeemPromo holds a row lock on the promo code for the whole
// check-then-increment, so the use cap can never be overrun by concurrent
// redemptions.
func (r *Repository) RedeemPromo(ctx context.Context, code string, telegramID int64, isVip bool) (int64, int64, error) {
	var (
		reward  int64
		balance int64
	)
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		lockQuery, lockArgs, err := squirrel.
			Select("*").
			From("promo_codes").
			Where(squirrel.Eq{"code": code}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var promo promoCode
		if err := tx.GetContext(ctx, &promo, lockQuery, lockArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		if promo.VipOnly && !isVip {
			return ErrVipOnly
		}
		if promo.UsedCount >= promo.MaxUses {
			return ErrPromoExhausted
		}

		userQuery, userArgs, err := squirrel.
			Select("used_promos").
			From("users").
			Where(squirrel.Eq{"telegram_id": telegramID}).
			Suffix("FOR UPDATE").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		var used pq.StringArray
		if err := tx.GetContext(ctx, &used, userQuery, userArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		for _, c := range used {
			if strings.EqualFold(c, code) {
				return ErrPromoUsed
			}
		}

		incrQuery, incrArgs, err := squirrel.
			Update("promo_codes").
			Set("used_count", squirrel.Expr("used_count + 1")).
			Where(squirrel.Eq{"code": code}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, incrQuery, incrArgs...); err != nil {
			return fmt.Errorf("failed to increment promo use count: %w", err)
		}

		creditQuery, creditArgs, err := squirrel.
			Update("users").
			Set("balance", squirrel.Expr("balance + ?", promo.Reward)).
			Set("used_promos", squirrel.Expr("array_append(used_promos, ?)", code)).
			Where(squirrel.Eq{"telegram_id": telegramID}).
			Suffix("RETURNING balance").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &balance, creditQuery, creditArgs...); err != nil {
			return fmt.Errorf("failed to credit promo reward: %w", err)
		}

		reward = promo.Reward
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return reward, balance, nil
}

func (r *Repository) ListPromos(ctx context.Context) ([]*model.PromoCode, error) {
	query, args, err := squirrel.
		Select("*").
		From("promo_codes").
		OrderBy("created_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []promoCode
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}

	promos := make([]*model.PromoCode, 0, len(rows))
	for _, row := range rows {
		promos = append(promos, &model.PromoCode{
			Code:      row.Code,
			Reward:    row.Reward,
			MaxUses:   row.MaxUses,
			UsedCount: row.UsedCount,
			VipOnly:   row.VipOnly,
			CreatedAt: row.CreatedAt,
		})
	}
	return promos, nil
}
