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
	"github.com/lib/pq"
)

// StartingBalance is credited to every user on first contact.
const StartingBalance int64 = 1000

type user struct {
	TelegramID       int64          `db:"telegram_id"`
	Username         string         `db:"username"`
	FirstName        string         `db:"first_name"`
	Balance          int64          `db:"balance"`
	ReferrerID       *int64         `db:"referrer_id"`
	ReferralEarnings int64          `db:"referral_earnings"`
	UsedPromos       pq.StringArray `db:"used_promos"`
	MilestoneGranted bool           `db:"milestone_granted"`
	VipExpiry        *time.Time     `db:"vip_expiry"`
	RegistrationDate time.Time      `db:"registration_date"`
}

type referral struct {
	ID        int64     `db:"id"`
	InviterID int64     `db:"inviter_id"`
	Name      string    `db:"name"`
	JoinedAt  time.Time `db:"joined_at"`
}

func (u *user) toModel(refs []referral) *model.User {
	m := &model.User{
		TelegramID:       u.TelegramID,
		Username:         u.Username,
		FirstName:        u.FirstName,
		Balance:          u.Balance,
		ReferrerID:       u.ReferrerID,
		ReferralEarnings: u.ReferralEarnings,
		UsedPromoCodes:   u.UsedPromos,
		MilestoneGranted: u.MilestoneGranted,
		VipExpiry:        u.VipExpiry,
		RegistrationDate: u.RegistrationDate,
	}
	for _, ref := range refs {
		m.Referrals = append(m.Referrals, model.Referral{Name: ref.Name, JoinedAt: ref.JoinedAt})
	}
	return m
}

func (r *Repository) SyncUser(ctx context.Context, telegramID int64, username, firstName string) (*model.User, error) {
	var row user
	query, args, err := squirrel.
		Insert("users").
		SetMap(map[string]interface{}{
			"telegram_id": telegramID,
			"username":    username,
			"first_name":  firstName,
			"balance":     StartingBalance,
		}).
		Suffix(`ON CONFLICT (telegram_id) DO UPDATE
			SET username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
				first_name = COALESCE(NULLIF(EXCLUDED.first_name, ''), users.first_name)
			RETURNING *`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user upsert query: %w", err)
	}

	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	refs, err := r.listReferrals(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	return row.toModel(refs), nil
}

func (r *Repository) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return r.getUserWhere(ctx, squirrel.Eq{"telegram_id": telegramID})
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getUserWhere(ctx, squirrel.Eq{"username": username})
}

func (r *Repository) getUserWhere(ctx context.Context, pred interface{}) (*model.User, error) {
	var row user
	query, args, err := squirrel.
		Select("*").
		From("users").
		Where(pred).
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

	refs, err := r.listReferrals(ctx, row.TelegramID)
	if err != nil {
		return nil, err
	}

	return row.toModel(refs), nil
}

func (r *Repository) listReferrals(ctx context.Context, inviterID int64) ([]referral, error) {
	query, args, err := squirrel.
		Select("*").
		From("referrals").
		Where(squirrel.Eq{"inviter_id": inviterID}).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var refs []referral
	if err := r.db.SelectContext(ctx, &refs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return refs, nil
}

func (r *Repository) CreditBalance(ctx context.Context, telegramID int64, amount int64) (int64, error) {
	query, args, err := squirrel.
		Update("users").
		Set("balance", squirrel.Expr("balance + ?", amount)).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		Suffix("RETURNING balance").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build balance update query: %w", err)
	}

	var balance int64
	if err := r.db.GetContext(ctx, &balance, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}
	return balance, nil
}

func (r *Repository) SetReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error) {
	query, args, err := squirrel.
		Update("users").
		Set("referrer_id", referrerID).
		Where(squirrel.Eq{"telegram_id": telegramID}).
		Where("referrer_id IS NULL").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build referrer update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to set referrer: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *Repository) AddReferral(ctx context.Context, inviterID int64, ref model.Referral, bonus int64) (int, int64, error) {
	var (
		refCount int
		balance  int64
	)
	err := r.Transaction(ctx, func(tx *sqlx.Tx) error {
		insertQuery, insertArgs, err := squirrel.
			Insert("referrals").
			SetMap(map[string]interface{}{
				"inviter_id": inviterID,
				"name":       ref.Name,
				"joined_at":  ref.JoinedAt,
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build referral insert query: %w", err)
		}

		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return fmt.Errorf("failed to insert referral: %w", err)
		}

		updateQuery, updateArgs, err := squirrel.
			Update("users").
			Set("balance", squirrel.Expr("balance + ?", bonus)).
			Set("referral_earnings", squirrel.Expr("referral_earnings + ?", bonus)).
			Where(squirrel.Eq{"telegram_id": inviterID}).
			Suffix("RETURNING balance").
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build inviter update query: %w", err)
		}

		if err := tx.GetContext(ctx, &balance, updateQuery, updateArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to credit inviter: %w", err)
		}

		countQuery, countArgs, err := squirrel.
			Select("COUNT(*)").
			From("referrals").
			Where(squirrel.Eq{"inviter_id": inviterID}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return err
		}

		return tx.GetContext(ctx, &refCount, countQuery, countArgs...)
	})
	if err != nil {
		return 0, 0, err
	}
	return refCount, balance, nil
}

func (r *Repository) ClaimMilestone(ctx context.Context, inviterID int64, bonus int64) (bool, error) {
	query, args, err := squirrel.
		Update("users").
		Set("milestone_granted", true).
		Set("balance", squirrel.Expr("balance + ?", bonus)).
		Where(squirrel.Eq{"telegram_id": inviterID, "milestone_granted": false}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build milestone update query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim milestone: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	query, args, err := squirrel.
		Select("COUNT(*)").
		From("users").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
