package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/carebook/internal/model"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/pkg/errors"
)

const userColumns = `
	id, cin, email, password_hash, first_name, last_name, role,
	gender, phone, address, date_of_birth, insurance_provider, insurance_id,
	profile_picture, language, theme, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, cin, email, password_hash, first_name, last_name, role,
			gender, phone, language, theme, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.CIN,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.Gender,
		user.Phone,
		user.Language,
		user.Theme,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err, "user with this email or CIN"))
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapError(err, "user"))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(email)); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", mapError(err, "user"))
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			first_name = $1,
			last_name = $2,
			gender = $3,
			phone = $4,
			address = $5,
			date_of_birth = $6,
			insurance_provider = $7,
			insurance_id = $8,
			profile_picture = $9,
			language = $10,
			theme = $11,
			updated_at = $12
		WHERE id = $13
	`

	user.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query,
		user.FirstName,
		user.LastName,
		user.Gender,
		user.Phone,
		user.Address,
		user.DateOfBirth,
		user.InsuranceProvider,
		user.InsuranceID,
		user.ProfilePicture,
		user.Language,
		user.Theme,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapError(err, "user"))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NotFound("user", nil)
	}
	return nil
}

// UpdateRole locks the user row, so it serializes with appointment
// transitions that assign this user as doctor. A doctor still assigned to
// appointments cannot be demoted.
func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, from, to model.Role) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var role model.Role
		if err := tx.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
			return mapError(err, "user")
		}
		if role != from {
			return errors.NotFound("user", nil)
		}

		if from == model.RoleDoctor {
			assigned, err := countAssigned(ctx, tx, id)
			if err != nil {
				return err
			}
			if assigned > 0 {
				return errors.Conflict(fmt.Sprintf("doctor has %d assigned appointments", assigned), nil)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, to, id); err != nil {
			return fmt.Errorf("failed to update user role: %w", mapError(err, "user"))
		}
		return nil
	})
}

func countAssigned(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID) (int, error) {
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM appointments WHERE doctor_id = $1`, doctorID); err != nil {
		return 0, fmt.Errorf("failed to count assigned appointments: %w", mapError(err, "appointment"))
	}
	return count, nil
}

func (r *userRepository) List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int, error) {
	if filters == nil {
		filters = &model.UserFilters{}
	}
	filters.Pagination.Normalize()

	where := " WHERE 1=1"
	args := []interface{}{}

	if filters.Role != "" {
		args = append(args, filters.Role)
		where += fmt.Sprintf(" AND role = $%d", len(args))
	}

	if filters.Search != "" {
		args = append(args, "%"+strings.ToLower(filters.Search)+"%")
		where += fmt.Sprintf(" AND (LOWER(first_name || ' ' || last_name) LIKE $%d OR email LIKE $%d)", len(args), len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", mapError(err, "user"))
	}

	args = append(args, filters.PageSize, filters.Offset())
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	users := []*model.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", mapError(err, "user"))
	}
	return users, total, nil
}

// Ban deletes the user. Owned rows go through ON DELETE CASCADE. Confirmed
// appointments the user was assigned to as doctor return to pending for
// reassignment. Completed ones are patient history, so their doctor blocks
// the ban until an admin reassigns them. Documents the user uploaded into
// other patients' records stay there, attributed to the record owner.
func (r *userRepository) Ban(ctx context.Context, id uuid.UUID, audit *model.AuditLog) ([]string, error) {
	var keys []string
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var role model.Role
		if err := tx.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
			return mapError(err, "user")
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE appointments SET doctor_id = NULL, status = 'pending', updated_at = NOW()
			WHERE doctor_id = $1 AND status = 'confirmed'`, id); err != nil {
			return fmt.Errorf("failed to release confirmed assignments: %w", mapError(err, "appointment"))
		}

		completed, err := countAssigned(ctx, tx, id)
		if err != nil {
			return err
		}
		if completed > 0 {
			return errors.Conflict(fmt.Sprintf("doctor has %d completed appointments", completed), nil)
		}

		// Comment locks are taken before the cascade so in-flight toggles
		// finish first and the recount below sees the final liker sets.
		var liked []string
		if err := tx.SelectContext(ctx, &liked, `
			SELECT c.id::text FROM comments c
			JOIN comment_likes l ON l.comment_id = c.id
			WHERE l.user_id = $1 AND c.user_id <> $1
			ORDER BY c.id
			FOR UPDATE OF c`, id); err != nil {
			return fmt.Errorf("failed to lock liked comments: %w", mapError(err, "comment"))
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET uploaded_by = user_id
			WHERE uploaded_by = $1 AND user_id <> $1`, id); err != nil {
			return fmt.Errorf("failed to reattribute documents: %w", mapError(err, "document"))
		}

		if err := tx.SelectContext(ctx, &keys,
			`DELETE FROM documents WHERE user_id = $1 RETURNING storage_key`, id); err != nil {
			return fmt.Errorf("failed to remove documents: %w", mapError(err, "document"))
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", mapError(err, "user"))
		}

		if len(liked) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE comments c
				SET likes = (SELECT COUNT(*) FROM comment_likes l WHERE l.comment_id = c.id)
				WHERE c.id = ANY($1::uuid[])`, pq.Array(liked)); err != nil {
				return fmt.Errorf("failed to recount likes: %w", mapError(err, "comment"))
			}
		}

		return insertAudit(ctx, tx, audit)
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
