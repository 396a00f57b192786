package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jodi-app/jodi-server/internal/db"
)

// ProfileRepository handles profiles, interests, photos and preferences.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*db.Profile, error) {
	var profile db.Profile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update applies a partial update; fields holds column names as keys.
func (r *ProfileRepository) Update(ctx context.Context, userID string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Updates(fields).Error
}

func (r *ProfileRepository) SetDerived(ctx context.Context, userID string, traits map[string]float64, embedding []float64) error {
	return r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Select("personality_traits", "embedding").
		Updates(&db.Profile{PersonalityTraits: traits, Embedding: embedding}).Error
}

func (r *ProfileRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Update("last_active_at", at).Error
}

// ReplaceInterests swaps the full interest list in one transaction.
func (r *ProfileRepository) ReplaceInterests(ctx context.Context, profileID string, interests []db.Interest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&db.Interest{}, "profile_id = ?", profileID).Error; err != nil {
			return err
		}
		if len(interests) == 0 {
			return nil
		}
		for i := range interests {
			interests[i].ProfileID = profileID
		}
		return tx.Create(&interests).Error
	})
}

func (r *ProfileRepository) ListInterests(ctx context.Context, profileID string) ([]db.Interest, error) {
	var interests []db.Interest
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("importance_level DESC, name ASC").
		Find(&interests).Error
	return interests, err
}

// InterestsByProfileIDs loads interests for a batch of profiles keyed by
// profile id, for scoring candidate sets without N+1 queries.
func (r *ProfileRepository) InterestsByProfileIDs(ctx context.Context, profileIDs []string) (map[string][]db.Interest, error) {
	if len(profileIDs) == 0 {
		return map[string][]db.Interest{}, nil
	}
	var interests []db.Interest
	err := r.db.WithContext(ctx).
		Where("profile_id IN ?", profileIDs).
		Find(&interests).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string][]db.Interest, len(profileIDs))
	for _, in := range interests {
		out[in.ProfileID] = append(out[in.ProfileID], in)
	}
	return out, nil
}

// AddPhoto inserts a photo and keeps the profile's photo bookkeeping in sync.
func (r *ProfileRepository) AddPhoto(ctx context.Context, photo *db.Photo) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(photo).Error; err != nil {
			return err
		}
		updates := map[string]any{"photo_count": gorm.Expr("photo_count + 1")}
		if photo.IsPrimary {
			updates["profile_photo_url"] = photo.URL
		}
		return tx.Model(&db.Profile{}).Where("user_id = ?", photo.UserID).Updates(updates).Error
	})
}

func (r *ProfileRepository) GetPhoto(ctx context.Context, photoID string) (*db.Photo, error) {
	var photo db.Photo
	if err := r.db.WithContext(ctx).First(&photo, "id = ?", photoID).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// ModeratePhoto records the verification verdict on a photo.
func (r *ProfileRepository) ModeratePhoto(ctx context.Context, photoID, status string, nsfwScore float64) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&db.Photo{}).
		Where("id = ?", photoID).
		Updates(map[string]any{
			"moderation_status": status,
			"nsfw_score":        nsfwScore,
			"moderated_at":      now,
		}).Error
}

func (r *ProfileRepository) ListPhotos(ctx context.Context, userID string) ([]db.Photo, error) {
	var photos []db.Photo
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC, uploaded_at ASC").
		Find(&photos).Error
	return photos, err
}

func (r *ProfileRepository) DeletePhoto(ctx context.Context, userID, photoID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&db.Photo{}, "id = ? AND user_id = ?", photoID, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&db.Profile{}).Where("user_id = ?", userID).
			Update("photo_count", gorm.Expr("photo_count - 1")).Error
	})
}

func (r *ProfileRepository) Preferences(ctx context.Context, userID string) (*db.UserPreference, error) {
	var prefs db.UserPreference
	err := r.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// UpsertPreferences writes the full preference row, inserting on first save.
func (r *ProfileRepository) UpsertPreferences(ctx context.Context, prefs *db.UserPreference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(prefs).Error
}

// SearchFilter narrows a profile search; zero values mean "any".
type SearchFilter struct {
	Query  string
	City   string
	Gender string
	AgeMin int
	AgeMax int
	Limit  int
}

// Search finds visible, non-incognito profiles by free text and filters.
// The text query matches name, bio and occupation.
func (r *ProfileRepository) Search(ctx context.Context, excludeUserID string, f SearchFilter) ([]db.Profile, error) {
	q := r.db.WithContext(ctx).
		Where("is_visible = ? AND is_incognito = ?", true, false).
		Where("user_id <> ?", excludeUserID)

	if f.Query != "" {
		like := "%" + f.Query + "%"
		q = q.Where(
			"first_name LIKE ? OR display_name LIKE ? OR bio LIKE ? OR occupation LIKE ?",
			like, like, like, like)
	}
	if f.City != "" {
		q = q.Where("city = ?", f.City)
	}
	if f.Gender != "" {
		q = q.Where("gender = ?", f.Gender)
	}
	now := time.Now().UTC()
	if f.AgeMin > 0 {
		q = q.Where("date_of_birth <= ?", now.AddDate(-f.AgeMin, 0, 0))
	}
	if f.AgeMax > 0 {
		q = q.Where("date_of_birth > ?", now.AddDate(-f.AgeMax-1, 0, 0))
	}

	limit := f.Limit
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	var profiles []db.Profile
	err := q.Order("last_active_at DESC").Limit(limit).Find(&profiles).Error
	return profiles, err
}

// minDiscoveryCompletion is the completion score a profile needs before
// it enters anyone's discovery feed.
const minDiscoveryCompletion = 50

// DiscoverCandidates returns visible profiles matching the seeker's
// preference filters.
//
// Behavior:
//   - Excludes the seeker, anyone already swiped, and blocks in either
//     direction, all via NOT EXISTS so the planner can use the pair indexes.
//   - Only profiles at least half complete qualify.
//   - Gender, age window and provinces apply only when set.
//   - Most recently active first.
func (r *ProfileRepository) DiscoverCandidates(
	ctx context.Context,
	userID string,
	prefs *db.UserPreference,
	limit int,
) ([]db.Profile, error) {
	now := time.Now().UTC()
	maxDOB := now.AddDate(-prefs.AgeMin, 0, 0)
	minDOB := now.AddDate(-prefs.AgeMax-1, 0, 0)

	query := r.db.WithContext(ctx).
		Table("profiles p").
		Where("p.user_id <> ?", userID).
		Where("p.is_visible = ? AND p.is_incognito = ?", true, false).
		Where("p.completion_score >= ?", minDiscoveryCompletion).
		Where("p.date_of_birth BETWEEN ? AND ?", minDOB, maxDOB).
		Where(`NOT EXISTS (
			SELECT 1 FROM swipes s
			WHERE s.swiper_id = ? AND s.swiped_id = p.user_id
		)`, userID).
		Where(`NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_id = ? AND b.blocked_id = p.user_id)
			   OR (b.blocker_id = p.user_id AND b.blocked_id = ?)
		)`, userID, userID).
		Order("p.last_active_at DESC").
		Limit(limit)

	if len(prefs.LookingForGender) > 0 {
		query = query.Where("p.gender IN ?", prefs.LookingForGender)
	}
	if len(prefs.PreferredProvinces) > 0 {
		query = query.Where("p.province IN ?", prefs.PreferredProvinces)
	}

	var candidates []db.Profile
	err := query.Find(&candidates).Error
	return candidates, err
}

// ProfilesByUserIDs loads profiles for a set of users keyed by user id.
func (r *ProfileRepository) ProfilesByUserIDs(ctx context.Context, userIDs []string) (map[string]*db.Profile, error) {
	if len(userIDs) == 0 {
		return map[string]*db.Profile{}, nil
	}
	var profiles []db.Profile
	err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]*db.Profile, len(profiles))
	for i := range profiles {
		out[profiles[i].UserID] = &profiles[i]
	}
	return out, nil
}
