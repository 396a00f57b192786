package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Swipe actions.
const (
	ActionLike      = "like"
	ActionDislike   = "dislike"
	ActionSuperlike = "superlike"
)

// Match / subscription / payment statuses.
const (
	MatchActive    = "active"
	MatchUnmatched = "unmatched"

	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"

	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Moderation statuses for photos and messages.
const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationFlagged  = "flagged"
	ModerationRejected = "rejected"
)

// User is the account row. Profile data lives in Profile.
type User struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	Email        string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone        *string `gorm:"uniqueIndex;size:20" json:"phone"`
	PasswordHash string  `gorm:"size:255;not null" json:"-"`

	IsActive         bool   `gorm:"default:true" json:"is_active"`
	IsVerified       bool   `gorm:"default:false" json:"is_verified"`
	SubscriptionTier string `gorm:"size:20;default:free" json:"subscription_tier"`
	Role             string `gorm:"size:20;default:user" json:"role"`

	EmailVerifiedAt     *time.Time `json:"email_verified_at"`
	PhoneVerifiedAt     *time.Time `json:"phone_verified_at"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	FailedLoginAttempts int        `gorm:"default:0" json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until"`

	ConsentGiven   bool       `gorm:"default:false" json:"consent_given"`
	ConsentGivenAt *time.Time `json:"consent_given_at"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Profile holds everything shown on a user's card plus the AI-derived
// fields (personality traits, embedding) the matching agent works with.
type Profile struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"uniqueIndex;size:36;not null" json:"user_id"`

	FirstName   string    `gorm:"size:100;not null" json:"first_name"`
	LastName    string    `gorm:"size:100" json:"last_name"`
	DisplayName string    `gorm:"size:100" json:"display_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      string    `gorm:"size:20" json:"gender"`

	Country   string   `gorm:"size:50;default:Nepal" json:"country"`
	Province  string   `gorm:"size:50" json:"province"`
	District  string   `gorm:"size:50" json:"district"`
	City      string   `gorm:"size:100" json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Bio        string `gorm:"type:text" json:"bio"`
	AboutMe    string `gorm:"type:text" json:"about_me"`
	LookingFor string `gorm:"type:text" json:"looking_for"`

	HeightCM     int    `gorm:"default:0" json:"height_cm"`
	Education    string `gorm:"size:100" json:"education"`
	Occupation   string `gorm:"size:100" json:"occupation"`
	Religion     string `gorm:"size:50" json:"religion"`
	MotherTongue string `gorm:"size:50" json:"mother_tongue"`

	MaritalStatus string `gorm:"size:30" json:"marital_status"`
	Drinking      string `gorm:"size:20" json:"drinking"`
	Smoking       string `gorm:"size:20" json:"smoking"`
	Diet          string `gorm:"size:30" json:"diet"`

	ProfilePhotoURL string `gorm:"size:500" json:"profile_photo_url"`
	PhotoCount      int    `gorm:"default:0" json:"photo_count"`

	IsPhotoVerified        bool `gorm:"default:false" json:"is_photo_verified"`
	VerificationBadgeLevel int  `gorm:"default:0" json:"verification_badge_level"`

	CompletionScore int  `gorm:"default:0" json:"completion_score"`
	IsVisible       bool `gorm:"default:true" json:"is_visible"`
	IsIncognito     bool `gorm:"default:false" json:"is_incognito"`

	// Populated by the profile agent.
	PersonalityTraits map[string]float64 `gorm:"serializer:json" json:"personality_traits"`
	Embedding         []float64          `gorm:"serializer:json" json:"-"`

	LastActiveAt *time.Time `gorm:"index" json:"last_active_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Age computed from date of birth, zero if unknown.
func (p *Profile) Age(now time.Time) int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	age := now.Year() - p.DateOfBirth.Year()
	if now.YearDay() < p.DateOfBirth.YearDay() {
		age--
	}
	return age
}

type Interest struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	ProfileID       string    `gorm:"size:36;not null;uniqueIndex:uniq_profile_interest,priority:1" json:"profile_id"`
	Name            string    `gorm:"size:100;not null;uniqueIndex:uniq_profile_interest,priority:2" json:"name"`
	Category        string    `gorm:"size:50" json:"category"`
	ImportanceLevel int       `gorm:"default:3" json:"importance_level"`
	CreatedAt       time.Time `json:"created_at"`
}

func (i *Interest) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

type Photo struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:36;not null;index" json:"user_id"`

	URL          string `gorm:"size:500;not null" json:"url"`
	ThumbnailURL string `gorm:"size:500" json:"thumbnail_url"`
	MimeType     string `gorm:"size:50" json:"mime_type"`

	IsPrimary        bool     `gorm:"default:false" json:"is_primary"`
	ModerationStatus string   `gorm:"size:20;default:pending" json:"moderation_status"`
	NSFWScore        *float64 `gorm:"type:decimal(3,2)" json:"nsfw_score"`

	UploadedAt  time.Time  `gorm:"autoCreateTime" json:"uploaded_at"`
	ModeratedAt *time.Time `json:"moderated_at"`
}

func (p *Photo) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type UserPreference struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"uniqueIndex;size:36;not null" json:"user_id"`

	LookingForGender []string `gorm:"serializer:json" json:"looking_for_gender"`
	AgeMin           int      `gorm:"default:18" json:"age_min"`
	AgeMax           int      `gorm:"default:50" json:"age_max"`
	MaxDistanceKM    int      `gorm:"default:50" json:"max_distance_km"`

	PreferredProvinces []string `gorm:"serializer:json" json:"preferred_provinces"`
	PreferredReligions []string `gorm:"serializer:json" json:"preferred_religions"`

	DealBreakerSmoking  bool `gorm:"default:false" json:"deal_breaker_smoking"`
	DealBreakerDrinking bool `gorm:"default:false" json:"deal_breaker_drinking"`

	EmailNotifications   bool `gorm:"default:true" json:"email_notifications"`
	PushNotifications    bool `gorm:"default:true" json:"push_notifications"`
	MatchNotifications   bool `gorm:"default:true" json:"match_notifications"`
	MessageNotifications bool `gorm:"default:true" json:"message_notifications"`

	ShowOnlineStatus bool `gorm:"default:true" json:"show_online_status"`
	ShowDistance     bool `gorm:"default:true" json:"show_distance"`
	AllowDiscovery   bool `gorm:"default:true" json:"allow_discovery"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *UserPreference) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Swipe records a swiper's decision on another user.
//
// Unique index (swiper_id, swiped_id) guarantees a single decision per pair;
// re-swipes are rejected at the service layer rather than upserted, matching
// the product rule that a swipe is final.
//
// Indexes:
//   - idx_swipes_swiped_action(swiped_id, action) for "who liked me" lookups
//     and the O(1) mutual-like check.
type Swipe struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SwiperID      string    `gorm:"size:36;not null;uniqueIndex:uniq_swipe,priority:1" json:"swiper_id"`
	SwipedID      string    `gorm:"size:36;not null;uniqueIndex:uniq_swipe,priority:2;index:idx_swipes_swiped_action,priority:1" json:"swiped_id"`
	Action        string    `gorm:"size:20;not null;index:idx_swipes_swiped_action,priority:2" json:"action"`
	Context       string    `gorm:"size:50;default:discovery" json:"context"`
	Compatibility *float64  `gorm:"type:decimal(5,2)" json:"compatibility"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (s *Swipe) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Match is a mutual like. User1ID < User2ID always (enforced by the
// repository) so the unique index catches duplicates regardless of which
// side swiped last.
type Match struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	User1ID string `gorm:"size:36;not null;uniqueIndex:uniq_match,priority:1" json:"user1_id"`
	User2ID string `gorm:"size:36;not null;uniqueIndex:uniq_match,priority:2" json:"user2_id"`

	Status      string `gorm:"size:20;default:active" json:"status"`
	InitiatedBy string `gorm:"size:36" json:"initiated_by"`

	Compatibility *float64 `gorm:"type:decimal(5,2)" json:"compatibility"`
	MatchReason   string   `gorm:"type:text" json:"match_reason"`

	FirstMessageAt *time.Time `json:"first_message_at"`
	LastMessageAt  *time.Time `json:"last_message_at"`
	MessageCount   int        `gorm:"default:0" json:"message_count"`

	UnmatchedAt     *time.Time `json:"unmatched_at"`
	UnmatchedBy     string     `gorm:"size:36" json:"unmatched_by"`
	UnmatchedReason string     `gorm:"type:text" json:"unmatched_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *Match) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Other returns the match participant that is not userID.
func (m *Match) Other(userID string) string {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// Conversation is 1:1 with Match. Unread counts are tracked per side.
type Conversation struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	MatchID string `gorm:"uniqueIndex;size:36;not null" json:"match_id"`
	User1ID string `gorm:"size:36;not null;index" json:"user1_id"`
	User2ID string `gorm:"size:36;not null;index" json:"user2_id"`

	IsActive         bool `gorm:"default:true" json:"is_active"`
	TotalMessages    int  `gorm:"default:0" json:"total_messages"`
	UnreadCountUser1 int  `gorm:"default:0" json:"unread_count_user1"`
	UnreadCountUser2 int  `gorm:"default:0" json:"unread_count_user2"`

	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// HasMember reports whether userID participates in the conversation.
func (c *Conversation) HasMember(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the peer of userID in the conversation.
func (c *Conversation) Other(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type Message struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string `gorm:"size:36;not null;index:idx_messages_convo_created,priority:1" json:"conversation_id"`
	SenderID       string `gorm:"size:36;not null" json:"sender_id"`

	Content     string `gorm:"type:text;not null" json:"content"`
	ContentType string `gorm:"size:20;default:text" json:"content_type"`
	MediaURL    string `gorm:"size:500" json:"media_url"`

	ModerationStatus string   `gorm:"size:20;default:approved" json:"moderation_status"`
	ToxicityScore    *float64 `gorm:"type:decimal(4,3)" json:"toxicity_score"`
	FlaggedReason    string   `gorm:"type:text" json:"flagged_reason"`

	IsAISuggestion bool `gorm:"default:false" json:"is_ai_suggestion"`

	IsRead    bool       `gorm:"default:false" json:"is_read"`
	ReadAt    *time.Time `json:"read_at"`
	IsDeleted bool       `gorm:"default:false" json:"is_deleted"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_messages_convo_created,priority:2" json:"created_at"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Subscription references a plan by code; the plan catalog itself is static
// (internal/plans) rather than a table, mirroring how the product ships
// pricing changes with releases.
type Subscription struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   string `gorm:"size:36;not null;index" json:"user_id"`
	PlanCode string `gorm:"size:20;not null" json:"plan_code"`
	Period   string `gorm:"size:20;default:monthly" json:"period"`

	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at"`

	Status    string `gorm:"size:20;default:active;index" json:"status"`
	AutoRenew bool   `gorm:"default:true" json:"auto_renew"`

	PaymentMethod string `gorm:"size:50" json:"payment_method"`

	CancelledAt        *time.Time `json:"cancelled_at"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

type Payment struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	UserID         string  `gorm:"size:36;not null;index" json:"user_id"`
	SubscriptionID *string `gorm:"size:36" json:"subscription_id"`

	PlanCode string `gorm:"size:20" json:"plan_code"`
	Period   string `gorm:"size:20" json:"period"`

	AmountNPR float64 `gorm:"type:decimal(10,2);not null" json:"amount_npr"`
	Currency  string  `gorm:"size:3;default:NPR" json:"currency"`
	Method    string  `gorm:"size:50;not null" json:"method"`

	ExternalTransactionID string `gorm:"size:255;index" json:"external_transaction_id"`

	Status        string `gorm:"size:20;default:pending" json:"status"`
	FailureReason string `gorm:"type:text" json:"failure_reason"`

	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

type Report struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	ReporterID string `gorm:"size:36;not null;index" json:"reporter_id"`
	ReportedID string `gorm:"size:36;not null;index" json:"reported_id"`

	Type             string  `gorm:"size:50;not null" json:"type"`
	Description      string  `gorm:"type:text" json:"description"`
	RelatedMessageID *string `gorm:"size:36" json:"related_message_id"`

	Status      string     `gorm:"size:20;default:pending;index" json:"status"`
	Resolution  string     `gorm:"size:50" json:"resolution"`
	ResolvedBy  string     `gorm:"size:36" json:"resolved_by"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	ActionTaken string     `gorm:"type:text" json:"action_taken"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Report) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type Block struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	BlockerID string    `gorm:"size:36;not null;uniqueIndex:uniq_block,priority:1" json:"blocker_id"`
	BlockedID string    `gorm:"size:36;not null;uniqueIndex:uniq_block,priority:2" json:"blocked_id"`
	Reason    string    `gorm:"type:text" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (b *Block) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// AgentLog records every agent execution, success or failure. Payloads are
// stored as raw JSON text.
type AgentLog struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	AgentName    string  `gorm:"size:50;not null;index" json:"agent_name"`
	AgentVersion string  `gorm:"size:20" json:"agent_version"`
	RequestType  string  `gorm:"size:50;not null" json:"request_type"`
	UserID       *string `gorm:"size:36;index" json:"user_id"`

	InputPayload  string `gorm:"type:text" json:"input_payload"`
	OutputPayload string `gorm:"type:text" json:"output_payload"`

	ExecutionTimeMS int `json:"execution_time_ms"`
	TokensUsed      int `json:"tokens_used"`

	Success      bool   `json:"success"`
	ErrorMessage string `gorm:"type:text" json:"error_message"`
	RequestID    string `gorm:"size:100" json:"request_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *AgentLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

type Notification struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"size:36;not null;index" json:"user_id"`

	Type      string `gorm:"size:50;not null" json:"type"`
	Title     string `gorm:"size:200;not null" json:"title"`
	Body      string `gorm:"type:text" json:"body"`
	ActionURL string `gorm:"size:500" json:"action_url"`

	IsRead bool       `gorm:"default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	SentViaPush bool `gorm:"default:false" json:"sent_via_push"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

type Recommendation struct {
	ID                string `gorm:"primaryKey;size:36" json:"id"`
	UserID            string `gorm:"size:36;not null;uniqueIndex:uniq_recommendation,priority:1" json:"user_id"`
	RecommendedUserID string `gorm:"size:36;not null;uniqueIndex:uniq_recommendation,priority:2" json:"recommended_user_id"`

	Compatibility   float64  `gorm:"type:decimal(5,2);not null" json:"compatibility"`
	Reason          string   `gorm:"type:text" json:"reason"`
	CommonInterests []string `gorm:"serializer:json" json:"common_interests"`

	ShownToUser bool       `gorm:"default:false" json:"shown_to_user"`
	UserAction  string     `gorm:"size:20" json:"user_action"`
	ActionAt    *time.Time `json:"action_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (r *Recommendation) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// PushSubscription stores one web-push subscription per user (latest wins).
type PushSubscription struct {
	ID     string `gorm:"primaryKey;size:36" json:"id"`
	UserID string `gorm:"uniqueIndex;size:36;not null" json:"user_id"`

	Endpoint string `gorm:"size:500;not null" json:"endpoint"`
	P256dh   string `gorm:"size:255;not null" json:"p256dh"`
	Auth     string `gorm:"size:255;not null" json:"auth"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *PushSubscription) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
