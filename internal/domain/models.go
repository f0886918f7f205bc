// Package domain defines the persistence models for users, puzzles,
// categories and the messages exchanged while negotiating a puzzle handoff.
// These types are mapped with GORM and shared by the repository and service
// layers.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// User is a registered puzzler. Identity itself is established upstream;
// this row only carries what the exchange needs.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Username / Email: unique handles.
//   - LastSeen: last time the user looked at anything that touched their inbox.
//   - LastMessageReadTime: inbox watermark used for the legacy unread count.
type User struct {
	ID                  string     `json:"id"         gorm:"type:char(36);primaryKey"`
	Username            string     `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Email               string     `json:"email"      gorm:"type:varchar(120);not null;uniqueIndex:ux_users_email"`
	AboutMe             string     `json:"about_me"   gorm:"type:varchar(140)"`
	LastSeen            *time.Time `json:"last_seen,omitempty"`
	LastMessageReadTime *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Category is a free label attached to puzzles (many-to-many).
type Category struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(64);not null;uniqueIndex:ux_categories_name"`
	CreatedAt time.Time `json:"-"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Puzzle is a listing owned by exactly one user at a time. Its lifecycle is
// persisted as four flags; State derives the tagged state from them and the
// services only ever write flag combinations produced by FlagsFor.
//
// Fields:
//   - UserID: current owner; reassigned when a request is approved.
//   - RequestedBy: the user whose request is pending (nil otherwise).
//   - IsAvailable / IsRequested / InProgress: at most one is true.
//   - IsDeleted: soft-delete overlay, never reverted.
//   - Status: derived from the flags after every load; not persisted.
type Puzzle struct {
	ID           string  `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string  `json:"user_id"       gorm:"type:char(36);not null;index:idx_puzzles_owner"`
	RequestedBy  *string `json:"requested_by,omitempty" gorm:"type:char(36);index"`
	Title        string  `json:"title"         gorm:"type:varchar(64);not null"`
	Pieces       int     `json:"pieces"        gorm:"not null;check:pieces > 0"`
	Manufacturer string  `json:"manufacturer"  gorm:"type:varchar(64);not null"`
	Description  string  `json:"description"   gorm:"type:varchar(140)"`
	ImageURL     string  `json:"image_url"     gorm:"type:varchar(512)"`

	IsAvailable bool `json:"is_available" gorm:"not null;index:idx_puzzles_listing,priority:1"`
	IsRequested bool `json:"is_requested" gorm:"not null"`
	InProgress  bool `json:"in_progress"  gorm:"not null"`
	IsDeleted   bool `json:"is_deleted"   gorm:"not null;index:idx_puzzles_listing,priority:2"`

	Status State `json:"status" gorm:"-"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	Owner      *User      `json:"owner,omitempty"      gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Categories []Category `json:"categories,omitempty" gorm:"many2many:puzzle_categories;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Puzzle.
func (Puzzle) TableName() string { return "puzzles" }

// Flags returns the persisted lifecycle flags of p.
func (p *Puzzle) Flags() Flags {
	return Flags{
		IsAvailable: p.IsAvailable,
		IsRequested: p.IsRequested,
		InProgress:  p.InProgress,
		IsDeleted:   p.IsDeleted,
	}
}

// SetFlags writes f onto p and refreshes Status.
func (p *Puzzle) SetFlags(f Flags) {
	p.IsAvailable = f.IsAvailable
	p.IsRequested = f.IsRequested
	p.InProgress = f.InProgress
	p.IsDeleted = f.IsDeleted
	p.RefreshStatus()
}

// State reports the tagged lifecycle state, or ErrInconsistentFlags when the
// stored combination does not map to exactly one state.
func (p *Puzzle) State() (State, error) { return p.Flags().State() }

// RefreshStatus recomputes the derived Status field. Inconsistent rows get an
// empty status.
func (p *Puzzle) RefreshStatus() {
	s, err := p.State()
	if err != nil {
		s = ""
	}
	p.Status = s
}

// AfterFind keeps Status in sync for every row GORM loads.
func (p *Puzzle) AfterFind(*gorm.DB) error {
	p.RefreshStatus()
	return nil
}

// Message is one entry of a negotiation thread about a puzzle. Each side can
// hide it independently; rows are never physically removed.
//
// Fields:
//   - PuzzleID: subject of the negotiation.
//   - SenderID / RecipientID: the two parties.
//   - IsRead: recipient-scoped read marker.
//   - IsDeletedBySender / IsDeletedByRecipient: per-party soft delete.
//   - IsAutomated: generated by an approve/decline transition.
type Message struct {
	ID                   string    `json:"id"           gorm:"type:char(36);primaryKey"`
	PuzzleID             string    `json:"puzzle_id"    gorm:"type:char(36);not null;index:idx_messages_thread,priority:1"`
	SenderID             string    `json:"sender_id"    gorm:"type:char(36);not null;index:idx_messages_sender"`
	RecipientID          string    `json:"recipient_id" gorm:"type:char(36);not null;index:idx_messages_inbox,priority:1"`
	Content              string    `json:"content"      gorm:"type:text;not null"`
	IsRead               bool      `json:"is_read"      gorm:"not null;index:idx_messages_inbox,priority:2"`
	IsDeletedBySender    bool      `json:"-"            gorm:"not null"`
	IsDeletedByRecipient bool      `json:"-"            gorm:"not null"`
	IsAutomated          bool      `json:"is_automated" gorm:"not null"`
	CreatedAt            time.Time `json:"created_at"   gorm:"index:idx_messages_thread,priority:2"`
	UpdatedAt            time.Time `json:"updated_at"`

	Puzzle    *Puzzle `json:"-" gorm:"foreignKey:PuzzleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Sender    *User   `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Recipient *User   `json:"-" gorm:"foreignKey:RecipientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// VisibleTo reports whether userID may still see m: they must be a party and
// must not have deleted it from their side.
func (m *Message) VisibleTo(userID string) bool {
	switch userID {
	case m.SenderID:
		return !m.IsDeletedBySender
	case m.RecipientID:
		return !m.IsDeletedByRecipient
	default:
		return false
	}
}

// Counterpart returns the other party of m from userID's point of view.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}
