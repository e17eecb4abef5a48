package origin

import (
	"time"
)

// Session is the per-origin record of what a site has been granted.
type Session struct {
	Origin             string    `json:"origin"`
	SelectedAccount    string    `json:"selected_account,omitempty"`
	SelectedChainIDHex string    `json:"selected_chain_id_hex,omitempty"`
	Disconnected       bool      `json:"disconnected"`
	OnlineAt           time.Time `json:"online_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsActive reports whether the site currently has an account exposed.
// A disconnected session that still carries an account is not active.
func (s *Session) IsActive() bool {
	return s != nil && s.SelectedAccount != "" && !s.Disconnected
}

// Clone returns a detached copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Fields are the values supplied when a session is first created.
type Fields struct {
	SelectedAccount    string
	SelectedChainIDHex string
}

// Patch is a partial update. Nil fields are left untouched, so clearing
// the account is expressed as SelectedAccount: Ptr("").
type Patch struct {
	SelectedAccount    *string
	SelectedChainIDHex *string
	Disconnected       *bool
	OnlineAt           *time.Time
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.SelectedAccount == nil && p.SelectedChainIDHex == nil &&
		p.Disconnected == nil && p.OnlineAt == nil
}

func (p Patch) apply(s *Session) {
	if p.SelectedAccount != nil {
		s.SelectedAccount = *p.SelectedAccount
	}
	if p.SelectedChainIDHex != nil {
		s.SelectedChainIDHex = *p.SelectedChainIDHex
	}
	if p.Disconnected != nil {
		s.Disconnected = *p.Disconnected
	}
	if p.OnlineAt != nil {
		s.OnlineAt = *p.OnlineAt
	}
}

// ChangeKind describes what happened to a session.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is delivered to watchers after a write has been persisted.
// Session is nil for deletions.
type Change struct {
	Kind    ChangeKind
	Origin  string
	Session *Session
}
