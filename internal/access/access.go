// Package access computes a user's capability level for an account.
//
// The evaluator is a pure function over already-loaded account rows; it is
// re-run against fresh rows on every request and never caches a result.
package access

import (
	"encoding/json"
	"fmt"
)

// Level is the capability a user holds over a specific account.
// The ordering None < Read < Write < Owner is the only semantic it carries.
type Level int

const (
	None Level = iota
	Read
	Write
	Owner
)

var levelNames = map[Level]string{
	None:  "NONE",
	Read:  "READ",
	Write: "WRITE",
	Owner: "OWNER",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// CanWrite reports whether the level permits balance-affecting operations.
func (l Level) CanWrite() bool { return l >= Write }

// CanRead reports whether the level permits seeing the account at all.
func (l Level) CanRead() bool { return l > None }

// ParseLevel converts the wire form ("READ", "WRITE", ...) back to a Level.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if name == s {
			return l, nil
		}
	}
	return None, fmt.Errorf("unknown access level %q", s)
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Visibility controls who in the family sees an account by default.
type Visibility string

const (
	VisibilityFamily  Visibility = "FAMILY"
	VisibilityPrivate Visibility = "PRIVATE"
)

func (v Visibility) Valid() bool {
	return v == VisibilityFamily || v == VisibilityPrivate
}

// Share grants one user an explicit level on a PRIVATE account.
// Only Read and Write are grantable; ownership is a column, not a share.
type Share struct {
	UserID string `json:"user_id"`
	Level  Level  `json:"level"`
}

// ShareList is an ordered set of shares, unique per user id.
type ShareList []Share

// Get returns the level granted to userID, if any.
func (s ShareList) Get(userID string) (Level, bool) {
	for _, sh := range s {
		if sh.UserID == userID {
			return sh.Level, true
		}
	}
	return None, false
}

// With returns the list with the grant for userID set to level. An existing
// entry for the same user is replaced in place; order is otherwise preserved.
func (s ShareList) With(userID string, level Level) ShareList {
	for i, sh := range s {
		if sh.UserID == userID {
			out := make(ShareList, len(s))
			copy(out, s)
			out[i].Level = level
			return out
		}
	}
	out := make(ShareList, len(s), len(s)+1)
	copy(out, s)
	return append(out, Share{UserID: userID, Level: level})
}

// Without returns the list with any grant for userID removed.
func (s ShareList) Without(userID string) ShareList {
	out := make(ShareList, 0, len(s))
	for _, sh := range s {
		if sh.UserID != userID {
			out = append(out, sh)
		}
	}
	return out
}

// Validate rejects duplicate user ids and non-grantable levels.
func (s ShareList) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, sh := range s {
		if sh.UserID == "" {
			return fmt.Errorf("share entry with empty user id")
		}
		if _, dup := seen[sh.UserID]; dup {
			return fmt.Errorf("duplicate share entry for user %s", sh.UserID)
		}
		seen[sh.UserID] = struct{}{}
		if sh.Level != Read && sh.Level != Write {
			return fmt.Errorf("share for user %s has non-grantable level %s", sh.UserID, sh.Level)
		}
	}
	return nil
}

// Evaluate computes the capability userID holds over an account, in strict
// precedence order: ownership, then FAMILY visibility (joint accounts are
// writable by every family member), then the explicit share list.
func Evaluate(ownerUserID string, vis Visibility, shares ShareList, userID string) Level {
	if ownerUserID != "" && ownerUserID == userID {
		return Owner
	}
	if vis == VisibilityFamily {
		return Write
	}
	if level, ok := shares.Get(userID); ok {
		return level
	}
	return None
}
