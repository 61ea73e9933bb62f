// Package model defines the records persisted by the local store.
// Every type here is JSON-serializable; field names match the stored shape.
package model

import "slices"

// DefaultAvatar is assigned to every identity created by login or signup.
const DefaultAvatar = "https://images.unsplash.com/photo-1649972904349-6e44c42644a7?w=150&h=150&fit=crop&crop=face"

// User is an identity record. There are no credentials on it: the demo accepts
// any password and never stores one.
//
// Followers and Following are id sets. Posts is a lifetime counter of posts
// created by the user; deleting a post does not decrement it.
type User struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Avatar    string   `json:"avatar"`
	Bio       string   `json:"bio,omitempty"`
	Followers []string `json:"followers"`
	Following []string `json:"following"`
	Posts     int      `json:"posts"`
}

// Normalize applies defaults to a record that may have been written by an
// older variant of the store: nil sets become empty, duplicates and
// self-membership are dropped, and a negative counter is clamped to zero.
func (u *User) Normalize() {
	u.Followers = cleanIDSet(u.Followers, u.ID)
	u.Following = cleanIDSet(u.Following, u.ID)
	if u.Posts < 0 {
		u.Posts = 0
	}
}

// Clone returns a deep copy so callers can mutate the sets freely.
func (u User) Clone() User {
	u.Followers = slices.Clone(u.Followers)
	u.Following = slices.Clone(u.Following)
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Following == nil {
		u.Following = []string{}
	}
	return u
}

// IsFollowing reports whether u follows the given id.
func (u User) IsFollowing(id string) bool {
	return slices.Contains(u.Following, id)
}

// HasFollower reports whether the given id follows u.
func (u User) HasFollower(id string) bool {
	return slices.Contains(u.Followers, id)
}

func cleanIDSet(ids []string, self string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == self || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// addID appends id to the set unless it is already present.
func addID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(slices.Clone(ids), id)
}

// removeID returns the set without id, preserving order.
func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Follow records that u follows target. It reports whether anything changed.
func (u *User) Follow(target string) bool {
	if target == u.ID || u.IsFollowing(target) {
		return false
	}
	u.Following = addID(u.Following, target)
	return true
}

// Unfollow removes target from u's following set.
func (u *User) Unfollow(target string) bool {
	if !u.IsFollowing(target) {
		return false
	}
	u.Following = removeID(u.Following, target)
	return true
}

// AddFollower records that follower follows u.
func (u *User) AddFollower(follower string) bool {
	if follower == u.ID || u.HasFollower(follower) {
		return false
	}
	u.Followers = addID(u.Followers, follower)
	return true
}

// RemoveFollower drops follower from u's followers set.
func (u *User) RemoveFollower(follower string) bool {
	if !u.HasFollower(follower) {
		return false
	}
	u.Followers = removeID(u.Followers, follower)
	return true
}
