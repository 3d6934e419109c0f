/*
Package roster holds ordered lists of users without duplicates.

Rosters are small (bounded by who is physically nearby) so membership is a linear
scan using user.User.Equal. A Roster is not safe for concurrent use; the Calling Card
controller only touches its rosters from its UI loop.
*/
package roster

import "callingcard/internal/app/user"

// Roster is an ordered set of users keyed by equality.
type Roster struct {
	users []user.User
}

// New returns a roster holding the distinct entries of users, in order.
func New(users ...user.User) *Roster {
	r := &Roster{}
	r.Replace(users)
	return r
}

// Contains reports whether an equal user is present.
func (r *Roster) Contains(u user.User) bool {
	return r.indexOf(u) >= 0
}

// Add appends u unless an equal user is present. It reports whether the roster changed.
func (r *Roster) Add(u user.User) bool {
	if r.Contains(u) {
		return false
	}
	r.users = append(r.users, u)
	return true
}

// Remove deletes the user equal to u. It reports whether the roster changed.
func (r *Roster) Remove(u user.User) bool {
	i := r.indexOf(u)
	if i < 0 {
		return false
	}
	r.users = append(r.users[:i], r.users[i+1:]...)
	return true
}

// Clear empties the roster.
func (r *Roster) Clear() {
	r.users = nil
}

// Replace sets the roster to the distinct entries of users.
func (r *Roster) Replace(users []user.User) {
	r.users = nil
	for _, u := range users {
		r.Add(u)
	}
}

// Len returns the number of users.
func (r *Roster) Len() int {
	return len(r.users)
}

// Users returns a copy of the roster's entries.
func (r *Roster) Users() []user.User {
	out := make([]user.User, len(r.users))
	copy(out, r.users)
	return out
}

// Difference returns the users of r that are not in other, preserving order.
func (r *Roster) Difference(other *Roster) []user.User {
	out := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		if other == nil || !other.Contains(u) {
			out = append(out, u)
		}
	}
	return out
}

func (r *Roster) indexOf(u user.User) int {
	for i, existing := range r.users {
		if existing.Equal(u) {
			return i
		}
	}
	return -1
}
