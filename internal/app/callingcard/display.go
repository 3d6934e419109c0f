package callingcard

import "callingcard/internal/app/user"

// Displayable drops invalid users and repeats, keeping first occurrences in order.
func Displayable(users []user.User) []user.User {
	out := make([]user.User, 0, len(users))
	for _, u := range users {
		if !u.Valid() || containsUser(out, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func containsUser(users []user.User, u user.User) bool {
	for _, existing := range users {
		if existing.Equal(u) {
			return true
		}
	}
	return false
}
