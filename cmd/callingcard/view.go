package main

import (
	"fmt"
	"io"
	"sync"

	"callingcard/internal/app/callingcard"
	"callingcard/internal/app/nearby"
	"callingcard/internal/app/user"
)

// terminalView prints controller state and remembers the listed users so that
// commands can refer to them by number.
type terminalView struct {
	out     io.Writer
	prompts *prompter

	mu     sync.Mutex
	saved  []user.User
	nearby []user.User

	signedOut chan struct{}
	closeOnce sync.Once
}

func newTerminalView(out io.Writer, prompts *prompter) *terminalView {
	return &terminalView{out: out, prompts: prompts, signedOut: make(chan struct{})}
}

func (v *terminalView) ShowSaved(users []user.User) {
	users = callingcard.Displayable(users)

	v.mu.Lock()
	v.saved = users
	v.mu.Unlock()

	v.printList("Saved", "s", users, "No saved users yet.")
}

func (v *terminalView) ShowNearby(users []user.User) {
	users = callingcard.Displayable(users)

	v.mu.Lock()
	v.nearby = users
	v.mu.Unlock()

	v.printList("Nearby", "n", users, "Nobody nearby.")
}

func (v *terminalView) printList(title, prefix string, users []user.User, empty string) {
	fmt.Fprintf(v.out, "-- %s --\n", title)
	if len(users) == 0 {
		fmt.Fprintf(v.out, "   %s\n", empty)
		return
	}
	for i, u := range users {
		fmt.Fprintf(v.out, "  %s%d) %s\n", prefix, i+1, u)
	}
}

func (v *terminalView) SetPublishing(active bool) {
	if active {
		fmt.Fprintln(v.out, "* Your card is being broadcast.")
	} else {
		fmt.Fprintln(v.out, "* Your card is not being broadcast.")
	}
}

func (v *terminalView) SetSwitchesEnabled(enabled bool) {
	if enabled {
		fmt.Fprintln(v.out, "* Connected to Nearby. Use 'pub on' and 'sub on'.")
	} else {
		fmt.Fprintln(v.out, "* Nearby unavailable.")
	}
}

func (v *terminalView) SetPublishSwitch(on bool) {
	fmt.Fprintf(v.out, "* Publish: %s\n", onOff(on))
}

func (v *terminalView) SetSubscribeSwitch(on bool) {
	fmt.Fprintf(v.out, "* Subscribe: %s\n", onOff(on))
}

func (v *terminalView) Toast(message string) {
	fmt.Fprintf(v.out, "! %s\n", message)
}

func (v *terminalView) Confirm(prompt, action string, onConfirm func()) {
	v.prompts.Ask(fmt.Sprintf("%s [%s/Cancel] (y/n)", prompt, action), func(yes bool) {
		if yes {
			onConfirm()
		}
	})
}

func (v *terminalView) NavigateToSignIn() {
	fmt.Fprintln(v.out, "* Signed out. Run the client again to sign in.")
	v.closeOnce.Do(func() { close(v.signedOut) })
}

// lookup returns the user listed as ref, e.g. "n2" or "s1".
func (v *terminalView) lookup(ref string) (user.User, bool) {
	var list []user.User
	var index int

	v.mu.Lock()
	defer v.mu.Unlock()

	switch {
	case len(ref) > 1 && ref[0] == 'n':
		list = v.nearby
	case len(ref) > 1 && ref[0] == 's':
		list = v.saved
	default:
		return user.User{}, false
	}

	if _, err := fmt.Sscanf(ref[1:], "%d", &index); err != nil || index < 1 || index > len(list) {
		return user.User{}, false
	}
	return list[index-1], true
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// consentResolver asks the user to opt in to Nearby and records the answer.
type consentResolver struct {
	prompts *prompter
	record  func(accept bool) error
}

func (r *consentResolver) StartResolution(op nearby.Operation, status nearby.Status, done func(accepted bool)) error {
	if status.Resolution != nearby.ResolutionNearbyOptIn {
		return fmt.Errorf("unsupported resolution %q", status.Resolution)
	}

	r.prompts.Ask(fmt.Sprintf("Allow Nearby to %s your calling card? (y/n)", verb(op)), func(yes bool) {
		if yes {
			if err := r.record(true); err != nil {
				done(false)
				return
			}
		}
		done(yes)
	})
	return nil
}

func verb(op nearby.Operation) string {
	if op == nearby.OpSubscribe {
		return "find people near"
	}
	return "share"
}
