// Package session resolves the local identity used to open room
// connections. The identity is resolved once per run and stays immutable
// afterwards. The password check is advisory, a first-run convenience,
// not a security boundary.
package session

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Expiry is how long a profile stays fresh without activity.
const Expiry = 30 * time.Minute

// MinPasswordLen matches the bootstrap wizard's rule.
const MinPasswordLen = 4

// Profile is the locally stored identity record.
type Profile struct {
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	LastActive int64  `toml:"last_active"`
}

// Expired reports whether the profile has been idle past Expiry.
func (p Profile) Expired(now time.Time) bool {
	last := time.Unix(p.LastActive, 0)
	return now.Sub(last) > Expiry
}

// Touch records activity at now.
func (p *Profile) Touch(now time.Time) {
	p.LastActive = now.Unix()
}

// Prompter is the asynchronous face of the bootstrap wizard; the CLI
// implements it on the terminal, tests script it.
type Prompter interface {
	// NewProfile collects a username and password for a fresh profile.
	NewProfile() (username, password string, err error)
	// ContinueSession asks whether to keep the stored username after an
	// expiry. False means "start over as a new user".
	ContinueSession(username string) (bool, error)
	// Password collects the password for an expired session check.
	Password() (string, error)
}

const maxBootstrapAttempts = 3

var errBootstrapGivenUp = errors.New("no valid profile after repeated prompts")

// Resolve returns the identity to chat as, creating or refreshing the
// stored profile along the way.
func Resolve(store *Store, prompter Prompter, now func() time.Time) (string, error) {
	profile, ok, err := store.Load()
	if err != nil {
		log.Printf("session store unreadable, starting over: %v", err)
		ok = false
	}

	if !ok {
		profile, err = bootstrap(prompter)
		if err != nil {
			return "", err
		}
	} else if profile.Expired(now()) {
		profile, err = reauthenticate(store, prompter, profile)
		if err != nil {
			return "", err
		}
	}

	profile.Touch(now())
	if err := store.Save(profile); err != nil {
		// a failed save costs persistence, not the session
		log.Printf("save session profile: %v", err)
	}
	return profile.Username, nil
}

// bootstrap runs the first-run wizard until it yields a valid profile.
func bootstrap(prompter Prompter) (Profile, error) {
	for i := 0; i < maxBootstrapAttempts; i++ {
		username, password, err := prompter.NewProfile()
		if err != nil {
			return Profile{}, fmt.Errorf("bootstrap profile: %w", err)
		}
		username = strings.TrimSpace(username)
		password = strings.TrimSpace(password)
		if username == "" {
			log.Printf("username required")
			continue
		}
		if len(password) < MinPasswordLen {
			log.Printf("password must be at least %d characters", MinPasswordLen)
			continue
		}
		return Profile{Username: username, Password: password}, nil
	}
	return Profile{}, errBootstrapGivenUp
}

// reauthenticate handles an expired profile: keep it on a matching
// password, otherwise clear and start over as a new user.
func reauthenticate(store *Store, prompter Prompter, profile Profile) (Profile, error) {
	keep, err := prompter.ContinueSession(profile.Username)
	if err != nil {
		return Profile{}, fmt.Errorf("continue session: %w", err)
	}
	if keep {
		password, err := prompter.Password()
		if err != nil {
			return Profile{}, fmt.Errorf("read password: %w", err)
		}
		if password == profile.Password {
			return profile, nil
		}
		log.Printf("wrong password, starting a new session")
	}
	if err := store.Clear(); err != nil {
		log.Printf("clear session profile: %v", err)
	}
	return bootstrap(prompter)
}
