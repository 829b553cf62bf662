package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	checkoutFile = "checkout.json"
)

// CheckoutState is the persisted set of pinned heads, keyed by session id.
type CheckoutState struct {
	Sessions map[string]Checkout `json:"sessions"`
}

// Checkout pins the head message of one session.
type Checkout struct {
	HeadMessageID string    `json:"head_message_id"`
	CheckedOutAt  time.Time `json:"checked_out_at"`
}

// Head returns the pinned head for a session, or "" if none.
func (s *CheckoutState) Head(sessionID string) string {
	if s == nil {
		return ""
	}
	return s.Sessions[sessionID].HeadMessageID
}

// LoadCheckoutState loads the checkout state from .branchmem/checkout.json.
// Returns nil, nil if no checkout state exists.
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadCheckoutState(overrideDir string) (*CheckoutState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, checkoutFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkout state: %w", err)
	}

	state := &CheckoutState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing checkout state: %w", err)
	}

	return state, nil
}

// Checkout pins headMessageID as the head of sessionID.
func (m *Manager) Checkout(sessionID, headMessageID, overrideDir string) error {
	if sessionID == "" || headMessageID == "" {
		return errors.New("session id and head message id are required")
	}

	state, err := m.LoadCheckoutState(overrideDir)
	if err != nil {
		return err
	}
	if state == nil {
		state = &CheckoutState{}
	}
	if state.Sessions == nil {
		state.Sessions = map[string]Checkout{}
	}

	state.Sessions[sessionID] = Checkout{
		HeadMessageID: headMessageID,
		CheckedOutAt:  time.Now().UTC(),
	}

	return m.saveCheckout(state, overrideDir)
}

// ClearCheckout removes the pinned head of a session. Returns nil if nothing
// was pinned.
func (m *Manager) ClearCheckout(sessionID, overrideDir string) error {
	state, err := m.LoadCheckoutState(overrideDir)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	if _, ok := state.Sessions[sessionID]; !ok {
		return nil
	}

	delete(state.Sessions, sessionID)
	if len(state.Sessions) > 0 {
		return m.saveCheckout(state, overrideDir)
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, checkoutFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing checkout state: %w", err)
	}
	return nil
}

func (m *Manager) saveCheckout(state *CheckoutState, overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkout state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, checkoutFile), data, 0o600); err != nil {
		return fmt.Errorf("writing checkout state: %w", err)
	}

	return nil
}
