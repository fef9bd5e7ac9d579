// Package contacts supplies emergency contacts to the SOS engine.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/wolfeidau/beacon/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidContact  = errors.New("contact requires id, name and phone")
)

// Directory lists a user's emergency contacts in order.
type Directory interface {
	ListContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error)
}

// MemoryDirectory implements Directory using in-memory storage.
// Primary contact rules follow the mobile app: the first contact becomes
// primary, marking a contact primary clears the others, and removing the
// primary promotes the first remaining contact.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string][]models.EmergencyContact // user ID -> ordered contacts
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		contacts: make(map[string][]models.EmergencyContact),
	}
}

// ListContacts returns a copy of the user's contacts.
func (d *MemoryDirectory) ListContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.contacts[userID]), nil
}

// Add appends a contact for the user.
func (d *MemoryDirectory) Add(userID string, contact models.EmergencyContact) error {
	if contact.ID == "" || contact.Name == "" || contact.Phone == "" {
		return ErrInvalidContact
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.contacts[userID]
	if slices.ContainsFunc(list, func(c models.EmergencyContact) bool { return c.ID == contact.ID }) {
		return fmt.Errorf("contact %s already exists", contact.ID)
	}

	if len(list) == 0 {
		contact.IsPrimary = true
	}
	if contact.IsPrimary {
		for i := range list {
			list[i].IsPrimary = false
		}
	}

	d.contacts[userID] = append(list, contact)
	return nil
}

// Remove deletes a contact for the user.
func (d *MemoryDirectory) Remove(userID, contactID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.contacts[userID]
	idx := slices.IndexFunc(list, func(c models.EmergencyContact) bool { return c.ID == contactID })
	if idx == -1 {
		return ErrContactNotFound
	}

	list = slices.Delete(list, idx, idx+1)
	if len(list) > 0 && !slices.ContainsFunc(list, func(c models.EmergencyContact) bool { return c.IsPrimary }) {
		list[0].IsPrimary = true
	}

	d.contacts[userID] = list
	return nil
}

// SetPrimary marks a contact as the user's primary contact.
func (d *MemoryDirectory) SetPrimary(userID, contactID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.contacts[userID]
	if !slices.ContainsFunc(list, func(c models.EmergencyContact) bool { return c.ID == contactID }) {
		return ErrContactNotFound
	}

	for i := range list {
		list[i].IsPrimary = list[i].ID == contactID
	}
	return nil
}

// fileFormat is the YAML layout of a contacts seed file:
//
//	users:
//	  user-1:
//	    - id: c1
//	      name: Alice
//	      phone: "+15550100"
//	      primary: true
type fileFormat struct {
	Users map[string][]models.EmergencyContact `yaml:"users"`
}

// LoadFile builds a directory from a YAML seed file.
func LoadFile(path string) (*MemoryDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse contacts file: %w", err)
	}

	dir := NewMemoryDirectory()
	for userID, list := range f.Users {
		for _, c := range list {
			if err := dir.Add(userID, c); err != nil {
				return nil, fmt.Errorf("user %s: %w", userID, err)
			}
		}
	}

	return dir, nil
}
