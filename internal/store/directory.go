package store

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"gigchat/internal/model"
)

// Seed is the JSON document loaded from SEED_FILE
type Seed struct {
	Buyers []model.Buyer `json:"buyers"`
	Gigs   []model.Gig   `json:"gigs"`
}

// Directory serves buyer profiles and gigs
type Directory struct {
	mu     sync.RWMutex
	buyers map[string]model.Buyer
	gigs   map[string]model.Gig
}

// NewDirectory creates a directory holding seed
func NewDirectory(seed Seed) *Directory {
	d := &Directory{
		buyers: make(map[string]model.Buyer),
		gigs:   make(map[string]model.Gig),
	}
	for _, b := range seed.Buyers {
		d.AddBuyer(b)
	}
	for _, g := range seed.Gigs {
		d.AddGig(g)
	}
	return d
}

// LoadSeed reads a seed document from path
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return seed, nil
}

// AddBuyer registers or replaces a buyer
func (d *Directory) AddBuyer(b model.Buyer) {
	d.mu.Lock()
	d.buyers[strings.ToLower(b.Username)] = b
	d.mu.Unlock()
}

// AddGig registers or replaces a gig
func (d *Directory) AddGig(g model.Gig) {
	d.mu.Lock()
	d.gigs[g.ID] = g
	d.mu.Unlock()
}

// Buyer looks a buyer up by username, ignoring case
func (d *Directory) Buyer(username string) (model.Buyer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.buyers[strings.ToLower(username)]
	if !ok {
		return model.Buyer{}, fmt.Errorf("buyer %q: %w", username, ErrNotFound)
	}
	return b, nil
}

// Gig looks a gig up by id
func (d *Directory) Gig(id string) (model.Gig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.gigs[id]
	if !ok {
		return model.Gig{}, fmt.Errorf("gig %q: %w", id, ErrNotFound)
	}
	return g, nil
}
