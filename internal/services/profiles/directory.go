// Package profiles loads applicant profiles from a directory of TOML or YAML
// files, one profile per file.
package profiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"gopkg.in/yaml.v3"
)

// Directory implements interfaces.ProfileProvider over a directory.
// Files are re-read when the directory changes, so edits apply without a restart.
type Directory struct {
	dir      string
	lookup   common.Lookup
	validate *validator.Validate
	logger   arbor.ILogger

	mu       sync.Mutex
	loadedAt time.Time
	files    int
	byUser   map[string]*models.Profile
}

var _ interfaces.ProfileProvider = (*Directory)(nil)

// NewDirectory creates a provider reading dir. {NAME} references in profile
// fields are expanded from the environment.
func NewDirectory(dir string, logger arbor.ILogger) *Directory {
	return &Directory{
		dir:      dir,
		lookup:   common.EnvLookup,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetProfile returns the profile for userID or common.ErrProfileNotFound
func (d *Directory) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	byUser, err := d.load()
	if err != nil {
		return nil, err
	}
	p, ok := byUser[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, userID)
	}
	cp := *p
	return &cp, nil
}

// ListProfiles returns every valid profile ordered by user id
func (d *Directory) ListProfiles(ctx context.Context) ([]*models.Profile, error) {
	byUser, err := d.load()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Profile, 0, len(byUser))
	for _, p := range byUser {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// load returns the cached profiles, re-reading when any file is newer than
// the last load
func (d *Directory) load() (map[string]*models.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := os.ReadDir(d.dir)
	if os.IsNotExist(err) {
		d.logger.Debug().Str("dir", d.dir).Msg("Profiles directory does not exist")
		return map[string]*models.Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}

	var newest time.Time
	var files []os.DirEntry
	for _, e := range entries {
		if e.IsDir() || !isProfileFile(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil && info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		files = append(files, e)
	}
	if d.byUser != nil && !newest.After(d.loadedAt) && len(files) == d.files {
		return d.byUser, nil
	}

	byUser := make(map[string]*models.Profile, len(files))
	for _, e := range files {
		path := filepath.Join(d.dir, e.Name())
		p, err := d.parse(path)
		if err != nil {
			d.logger.Warn().Err(err).Str("file", e.Name()).Msg("Skipping profile file")
			continue
		}
		if prev, dup := byUser[p.UserID]; dup {
			d.logger.Warn().Str("file", e.Name()).Str("user_id", p.UserID).Str("kept", prev.Name).Msg("Duplicate profile ignored")
			continue
		}
		byUser[p.UserID] = p
	}

	d.logger.Debug().Str("dir", d.dir).Int("profiles", len(byUser)).Msg("Profiles loaded")
	d.byUser = byUser
	d.loadedAt = newest
	d.files = len(files)
	return byUser, nil
}

func (d *Directory) parse(path string) (*models.Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p models.Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(content, &p)
	default:
		err = yaml.Unmarshal(content, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	if err := common.ExpandInStruct(&p, d.lookup, d.logger); err != nil {
		return nil, err
	}
	if p.ResumePath != "" && !filepath.IsAbs(p.ResumePath) {
		p.ResumePath = filepath.Join(d.dir, p.ResumePath)
	}
	if err := d.validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}

func isProfileFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml", ".yaml", ".yml":
		return true
	}
	return false
}
