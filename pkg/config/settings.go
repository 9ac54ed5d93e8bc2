package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/websso"
)

// DefaultRegionName labels the configured identity URL when no regions
// are listed
const DefaultRegionName = "Default Region"

// Region is one identity endpoint offered on the login form
type Region struct {
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name" json:"name"`
}

// ParseRegions parses "url=name,..." keeping the given order
func ParseRegions(s string) ([]Region, error) {
	var regions []Region
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		// URLs may contain '=' in their query; the name follows the last one.
		idx := strings.LastIndex(entry, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid region %q: expected url=name", entry)
		}
		regions = append(regions, Region{
			URL:  strings.TrimSpace(entry[:idx]),
			Name: strings.TrimSpace(entry[idx+1:]),
		})
	}
	return regions, nil
}

// AuthSettings are the structured settings that can change while running
type AuthSettings struct {
	WebSSOChoices    []websso.Choice
	WebSSOMapping    websso.Mapping
	AvailableRegions []Region
}

// Validate rejects incomplete mappings and regions
func (s *AuthSettings) Validate() error {
	if err := s.WebSSOMapping.Validate(); err != nil {
		return err
	}
	for _, r := range s.AvailableRegions {
		if r.URL == "" {
			return fmt.Errorf("region %q has no URL", r.Name)
		}
	}
	return nil
}

// RegionChoices lists the regions for the login form, falling back to
// defaultURL as the only region
func (s *AuthSettings) RegionChoices(defaultURL string) []Region {
	if s == nil || len(s.AvailableRegions) == 0 {
		return []Region{{URL: defaultURL, Name: DefaultRegionName}}
	}
	return s.AvailableRegions
}

// RegionName returns the configured name of the region at url
func (s *AuthSettings) RegionName(defaultURL, url string) (string, bool) {
	for _, r := range s.RegionChoices(defaultURL) {
		if r.URL == url {
			return r.Name, true
		}
	}
	return "", false
}

// SettingsSource supplies the current AuthSettings
type SettingsSource interface {
	Settings() *AuthSettings
}

type staticSettings struct {
	settings *AuthSettings
}

func (s staticSettings) Settings() *AuthSettings { return s.settings }

// Static returns a source that always yields s
func Static(s *AuthSettings) SettingsSource {
	if s == nil {
		s = &AuthSettings{}
	}
	return staticSettings{settings: s}
}

// FileSettings is the YAML settings file
//
//	websso:
//	  choices:
//	    - {id: credentials, label: Keystone Credentials}
//	    - {id: acme_oidc, label: ACME}
//	  idp_mapping:
//	    acme_oidc: {idp: acme, protocol: oidc}
//	available_regions:
//	  - {url: "https://east.example.com/v3", name: East}
type FileSettings struct {
	WebSSO struct {
		Choices    []websso.Choice `yaml:"choices"`
		IdPMapping websso.Mapping  `yaml:"idp_mapping"`
	} `yaml:"websso"`
	AvailableRegions []Region `yaml:"available_regions"`
}

// LoadSettingsFile reads and parses the YAML settings file at path
func LoadSettingsFile(path string) (*FileSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	var fs FileSettings
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return &fs, nil
}

// AuthSettings converts the file into reloadable settings
func (f *FileSettings) AuthSettings() *AuthSettings {
	mapping := f.WebSSO.IdPMapping
	if mapping == nil {
		mapping = websso.Mapping{}
	}
	return &AuthSettings{
		WebSSOChoices:    f.WebSSO.Choices,
		WebSSOMapping:    mapping,
		AvailableRegions: f.AvailableRegions,
	}
}

// Watcher reloads AuthSettings when the settings file changes
type Watcher struct {
	path     string
	logger   *observability.Logger
	settings atomic.Pointer[AuthSettings]
}

// NewWatcher creates a watcher for path seeded with cfg.Settings
func NewWatcher(path string, cfg *Config, logger *observability.Logger) *Watcher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	w := &Watcher{
		path:   path,
		logger: logger.WithComponent("settings_watcher").WithField("path", path),
	}
	initial := cfg.Settings
	if initial == nil {
		initial = &AuthSettings{}
	}
	w.settings.Store(initial)
	return w
}

// Settings returns the most recently loaded settings
func (w *Watcher) Settings() *AuthSettings {
	return w.settings.Load()
}

// Reload rereads the file. Invalid files leave the current settings in
// place.
func (w *Watcher) Reload() error {
	file, err := LoadSettingsFile(w.path)
	if err != nil {
		return err
	}
	next := file.AuthSettings()
	if err := applyEnvSettings(next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	w.settings.Store(next)
	return nil
}

// Run watches the file's directory until ctx is done. The directory is
// watched so that editors replacing the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.WithError(err).Warn("Keeping previous settings")
				continue
			}
			w.logger.Info("Settings reloaded")
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Settings watcher error")
		}
	}
}
