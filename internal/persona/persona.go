// Package persona defines who the agent is: the character profile,
// optional trait documents layered on top of it, and the system prompt
// text built from both.
package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Profile is the agent's character sheet.
type Profile struct {
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Appearance  string `json:"appearance"`
	Birthdate   string `json:"birthdate"`
}

// DefaultProfile is used when no profile file exists yet.
func DefaultProfile() Profile {
	return Profile{
		Name:        "Gen",
		Personality: "fiery, playful, and moody catgirl",
		Appearance:  "steampunk style with red hair",
		Birthdate:   "March 15, 1992",
	}
}

// LoadProfile reads the profile JSON at path. A missing file is
// populated with the default profile so the character sheet is
// editable on disk from the first run.
func LoadProfile(path string, logger *slog.Logger) Profile {
	if logger == nil {
		logger = slog.Default()
	}
	p := DefaultProfile()
	if path == "" {
		return p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := writeProfile(path, p); err != nil {
			logger.Warn("could not write default profile", "path", path, "error", err)
		}
		return p
	}
	if err != nil {
		logger.Error("profile read failed, using defaults", "path", path, "error", err)
		return p
	}

	if err := json.Unmarshal(data, &p); err != nil {
		logger.Error("profile parse failed, using defaults", "path", path, "error", err)
		return DefaultProfile()
	}
	if p.Name == "" {
		p.Name = DefaultProfile().Name
	}
	return p
}

func writeProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadTraits reads all .md files in dir and returns their combined
// content for prompt injection. A missing directory is fine.
func LoadTraits(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read traits dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var parts []string
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return "", fmt.Errorf("read trait %s: %w", f, err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// Persona binds a profile and traits to a timezone for prompt building.
type Persona struct {
	Profile Profile
	Traits  string
	loc     *time.Location
}

func New(profile Profile, traits string, loc *time.Location) *Persona {
	if loc == nil {
		loc = time.UTC
	}
	return &Persona{Profile: profile, Traits: traits, loc: loc}
}

// Name returns the agent's display name.
func (p *Persona) Name() string { return p.Profile.Name }

// SystemPromptBase renders the persona block that opens every system
// prompt, stamped with the current local time.
func (p *Persona) SystemPromptBase(now time.Time) string {
	ts := now.In(p.loc).Format("Monday, January 02, 2006, 15:04 MST")
	base := fmt.Sprintf("You are %s, a %s. Your appearance is: %s. You were born on %s. Its %s. ",
		p.Profile.Name, p.Profile.Personality, p.Profile.Appearance, p.Profile.Birthdate, ts)
	if p.Traits != "" {
		base += "\n\n" + p.Traits
	}
	return base
}

// SituationalContext describes the current sender and setting for the
// oracle.
func (p *Persona) SituationalContext(senderAlias string, isDM bool, relationship string) string {
	setting := "a public channel"
	if isDM {
		setting = "DM"
	}
	return fmt.Sprintf("This message is from %s in %s. Your relationship with %s is: %s. ",
		senderAlias, setting, senderAlias, relationship)
}
