package rules

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

// Document is the on-disk shape of a rule file. A file may carry any subset
// of sections; sections from several files are merged by key.
type Document struct {
	ScoringRules  map[string]ScoringRule          `yaml:"scoring_rules"`
	Badges        map[string]BadgeDefinition      `yaml:"badges"`
	Tasks         map[string]TaskDefinition       `yaml:"tasks"`
	Notifications map[string]NotificationTemplate `yaml:"notifications"`
	Flags         map[string]bool                 `yaml:"flags"`
	Settings      map[string]int                  `yaml:"settings"`
	StreakBonuses []Threshold                     `yaml:"streak_bonuses"`
	Milestones    map[string]MilestoneSchedule    `yaml:"milestones"`
	Levels        []int                           `yaml:"levels"`
}

// sourceFile is one parsed rule file.
type sourceFile struct {
	name        string
	fingerprint string
	doc         Document
}

// Load builds the RuleStore from the embedded defaults, then applies every
// *.yaml / *.yml file in dir on top. Entries in dir replace defaults with the
// same key. A missing dir is valid and yields the defaults alone.
func Load(dir string) (*Store, error) {
	defaults, err := readDefaults()
	if err != nil {
		return nil, err
	}
	base, err := mergeFiles(Document{}, defaults)
	if err != nil {
		return nil, fmt.Errorf("default rules: %w", err)
	}

	overrides, err := readDir(dir)
	if err != nil {
		return nil, err
	}
	doc, err := mergeFiles(base, overrides)
	if err != nil {
		return nil, fmt.Errorf("rule overrides: %w", err)
	}

	fingerprints := make([]string, 0, len(defaults)+len(overrides))
	for _, f := range append(defaults, overrides...) {
		fingerprints = append(fingerprints, f.name+":"+f.fingerprint)
	}
	return newStore(doc, fingerprintOf(fingerprints))
}

// Defaults returns the RuleStore built from the embedded rule files only.
func Defaults() (*Store, error) {
	return Load("")
}

func readDefaults() ([]sourceFile, error) {
	entries, err := fs.ReadDir(defaultFiles, "defaults")
	if err != nil {
		return nil, fmt.Errorf("reading embedded rules: %w", err)
	}
	var out []sourceFile
	for _, e := range entries {
		name := path.Join("defaults", e.Name())
		data, err := defaultFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded rule file %s: %w", name, err)
		}
		f, err := parseFile(name, data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readDir(dir string) ([]sourceFile, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rule dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rule path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule dir: %w", err)
	}

	var out []sourceFile
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading rule file %s: %w", p, err)
		}
		f, err := parseFile(p, data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseFile(name string, data []byte) (sourceFile, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return sourceFile{}, fmt.Errorf("parsing rule file %s: %w", name, err)
	}
	return sourceFile{
		name:        name,
		fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		doc:         doc,
	}, nil
}

// mergeFiles applies files on top of base. A key defined by two files of the
// same batch is an error; a key already present in base is replaced.
func mergeFiles(base Document, files []sourceFile) (Document, error) {
	out := cloneDocument(base)
	seen := make(map[string]string)

	claim := func(section, key, file string) error {
		id := section + "/" + key
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%s %q defined in both %s and %s", section, key, prev, file)
		}
		seen[id] = file
		return nil
	}

	for _, f := range files {
		for k, v := range f.doc.ScoringRules {
			if err := claim("scoring rule", k, f.name); err != nil {
				return Document{}, err
			}
			v.EventType = k
			v.Fingerprint = f.fingerprint
			out.ScoringRules[k] = v
		}
		for k, v := range f.doc.Badges {
			if err := claim("badge", k, f.name); err != nil {
				return Document{}, err
			}
			v.Slug = k
			out.Badges[k] = v
		}
		for k, v := range f.doc.Tasks {
			if err := claim("task", k, f.name); err != nil {
				return Document{}, err
			}
			v.Slug = k
			v.Source = SourceStatic
			out.Tasks[k] = v
		}
		for k, v := range f.doc.Notifications {
			if err := claim("notification", k, f.name); err != nil {
				return Document{}, err
			}
			v.Type = k
			out.Notifications[k] = v
		}
		for k, v := range f.doc.Flags {
			if err := claim("flag", k, f.name); err != nil {
				return Document{}, err
			}
			out.Flags[k] = v
		}
		for k, v := range f.doc.Settings {
			if err := claim("setting", k, f.name); err != nil {
				return Document{}, err
			}
			out.Settings[k] = v
		}
		for k, v := range f.doc.Milestones {
			if err := claim("milestone", k, f.name); err != nil {
				return Document{}, err
			}
			out.Milestones[k] = v
		}
		if len(f.doc.StreakBonuses) > 0 {
			if err := claim("section", "streak_bonuses", f.name); err != nil {
				return Document{}, err
			}
			out.StreakBonuses = append([]Threshold(nil), f.doc.StreakBonuses...)
		}
		if len(f.doc.Levels) > 0 {
			if err := claim("section", "levels", f.name); err != nil {
				return Document{}, err
			}
			out.Levels = append([]int(nil), f.doc.Levels...)
		}
	}
	return out, nil
}

func cloneDocument(d Document) Document {
	out := Document{
		ScoringRules:  make(map[string]ScoringRule, len(d.ScoringRules)),
		Badges:        make(map[string]BadgeDefinition, len(d.Badges)),
		Tasks:         make(map[string]TaskDefinition, len(d.Tasks)),
		Notifications: make(map[string]NotificationTemplate, len(d.Notifications)),
		Flags:         make(map[string]bool, len(d.Flags)),
		Settings:      make(map[string]int, len(d.Settings)),
		Milestones:    make(map[string]MilestoneSchedule, len(d.Milestones)),
		StreakBonuses: append([]Threshold(nil), d.StreakBonuses...),
		Levels:        append([]int(nil), d.Levels...),
	}
	for k, v := range d.ScoringRules {
		out.ScoringRules[k] = v
	}
	for k, v := range d.Badges {
		out.Badges[k] = v
	}
	for k, v := range d.Tasks {
		out.Tasks[k] = v
	}
	for k, v := range d.Notifications {
		out.Notifications[k] = v
	}
	for k, v := range d.Flags {
		out.Flags[k] = v
	}
	for k, v := range d.Settings {
		out.Settings[k] = v
	}
	for k, v := range d.Milestones {
		out.Milestones[k] = v
	}
	return out
}

func fingerprintOf(parts []string) string {
	sort.Strings(parts)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(parts, "\n"))))
}
