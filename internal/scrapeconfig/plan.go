package scrapeconfig

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voltbase/scooterdex-backend/internal/logger"
)

const planEnv = "SCRAPE_PLAN_YAML"

//go:embed scrape_plan.yaml
var planFS embed.FS

// Plan is the full fan-out a national scrape covers: which jurisdictions to
// search and what to search for in each.
type Plan struct {
	Queries       []string `yaml:"queries"`
	MaxPerQuery   int      `yaml:"max_per_query"`
	Jurisdictions []Jurisdiction
	States        []string `yaml:"states"`
}

type Jurisdiction struct {
	State string
	City  string
}

// Load reads the embedded plan, or the file named by SCRAPE_PLAN_YAML when
// set. A broken override falls back to the embedded plan rather than failing
// a run that was already scheduled.
func Load(log *logger.Logger) (*Plan, error) {
	raw, err := planFS.ReadFile("scrape_plan.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded scrape plan: %w", err)
	}
	if override := strings.TrimSpace(os.Getenv(planEnv)); override != "" {
		if b, readErr := os.ReadFile(override); readErr == nil {
			raw = b
		} else {
			log.Warn("Scrape plan override unreadable, using embedded plan", "path", override, "error", readErr)
		}
	}

	var p Plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse scrape plan: %w", err)
	}
	if len(p.Queries) == 0 {
		return nil, fmt.Errorf("scrape plan has no queries")
	}
	if len(p.States) == 0 {
		return nil, fmt.Errorf("scrape plan has no states")
	}
	if p.MaxPerQuery <= 0 {
		p.MaxPerQuery = 200
	}
	for _, s := range p.States {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p.Jurisdictions = append(p.Jurisdictions, Jurisdiction{State: s})
	}
	return &p, nil
}
