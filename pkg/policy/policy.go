package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carelink-health/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Policy carries everything deployment-specific about matching and merging:
// confidence bands, the fuzzy-name floor, nickname equivalence classes, and
// per-field origin precedence. Practices differ in how much false-merge risk
// they tolerate, so none of this is hard-coded in the pipeline.
type Policy struct {
	DefaultCountryCode string `yaml:"default_country_code" json:"default_country_code"`

	// Confidence bands routing a candidate score.
	AutoAcceptThreshold float64 `yaml:"auto_accept_threshold" json:"auto_accept_threshold"`
	ReviewThreshold     float64 `yaml:"review_threshold" json:"review_threshold"`

	// Tier 3 floor for normalized name similarity.
	NameSimilarityFloor float64 `yaml:"name_similarity_floor" json:"name_similarity_floor"`

	// Nickname equivalence classes for the name+DOB tier. Each class lists
	// interchangeable given-name tokens.
	Nicknames [][]string `yaml:"nicknames" json:"nicknames"`

	// Precedence maps a semantic field to origins in descending priority.
	// The highest-priority origin with a non-empty value wins that field.
	Precedence map[string][]models.Origin `yaml:"precedence" json:"precedence"`
}

// Load reads a policy file, falling back to Default when no path is given.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	p := Default()
	if err := yaml.Unmarshal(content, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Default is a reasonable starting policy for a US small practice. The
// precedence order reflects refresh cadence: the messaging directory is the
// freshest source for contact fields, the enrollment extract is authoritative
// for billing tags, and the roster for demographics.
func Default() *Policy {
	return &Policy{
		DefaultCountryCode:  "1",
		AutoAcceptThreshold: 0.90,
		ReviewThreshold:     0.75,
		NameSimilarityFloor: 0.6,
		Nicknames: [][]string{
			{"robert", "bob", "rob", "bobby"},
			{"william", "bill", "will", "billy"},
			{"elizabeth", "liz", "beth", "betsy"},
			{"margaret", "maggie", "peggy", "meg"},
			{"james", "jim", "jimmy"},
			{"katherine", "kathryn", "kate", "katie", "kathy"},
			{"michael", "mike"},
			{"richard", "rick", "dick"},
			{"thomas", "tom", "tommy"},
			{"patricia", "pat", "patty", "trish"},
		},
		Precedence: map[string][]models.Origin{
			"phone":   {models.OriginDirectory, models.OriginEnrollment, models.OriginRoster},
			"email":   {models.OriginDirectory, models.OriginEnrollment, models.OriginRoster},
			"name":    {models.OriginRoster, models.OriginEnrollment, models.OriginDirectory},
			"dob":     {models.OriginRoster, models.OriginEnrollment, models.OriginDirectory},
			"address": {models.OriginRoster, models.OriginEnrollment, models.OriginDirectory},
			"tags":    {models.OriginEnrollment, models.OriginRoster, models.OriginDirectory},
		},
	}
}

// Validate rejects band configurations that would route nothing to review or
// invert the accept/review order.
func (p *Policy) Validate() error {
	if p.AutoAcceptThreshold <= 0 || p.AutoAcceptThreshold > 1 {
		return fmt.Errorf("auto_accept_threshold %v out of (0,1]", p.AutoAcceptThreshold)
	}
	if p.ReviewThreshold <= 0 || p.ReviewThreshold > p.AutoAcceptThreshold {
		return fmt.Errorf("review_threshold %v must be in (0, auto_accept_threshold]", p.ReviewThreshold)
	}
	if p.NameSimilarityFloor < 0 || p.NameSimilarityFloor >= 1 {
		return fmt.Errorf("name_similarity_floor %v out of [0,1)", p.NameSimilarityFloor)
	}
	for field, origins := range p.Precedence {
		for _, origin := range origins {
			if !origin.Valid() {
				return fmt.Errorf("precedence for %q names unknown origin %q", field, origin)
			}
		}
	}
	return nil
}

// NicknameIndex resolves a given-name token to its equivalence class id.
type NicknameIndex map[string]int

func (p *Policy) NicknameIndex() NicknameIndex {
	idx := make(NicknameIndex)
	for i, class := range p.Nicknames {
		for _, name := range class {
			idx[strings.ToLower(strings.TrimSpace(name))] = i
		}
	}
	return idx
}

// Same reports whether two given-name tokens are identical or belong to one
// equivalence class.
func (idx NicknameIndex) Same(a, b string) bool {
	if a == b {
		return a != ""
	}
	ca, okA := idx[a]
	cb, okB := idx[b]
	return okA && okB && ca == cb
}

// FieldPrecedence returns the configured origin order for a field, defaulting
// to the stable origin enumeration so unlisted fields still resolve
// deterministically.
func (p *Policy) FieldPrecedence(field string) []models.Origin {
	if origins, ok := p.Precedence[field]; ok && len(origins) > 0 {
		return origins
	}
	return []models.Origin{models.OriginRoster, models.OriginEnrollment, models.OriginDirectory}
}
