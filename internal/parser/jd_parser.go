package parser

import (
	"regexp"
	"strconv"
	"strings"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/types"
)

// Experience requirement patterns, tried in declaration order.
var (
	reMinExperience = regexp.MustCompile(`(?i)(?:minimum|min\.?|at\s+least|requires?)\s*(\d+)\s*\+?\s*(?:years?|yrs?)`)
	reYearsPlus     = regexp.MustCompile(`(?i)(\d+)\s*\+\s*(?:years?|yrs?)`)
	reYearsRange    = regexp.MustCompile(`(?i)(\d+)\s*(?:-|to)\s*(\d+)\s*(?:years?|yrs?)`)
)

// RequirementsParser heuristically extracts JobRequirements from normalized
// job-description text. It never fails: empty or unparseable input yields an
// empty skill set and unset optional fields.
type RequirementsParser struct {
	catalog *KeywordCatalog
}

// NewRequirementsParser builds a parser over the given keyword catalog.
// A nil catalog falls back to the default tables.
func NewRequirementsParser(catalog *KeywordCatalog) *RequirementsParser {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &RequirementsParser{catalog: catalog}
}

// Parse derives JobRequirements from JD text.
func (p *RequirementsParser) Parse(text string) types.JobRequirements {
	req := types.JobRequirements{
		SchemaVersion: constants.SchemaVersion,
		Skills:        []string{},
	}
	if strings.TrimSpace(text) == "" {
		return req
	}

	lower := strings.ToLower(text)

	req.Skills = p.parseSkills(lower)
	req.MinExperienceYears = parseMinExperience(text)
	req.EducationLevel = p.resolveLevel(lower, p.catalog.EducationLevels)
	req.Seniority = p.resolveLevel(lower, p.catalog.SeniorityLevels)

	return req
}

// parseSkills scans every domain category plus the soft-skill list, in
// catalog order, deduplicating into one set.
func (p *RequirementsParser) parseSkills(lower string) []string {
	seen := make(map[string]struct{})
	skills := []string{}
	for _, cat := range p.catalog.DomainCategories {
		skills = findKeywords(lower, cat.Keywords, seen, skills)
	}
	skills = findKeywords(lower, p.catalog.SoftSkills, seen, skills)
	return skills
}

// parseMinExperience tries the explicit minimum pattern, then "N+ years",
// then the lower bound of an "N-M years" range. First match wins.
func parseMinExperience(text string) *int {
	for _, re := range []*regexp.Regexp{reMinExperience, reYearsPlus, reYearsRange} {
		if m := re.FindStringSubmatch(text); m != nil {
			if years, err := strconv.Atoi(m[1]); err == nil {
				return &years
			}
		}
	}
	return nil
}

// resolveLevel returns the first level whose keyword list matches.
// Levels are declared most-specific-first, so a JD mentioning both
// "bachelor" and "phd" resolves to PHD.
func (p *RequirementsParser) resolveLevel(lower string, levels []LevelKeywords) string {
	for _, lvl := range levels {
		if containsAnyKeyword(lower, lvl.Keywords) {
			return lvl.Level
		}
	}
	return ""
}
