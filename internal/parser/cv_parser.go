package parser

import (
	"regexp"
	"strconv"
	"strings"

	"match-engine-go/internal/constants"
	"match-engine-go/internal/types"
)

const maxNameLineLength = 100

var (
	reEmail = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	rePhone = regexp.MustCompile(`(\+?[0-9]{1,3}[-.\s]?)?(\(?[0-9]{2,4}\)?[-.\s]?)?[0-9]{3,}[-.\s]?[0-9]{3,}([-.\s]?[0-9]{2,})?`)

	// "experience: 5 years", "exp. 3", "kinh nghiệm: 2 năm"
	reExperienceLabeled = regexp.MustCompile(`(?i)(?:experience|kinh\s*nghiệm|exp\.?)\s*:?\s*(\d+)\s*(?:\+?\s*years?|năm)?`)
	// "5 years", "3+ years experience", "2 năm"
	reYearsStandalone = regexp.MustCompile(`(?i)\b(\d+)\s*(?:\+?\s*years?|năm)\s*(?:experience|kinh\s*nghiệm)?`)

	reYearToken = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	// A name line is letters (incl. Vietnamese diacritics) and ". -" only.
	reNameLine = regexp.MustCompile(`^[A-Za-zÀ-ỹ\s.\-]+$`)
)

// Graduation years outside this window are treated as noise.
const (
	minGraduationYear = 1990
	maxGraduationYear = 2030
)

// CandidateProfileParser heuristically extracts a CandidateProfile from
// normalized CV text. Same never-fails contract as RequirementsParser.
type CandidateProfileParser struct {
	catalog *KeywordCatalog
}

// NewCandidateProfileParser builds a parser over the given keyword catalog.
// A nil catalog falls back to the default tables.
func NewCandidateProfileParser(catalog *KeywordCatalog) *CandidateProfileParser {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &CandidateProfileParser{catalog: catalog}
}

// Parse derives a CandidateProfile from CV text.
func (p *CandidateProfileParser) Parse(text string) types.CandidateProfile {
	profile := types.CandidateProfile{
		SchemaVersion: constants.SchemaVersion,
		DomainSkills:  []string{},
		SoftSkills:    []string{},
	}
	if strings.TrimSpace(text) == "" {
		return profile
	}

	lower := strings.ToLower(text)

	profile.Name = extractName(text)
	profile.Email = firstMatch(reEmail, text)
	profile.Phone = firstMatch(rePhone, text)
	profile.TotalExperienceYears = parseExperienceYears(text)
	profile.HighestDegree = p.parseDegree(lower)
	profile.GraduationYear = parseGraduationYear(text)
	profile.DomainSkills, profile.SoftSkills = p.parseSkills(lower)

	return profile
}

// extractName scans lines top-down and returns the first plausible name:
// non-blank, at most 100 characters, not an email or phone line, and
// consisting only of letters and the separators ". -".
func extractName(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > maxNameLineLength {
			continue
		}
		if reEmail.MatchString(line) || rePhone.MatchString(line) {
			continue
		}
		if len(line) >= 2 && reNameLine.MatchString(line) {
			return line
		}
	}
	return ""
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// parseExperienceYears tries the labeled pattern first, then a standalone
// "N years". The first numeric match wins; parse failures count as absent.
func parseExperienceYears(text string) *int {
	for _, re := range []*regexp.Regexp{reExperienceLabeled, reYearsStandalone} {
		if m := re.FindStringSubmatch(text); m != nil {
			if years, err := strconv.Atoi(m[1]); err == nil {
				return &years
			}
		}
	}
	return nil
}

// parseDegree returns the first matching keyword from the bilingual degree
// list, or "" when nothing matches.
func (p *CandidateProfileParser) parseDegree(lower string) string {
	for _, kw := range p.catalog.DegreeKeywords {
		if containsKeyword(lower, kw) {
			return kw
		}
	}
	return ""
}

// parseGraduationYear returns the first 4-digit token within the accepted
// window.
func parseGraduationYear(text string) *int {
	for _, tok := range reYearToken.FindAllString(text, -1) {
		year, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if year >= minGraduationYear && year <= maxGraduationYear {
			return &year
		}
	}
	return nil
}

// parseSkills runs the same keyword-list membership scan as the JD parser,
// keeping domain and soft skills separate. Discovery order is preserved.
func (p *CandidateProfileParser) parseSkills(lower string) (domain, soft []string) {
	seen := make(map[string]struct{})
	domain = []string{}
	for _, cat := range p.catalog.DomainCategories {
		domain = findKeywords(lower, cat.Keywords, seen, domain)
	}

	softSeen := make(map[string]struct{})
	soft = findKeywords(lower, p.catalog.SoftSkills, softSeen, []string{})
	return domain, soft
}
