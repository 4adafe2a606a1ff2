// Package parser extracts structured job requirements and candidate profiles
// from normalized plain text using curated keyword tables.
package parser

import "strings"

// KeywordCategory is a named, ordered keyword list. Order matters: keywords
// are tested in list order and discovery order is preserved in the result.
type KeywordCategory struct {
	Name     string
	Keywords []string
}

// LevelKeywords maps an output level to the keywords that select it.
// Lists are tested most-specific-first.
type LevelKeywords struct {
	Level    string
	Keywords []string
}

// KeywordCatalog is the immutable configuration consumed by both parsers.
// Injecting it keeps the lists extendable and localizable without touching
// parsing logic.
type KeywordCatalog struct {
	// DomainCategories are scanned for domain skills, in order.
	DomainCategories []KeywordCategory
	// SoftSkills are scanned separately and kept apart from domain skills.
	SoftSkills []string
	// DegreeKeywords select a candidate's highest degree (bilingual en/vi).
	DegreeKeywords []string
	// EducationLevels resolve a JD education requirement, PHD first.
	EducationLevels []LevelKeywords
	// SeniorityLevels resolve a JD seniority requirement, SENIOR first.
	SeniorityLevels []LevelKeywords
}

// DefaultCatalog returns the built-in keyword tables covering IT, marketing,
// sales, accounting and healthcare roles.
func DefaultCatalog() *KeywordCatalog {
	return &KeywordCatalog{
		DomainCategories: []KeywordCategory{
			{
				Name: "programming_languages",
				Keywords: []string{
					"java", "python", "javascript", "typescript", "c#", "c++", "go", "rust", "kotlin", "swift",
					"php", "ruby", "scala", "r", "sql", "html", "css", "c", "perl",
				},
			},
			{
				Name: "frameworks",
				Keywords: []string{
					"spring", "spring boot", "django", "flask", "react", "angular", "vue", "node", "express",
					"nestjs", "hibernate", "laravel", "rails", ".net", "asp.net", "fastapi", "nextjs", "vuejs",
				},
			},
			{
				Name: "databases",
				Keywords: []string{
					"postgresql", "mysql", "mongodb", "redis", "sql server", "oracle", "sqlite", "elasticsearch",
					"postgres", "mariadb", "cassandra", "dynamodb",
				},
			},
			{
				Name: "devops_tools",
				Keywords: []string{
					"docker", "kubernetes", "jenkins", "gitlab", "github actions", "aws", "azure", "gcp",
					"terraform", "ansible", "ci/cd", "git",
				},
			},
			{
				Name: "marketing",
				Keywords: []string{
					"seo", "sem", "google analytics", "google ads", "facebook ads", "content marketing",
					"social media marketing", "email marketing", "marketing automation", "copywriting",
					"content strategy", "brand management", "digital marketing", "inbound marketing",
					"hubspot", "salesforce marketing cloud", "mailchimp", "hootsuite",
				},
			},
			{
				Name: "sales",
				Keywords: []string{
					"b2b sales", "b2c sales", "crm", "salesforce", "cold calling", "lead generation",
					"negotiation", "account management", "sales strategy", "pipeline management",
					"hubspot crm", "zoho crm", "business development", "sales forecasting",
				},
			},
			{
				Name: "accounting",
				Keywords: []string{
					"gaap", "ifrs", "financial reporting", "tax preparation", "auditing", "bookkeeping",
					"quickbooks", "excel", "financial analysis", "budgeting", "forecasting",
					"accounts payable", "accounts receivable", "sap", "oracle financials", "cost accounting",
				},
			},
			{
				Name: "healthcare",
				Keywords: []string{
					"patient care", "clinical skills", "emr", "electronic medical records", "hipaa",
					"medical terminology", "cpr", "first aid", "nursing", "diagnostic procedures",
					"iv therapy", "medication administration", "epic", "cerner",
				},
			},
		},
		SoftSkills: []string{
			"teamwork", "communication", "leadership", "problem solving", "time management",
			"critical thinking", "adaptability", "creativity", "attention to detail",
			"analytical", "collaboration", "interpersonal",
			"làm việc nhóm", "giao tiếp", "lãnh đạo", "giải quyết vấn đề",
		},
		DegreeKeywords: []string{
			"bachelor", "master", "phd", "degree", "bằng cử nhân", "thạc sĩ", "tiến sĩ",
			"đại học", "university", "college", "cao đẳng", "engineer", "kỹ sư",
		},
		EducationLevels: []LevelKeywords{
			{Level: "PHD", Keywords: []string{"phd", "ph.d", "doctorate", "doctoral"}},
			{Level: "MASTER", Keywords: []string{"master", "master's", "ms", "ma", "msc", "graduate degree"}},
			{Level: "BACHELOR", Keywords: []string{"bachelor", "bachelor's", "bs", "ba", "bsc", "undergraduate", "degree"}},
		},
		SeniorityLevels: []LevelKeywords{
			{Level: "SENIOR", Keywords: []string{"senior", "lead", "principal", "staff", "expert"}},
			{Level: "MID_LEVEL", Keywords: []string{"mid level", "mid-level", "intermediate", "regular"}},
			{Level: "JUNIOR", Keywords: []string{"junior", "entry level", "entry-level", "associate", "beginner"}},
		},
	}
}

// findKeywords returns the keywords contained in lower, in list order,
// deduplicated against seen.
func findKeywords(lower string, keywords []string, seen map[string]struct{}, out []string) []string {
	for _, kw := range keywords {
		if _, ok := seen[kw]; ok {
			continue
		}
		if containsKeyword(lower, kw) {
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// containsAnyKeyword reports whether lower contains any of the keywords.
func containsAnyKeyword(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(lower, kw) {
			return true
		}
	}
	return false
}

// containsKeyword tests substring containment. Very short all-letter tokens
// ("r", "go", "ms", "ba") are required to stand alone, otherwise they would
// fire on nearly any text ("r" in "senior", "ms" in "systems").
func containsKeyword(lower, kw string) bool {
	if len(kw) <= 3 && isAllLetters(kw) {
		return containsWord(lower, kw)
	}
	return strings.Contains(lower, kw)
}

// containsWord reports whether word occurs in s bounded by non-letter,
// non-digit characters.
func containsWord(s, word string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		leftOK := idx == 0 || !isWordByte(s[idx-1])
		rightOK := end >= len(s) || !isWordByte(s[end])
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isAllLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if !((b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')) {
			return false
		}
	}
	return len(s) > 0
}
