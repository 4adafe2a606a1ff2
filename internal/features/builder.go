// Package features computes the fixed-shape numeric feature vector consumed
// by the scoring model.
package features

import (
	"math"
	"strings"

	"match-engine-go/internal/types"
)

// Education ordinals used on both the job and candidate side.
// Unspecified or unrecognized degrees map to 1.
const (
	eduLevelPHD       = 5
	eduLevelMaster    = 4
	eduLevelBachelor  = 3
	eduLevelAssociate = 2
	eduLevelOther     = 1
)

// Build computes a FeatureVector from a (requirements, profile) pair.
// It is a pure, total function: every branch has a defined default and no
// state is carried between calls.
func Build(req types.JobRequirements, profile types.CandidateProfile) types.FeatureVector {
	var fv types.FeatureVector

	jobSkills := toSkillSet(req.Skills)
	cvSkills := toSkillSet(profile.DomainSkills)
	buildSkillFeatures(&fv, jobSkills, cvSkills)

	buildExperienceFeatures(&fv, req.MinExperienceYears, profile.TotalExperienceYears)
	buildEducationFeatures(&fv, req.EducationLevel, profile.HighestDegree)

	fv.SeniorityMatchScore = seniorityMatchScore(req.Seniority, profile.TotalExperienceYears)

	return fv
}

// toSkillSet lower-cases, trims and deduplicates a skill list.
func toSkillSet(skills []string) map[string]struct{} {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	return set
}

func buildSkillFeatures(fv *types.FeatureVector, jobSkills, cvSkills map[string]struct{}) {
	jobCount := len(jobSkills)
	cvCount := len(cvSkills)
	fv.JobSkillsCount = jobCount
	fv.CVSkillsCount = cvCount

	overlap := 0
	for s := range jobSkills {
		if _, ok := cvSkills[s]; ok {
			overlap++
		}
	}
	fv.SkillOverlapCount = overlap

	union := jobCount + cvCount - overlap
	if union > 0 {
		fv.SkillJaccard = float64(overlap) / float64(union)
	}
	if jobCount > 0 {
		fv.SkillCoverage = float64(overlap) / float64(jobCount)
	}
	if cvCount > 0 {
		fv.SkillPrecision = float64(overlap) / float64(cvCount)
	}
}

func buildExperienceFeatures(fv *types.FeatureVector, jobMinExp, cvTotalExp *int) {
	jobExp := 0.0
	if jobMinExp != nil {
		jobExp = float64(*jobMinExp)
	}
	cvExp := 0.0
	if cvTotalExp != nil {
		cvExp = float64(*cvTotalExp)
	}

	fv.JobExperienceRequired = jobExp
	fv.CVExperienceYears = cvExp
	fv.ExperienceGap = math.Abs(cvExp - jobExp)
	if jobExp != 0 {
		fv.ExperienceRatio = cvExp / jobExp
	}
	if cvExp >= jobExp {
		fv.ExperienceMatch = 1
	}
}

func buildEducationFeatures(fv *types.FeatureVector, jobEducation, cvEducation string) {
	jobLevel := educationLevel(jobEducation)
	cvLevel := educationLevel(cvEducation)

	fv.JobEducationLevel = jobLevel
	fv.CVEducationLevel = cvLevel
	fv.EducationGap = abs(cvLevel - jobLevel)
	if cvLevel >= jobLevel {
		fv.EducationMatch = 1
	}
}

// educationLevel maps a degree string to its ordinal. Works for both the
// JD enum values (PHD, MASTER, ...) and free-form candidate degrees.
func educationLevel(education string) int {
	normalized := strings.ToLower(strings.TrimSpace(education))
	switch {
	case normalized == "":
		return eduLevelOther
	case strings.Contains(normalized, "phd") || strings.Contains(normalized, "doctorate"):
		return eduLevelPHD
	case strings.Contains(normalized, "master") || strings.Contains(normalized, "mba"):
		return eduLevelMaster
	case strings.Contains(normalized, "bachelor") || strings.Contains(normalized, "degree"):
		return eduLevelBachelor
	case strings.Contains(normalized, "associate") || strings.Contains(normalized, "diploma"):
		return eduLevelAssociate
	default:
		return eduLevelOther
	}
}

// seniorityMatchScore compares the job's required seniority against the
// seniority implied by the candidate's years of experience. When either
// side is absent no ordinal mapping is attempted and 0 is emitted.
func seniorityMatchScore(jobSeniority string, cvTotalExp *int) int {
	if jobSeniority == "" || cvTotalExp == nil {
		return 0
	}

	jobLevel := seniorityLevel(strings.ToLower(strings.TrimSpace(jobSeniority)))
	cvLevel := seniorityLevelFromYears(*cvTotalExp)

	switch abs(cvLevel - jobLevel) {
	case 0:
		return 1
	case 1:
		return 0
	default:
		return -1
	}
}

func seniorityLevel(seniority string) int {
	switch {
	case strings.Contains(seniority, "junior") || strings.Contains(seniority, "entry"):
		return 1
	case strings.Contains(seniority, "mid") || strings.Contains(seniority, "intermediate"):
		return 2
	case strings.Contains(seniority, "senior"):
		return 3
	case strings.Contains(seniority, "lead") || strings.Contains(seniority, "principal") || strings.Contains(seniority, "staff"):
		return 4
	default:
		return 2
	}
}

func seniorityLevelFromYears(years int) int {
	switch {
	case years < 2:
		return 1
	case years < 5:
		return 2
	case years < 8:
		return 3
	default:
		return 4
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
