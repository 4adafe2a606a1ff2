package features

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"match-engine-go/internal/types"
)

func intPtr(v int) *int { return &v }

func TestBuild_SkillFeatures(t *testing.T) {
	req := types.JobRequirements{Skills: []string{"java", "sql"}}
	profile := types.CandidateProfile{DomainSkills: []string{"java", "python"}}

	fv := Build(req, profile)

	assert.Equal(t, 2, fv.JobSkillsCount)
	assert.Equal(t, 2, fv.CVSkillsCount)
	assert.Equal(t, 1, fv.SkillOverlapCount)
	assert.InDelta(t, 1.0/3.0, fv.SkillJaccard, 1e-9)
	assert.InDelta(t, 0.5, fv.SkillCoverage, 1e-9)
	assert.InDelta(t, 0.5, fv.SkillPrecision, 1e-9)
}

func TestBuild_SkillFeatures_CaseAndDuplicates(t *testing.T) {
	req := types.JobRequirements{Skills: []string{"Java", "JAVA", " sql "}}
	profile := types.CandidateProfile{DomainSkills: []string{"java"}}

	fv := Build(req, profile)

	assert.Equal(t, 2, fv.JobSkillsCount)
	assert.Equal(t, 1, fv.SkillOverlapCount)
	assert.InDelta(t, 0.5, fv.SkillCoverage, 1e-9)
}

func TestBuild_SkillFeatures_EmptySides(t *testing.T) {
	fv := Build(types.JobRequirements{}, types.CandidateProfile{})

	assert.Zero(t, fv.SkillJaccard)
	assert.Zero(t, fv.SkillCoverage)
	assert.Zero(t, fv.SkillPrecision)
	assert.Zero(t, fv.SkillOverlapCount)
	assert.Zero(t, fv.JobSkillsCount)
	assert.Zero(t, fv.CVSkillsCount)
}

func TestBuild_ExperienceFeatures(t *testing.T) {
	req := types.JobRequirements{MinExperienceYears: intPtr(3)}
	profile := types.CandidateProfile{TotalExperienceYears: intPtr(5)}

	fv := Build(req, profile)

	assert.Equal(t, 3.0, fv.JobExperienceRequired)
	assert.Equal(t, 5.0, fv.CVExperienceYears)
	assert.Equal(t, 2.0, fv.ExperienceGap)
	assert.InDelta(t, 5.0/3.0, fv.ExperienceRatio, 1e-9)
	assert.Equal(t, 1, fv.ExperienceMatch)
}

func TestBuild_ExperienceFeatures_Underqualified(t *testing.T) {
	req := types.JobRequirements{MinExperienceYears: intPtr(5)}
	profile := types.CandidateProfile{TotalExperienceYears: intPtr(2)}

	fv := Build(req, profile)

	assert.Equal(t, 3.0, fv.ExperienceGap)
	assert.InDelta(t, 0.4, fv.ExperienceRatio, 1e-9)
	assert.Equal(t, 0, fv.ExperienceMatch)
}

func TestBuild_ExperienceFeatures_Absent(t *testing.T) {
	fv := Build(types.JobRequirements{}, types.CandidateProfile{})

	assert.Zero(t, fv.JobExperienceRequired)
	assert.Zero(t, fv.CVExperienceYears)
	assert.Zero(t, fv.ExperienceGap)
	// Required years of zero means the ratio is undefined and stays at zero.
	assert.Zero(t, fv.ExperienceRatio)
	// Zero candidate years still satisfies a zero requirement.
	assert.Equal(t, 1, fv.ExperienceMatch)
}

func TestBuild_EducationFeatures(t *testing.T) {
	tests := []struct {
		name         string
		jobEducation string
		cvDegree     string
		jobLevel     int
		cvLevel      int
		gap          int
		match        int
	}{
		{"exact bachelor", "BACHELOR", "Bachelor of Science", 3, 3, 0, 1},
		{"master exceeds bachelor", "BACHELOR", "Master of Engineering", 3, 4, 1, 1},
		{"bachelor below master", "MASTER", "Bachelor of Arts", 4, 3, 1, 0},
		{"phd", "PHD", "Doctorate in Physics", 5, 5, 0, 1},
		{"mba counts as master", "MASTER", "MBA", 4, 4, 0, 1},
		{"associate diploma", "ASSOCIATE", "College Diploma", 2, 2, 0, 1},
		{"both unspecified", "", "", 1, 1, 0, 1},
		{"unrecognised degree", "BACHELOR", "Certificate of Attendance", 3, 1, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := Build(
				types.JobRequirements{EducationLevel: tt.jobEducation},
				types.CandidateProfile{HighestDegree: tt.cvDegree},
			)
			assert.Equal(t, tt.jobLevel, fv.JobEducationLevel)
			assert.Equal(t, tt.cvLevel, fv.CVEducationLevel)
			assert.Equal(t, tt.gap, fv.EducationGap)
			assert.Equal(t, tt.match, fv.EducationMatch)
		})
	}
}

func TestBuild_SeniorityMatchScore(t *testing.T) {
	tests := []struct {
		name      string
		seniority string
		years     *int
		want      int
	}{
		{"no seniority required", "", intPtr(5), 0},
		{"no experience stated", "SENIOR", nil, 0},
		{"senior with seven years", "SENIOR", intPtr(7), 1},
		{"senior with ten years off by one", "SENIOR", intPtr(10), 0},
		{"junior with ten years", "JUNIOR", intPtr(10), -1},
		{"mid with three years", "MID_LEVEL", intPtr(3), 1},
		{"lead with one year", "LEAD", intPtr(1), -1},
		{"unknown level defaults to mid", "WIZARD", intPtr(3), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := Build(
				types.JobRequirements{Seniority: tt.seniority},
				types.CandidateProfile{TotalExperienceYears: tt.years},
			)
			assert.Equal(t, tt.want, fv.SeniorityMatchScore)
		})
	}
}

func TestBuild_IsDeterministic(t *testing.T) {
	req := types.JobRequirements{
		Skills:             []string{"go", "docker", "kubernetes"},
		MinExperienceYears: intPtr(4),
		EducationLevel:     "BACHELOR",
		Seniority:          "SENIOR",
	}
	profile := types.CandidateProfile{
		DomainSkills:         []string{"go", "kubernetes", "terraform"},
		TotalExperienceYears: intPtr(6),
		HighestDegree:        "Bachelor of Computer Science",
	}

	first := Build(req, profile)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Build(req, profile))
	}
}
