package core

// Rank is the badge tier awarded for a total score.
type Rank string

const (
	RankNoviceSurfer  Rank = "NOVICE SURFER"
	RankDigitalScout  Rank = "DIGITAL SCOUT"
	RankCyberGuardian Rank = "CYBER GUARDIAN"
)

// Tier thresholds on the total score.
const (
	DigitalScoutThreshold  int64 = 150
	CyberGuardianThreshold int64 = 300
)

// RankFor maps a total score to its tier.
func RankFor(total int64) Rank {
	switch {
	case total >= CyberGuardianThreshold:
		return RankCyberGuardian
	case total >= DigitalScoutThreshold:
		return RankDigitalScout
	default:
		return RankNoviceSurfer
	}
}
