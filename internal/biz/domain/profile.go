package domain

import "math"

// Profile is the durable progression state of an actor
type Profile struct {
	ActorID   string `json:"actor_id"`
	XP        int    `json:"xp"`
	Level     int    `json:"level"`
	Title     string `json:"title"`
	Talkative bool   `json:"talkative"`
	UpdatedAt int64  `json:"updated_at"`
}

// ProfilePatch is a partial profile update; nil fields are left untouched
type ProfilePatch struct {
	XP        *int
	Level     *int
	Title     *string
	Talkative *bool
}

// Apply merges the patch into p
func (pp ProfilePatch) Apply(p *Profile) {
	if pp.XP != nil {
		p.XP = *pp.XP
	}
	if pp.Level != nil {
		p.Level = *pp.Level
	}
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Talkative != nil {
		p.Talkative = *pp.Talkative
	}
}

// LevelForXP maps experience to a level: floor(sqrt(xp/100)) + 1
func LevelForXP(xp int) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Sqrt(float64(xp)/100)) + 1
}

// TitleForLevel picks the highest title whose threshold is <= level.
// titles[i] is the title for level i+1; levels past the table keep the last title.
func TitleForLevel(level int, titles []string) string {
	if len(titles) == 0 {
		return ""
	}
	idx := level - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(titles) {
		idx = len(titles) - 1
	}
	return titles[idx]
}
