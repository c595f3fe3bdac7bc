package models

import "strings"

// StructuralRule is the scene layout a story must follow for an age bracket.
type StructuralRule struct {
	Name        string `json:"name"`
	TotalScenes int    `json:"total_scenes"`

	// DecisionPoints is how many choices a reader makes on any path.
	DecisionPoints int    `json:"decision_points"`
	DecisionScenes []int  `json:"decision_scenes"`
	Endings        []int  `json:"endings"`
	Instructions   string `json:"instructions"`
}

var (
	ruleFiveScene = StructuralRule{
		Name:           "linear-5",
		TotalScenes:    5,
		DecisionPoints: 1,
		DecisionScenes: []int{3},
		Endings:        []int{4, 5},
		Instructions: strings.Join([]string{
			"Buat cerita dengan total 5 scene:",
			"- Scene 1: naratif pembuka",
			"- Scene 2: pengembangan",
			"- Scene 3: decision point (anak memilih baik/buruk)",
			"- Scene 4 & 5: masing-masing adalah ending berdasarkan pilihan",
		}, "\n"),
	}

	ruleTenScene = StructuralRule{
		Name:           "double-binary-10",
		TotalScenes:    10,
		DecisionPoints: 2,
		DecisionScenes: []int{2, 4, 6},
		Endings:        []int{7, 8, 9, 10},
		Instructions: strings.Join([]string{
			"Buat cerita dengan total 10 scene:",
			"- Scene 1: naratif pembuka",
			"- Scene 2: decision point pertama",
			"   - Pilihan baik → scene 3 (berikan reward disini) → scene 4",
			"   - Pilihan buruk → scene 5 (berikan koreksi atau konsekuensi disini) → scene 6",
			"- Scene 4: decision point kedua untuk cabang baik",
			"   - Pilihan baik → scene 7 (ending terbaik)",
			"   - Pilihan buruk → scene 8 (ending cukup baik)",
			"- Scene 6: decision point kedua untuk cabang buruk",
			"   - Pilihan baik → scene 9 (ending cukup buruk)",
			"   - Pilihan buruk → scene 10 (ending terburuk)",
		}, "\n"),
	}

	ruleDefault = StructuralRule{
		Name:           "default-5",
		TotalScenes:    5,
		DecisionPoints: 1,
		DecisionScenes: []int{3},
		Endings:        []int{4, 5},
		Instructions:   "Gunakan struktur 5 scene default.",
	}
)

// StructuralRuleFor returns the scene layout for a child's age. Ages outside
// 4-12, including unknown ones, get the default layout.
func StructuralRuleFor(age int) StructuralRule {
	switch {
	case age >= 4 && age <= 5:
		return ruleFiveScene
	case age >= 6 && age <= 12:
		return ruleTenScene
	default:
		return ruleDefault
	}
}
