package generatesceneassets

import "finlit-workers/internal/models"

type Input struct {
	BookID string        `json:"bookId"`
	Story  *models.Story `json:"story"`
}

type Output struct {
	Story  *models.Story `json:"story"`
	Report AssetReport   `json:"assetReport"`
}

// AssetReport summarizes one fan-out: how many requests were issued and
// which of them failed.
type AssetReport struct {
	Requested int            `json:"requested"`
	Succeeded int            `json:"succeeded"`
	Failed    []AssetFailure `json:"failed"`
}

type AssetFailure struct {
	SceneID  int             `json:"scene_id"`
	Modality models.Modality `json:"modality"`
	Kind     models.ErrKind  `json:"kind"`
	Detail   string          `json:"detail"`
}
