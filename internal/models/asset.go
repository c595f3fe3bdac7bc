package models

import "strconv"

type Modality string

const (
	ModalityImage Modality = "image"
	ModalityVoice Modality = "voice"
)

// Asset is generated media ready to be stored.
type Asset struct {
	Data        []byte
	ContentType string
	Extension   string
}

// AssetRequest asks one generation capability for one scene's media.
type AssetRequest struct {
	SceneID  int      `json:"scene_id"`
	Modality Modality `json:"type"`
	Prompt   string   `json:"prompt"`
}

// AssetKey identifies a request's result slot.
type AssetKey struct {
	SceneID  int
	Modality Modality
}

func (k AssetKey) String() string {
	return "scene-" + strconv.Itoa(k.SceneID) + "-" + string(k.Modality)
}

func (r AssetRequest) Key() AssetKey {
	return AssetKey{SceneID: r.SceneID, Modality: r.Modality}
}

// AssetResult is the settled outcome of one AssetRequest; Value is the asset URL.
type AssetResult struct {
	Key    AssetKey
	Result Result[string]
}
