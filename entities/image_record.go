package entities

import "time"

// ImageRecord is the document stored for every real output image of a batch.
// Records are independent of each other and never reference one another.
type ImageRecord struct {
	Mode           string    `json:"mode" bson:"mode"`
	Prompt         string    `json:"prompt" bson:"prompt"`
	NegativePrompt string    `json:"negative_prompt" bson:"negative_prompt"`
	Steps          int       `json:"steps" bson:"steps"`
	Seed           int64     `json:"seed" bson:"seed"`
	Sampler        string    `json:"sampler" bson:"sampler"`
	CfgScale       float64   `json:"cfg_scale" bson:"cfg_scale"`
	Model          string    `json:"model" bson:"model"`
	ModelHash      string    `json:"model_hash" bson:"model_hash"`
	Size           [2]int    `json:"size" bson:"size"`
	Filename       string    `json:"filename,omitempty" bson:"filename,omitempty"`
	Filepath       string    `json:"filepath,omitempty" bson:"filepath,omitempty"`
	ControlNet     bool      `json:"ControlNet,omitempty" bson:"ControlNet,omitempty"`
	InitialPrompt  string    `json:"initial_prompt,omitempty" bson:"initial_prompt,omitempty"`
	Image          []byte    `json:"image,omitempty" bson:"image,omitempty"`
	Filesize       int       `json:"filesize,omitempty" bson:"filesize,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

func (r *ImageRecord) Width() int {
	return r.Size[0]
}

func (r *ImageRecord) Height() int {
	return r.Size[1]
}
