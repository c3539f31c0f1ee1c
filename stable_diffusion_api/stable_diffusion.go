package stable_diffusion_api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

type apiImpl struct {
	host   string
	client *http.Client
}

type Config struct {
	Host string
	// Client defaults to a plain http.Client.
	Client *http.Client
}

func New(cfg Config) (StableDiffusionAPI, error) {
	if cfg.Host == "" {
		return nil, errors.New("missing host")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	return &apiImpl{
		host:   strings.TrimSuffix(cfg.Host, "/"),
		client: client,
	}, nil
}

type jsonTextToImageResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

type jsonInfoResponse struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	AllPrompts     []string `json:"all_prompts"`
	Seed           int64    `json:"seed"`
	AllSeeds       []int64  `json:"all_seeds"`
	SamplerName    string   `json:"sampler_name"`
	Infotexts      []string `json:"infotexts"`
}

type TextToImageResponse struct {
	// Images are base64 encoded PNGs, grid first when the webui returned one.
	Images         []string `json:"images"`
	Info           string   `json:"info"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	AllPrompts     []string `json:"all_prompts"`
	AllSeeds       []int64  `json:"all_seeds"`
	// Infotexts holds one generation log per real image.
	Infotexts []string `json:"infotexts"`
}

type TextToImageRequest struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	RestoreFaces      bool    `json:"restore_faces"`
	EnableHR          bool    `json:"enable_hr"`
	HRScale           float64 `json:"hr_scale,omitempty"`
	DenoisingStrength float64 `json:"denoising_strength"`
	BatchSize         int     `json:"batch_size"`
	Seed              int64   `json:"seed"`
	SamplerName       string  `json:"sampler_name"`
	CfgScale          float64 `json:"cfg_scale"`
	Steps             int     `json:"steps"`
	NIter             int     `json:"n_iter"`
}

func (api *apiImpl) TextToImage(req *TextToImageRequest) (*TextToImageResponse, error) {
	if req == nil {
		return nil, errors.New("missing request")
	}

	postURL := api.host + "/sdapi/v1/txt2img"

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequest("POST", postURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	request.Header.Set("Content-Type", "application/json; charset=UTF-8")

	response, err := api.client.Do(request)
	if err != nil {
		log.Printf("API URL: %s", postURL)
		log.Printf("Error with API Request: %s", string(jsonData))

		return nil, err
	}

	defer response.Body.Close()

	body, _ := io.ReadAll(response.Body)

	if response.StatusCode != http.StatusOK {
		log.Printf("API URL: %s", postURL)
		log.Printf("Unexpected API status %d: %s", response.StatusCode, string(body))

		return nil, fmt.Errorf("unexpected status code %d", response.StatusCode)
	}

	respStruct := &jsonTextToImageResponse{}

	err = json.Unmarshal(body, respStruct)
	if err != nil {
		log.Printf("API URL: %s", postURL)
		log.Printf("Unexpected API response: %s", string(body))

		return nil, err
	}

	infoStruct := &jsonInfoResponse{}

	err = json.Unmarshal([]byte(respStruct.Info), infoStruct)
	if err != nil {
		log.Printf("API URL: %s", postURL)
		log.Printf("Unexpected API response: %s", string(body))

		return nil, err
	}

	info := ""
	if len(infoStruct.Infotexts) > 0 {
		info = infoStruct.Infotexts[0]
	}

	return &TextToImageResponse{
		Images:         respStruct.Images,
		Info:           info,
		Prompt:         infoStruct.Prompt,
		NegativePrompt: infoStruct.NegativePrompt,
		AllPrompts:     infoStruct.AllPrompts,
		AllSeeds:       infoStruct.AllSeeds,
		Infotexts:      infoStruct.Infotexts,
	}, nil
}
