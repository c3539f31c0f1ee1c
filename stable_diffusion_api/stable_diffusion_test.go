package stable_diffusion_api

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txt2imgURL = "http://sd.local:7860/sdapi/v1/txt2img"

func newMockedAPI(t *testing.T) StableDiffusionAPI {
	t.Helper()

	client := &http.Client{}

	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	api, err := New(Config{Host: "http://sd.local:7860/", Client: client})
	require.NoError(t, err)

	return api
}

func txt2imgBody(t *testing.T) string {
	t.Helper()

	info, err := json.Marshal(map[string]interface{}{
		"prompt":          "a lighthouse, __styles__",
		"negative_prompt": "blurry",
		"all_prompts":     []string{"a lighthouse, watercolor", "a lighthouse, ink"},
		"seed":            1001,
		"all_seeds":       []int64{1001, 4294967295},
		"infotexts": []string{
			"a lighthouse, watercolor\nNegative prompt: blurry\nSteps: 20, Sampler: Euler a, CFG scale: 7, Seed: 1001, Size: 512x512, Model hash: abc, Model: v1",
			"a lighthouse, ink\nNegative prompt: blurry\nSteps: 20, Sampler: Euler a, CFG scale: 7, Seed: 4294967295, Size: 512x512, Model hash: abc, Model: v1",
		},
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"images": []string{"Z3JpZA==", "aW1nMQ==", "aW1nMg=="},
		"info":   string(info),
	})
	require.NoError(t, err)

	return string(body)
}

func TestNewRequiresHost(t *testing.T) {
	_, err := New(Config{})
	assert.EqualError(t, err, "missing host")
}

func TestTextToImage(t *testing.T) {
	api := newMockedAPI(t)

	var sent TextToImageRequest

	httpmock.RegisterResponder("POST", txt2imgURL, func(req *http.Request) (*http.Response, error) {
		payload, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(payload, &sent); err != nil {
			return nil, err
		}

		return httpmock.NewStringResponse(http.StatusOK, txt2imgBody(t)), nil
	})

	resp, err := api.TextToImage(&TextToImageRequest{
		Prompt:      "a lighthouse, __styles__",
		BatchSize:   2,
		NIter:       1,
		Steps:       20,
		Seed:        -1,
		SamplerName: "Euler a",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, "a lighthouse, __styles__", sent.Prompt)
	assert.Equal(t, 2, sent.BatchSize)

	assert.Len(t, resp.Images, 3)
	assert.Equal(t, "a lighthouse, __styles__", resp.Prompt)
	assert.Equal(t, "blurry", resp.NegativePrompt)
	assert.Equal(t, []string{"a lighthouse, watercolor", "a lighthouse, ink"}, resp.AllPrompts)
	assert.Equal(t, []int64{1001, 4294967295}, resp.AllSeeds)
	assert.Contains(t, resp.Info, "Steps: 20, Sampler: Euler a")
	assert.Contains(t, resp.Info, "Seed: 1001")
	require.Len(t, resp.Infotexts, 2)
	assert.Equal(t, resp.Info, resp.Infotexts[0])
}

func TestTextToImageErrors(t *testing.T) {
	api := newMockedAPI(t)

	_, err := api.TextToImage(nil)
	assert.EqualError(t, err, "missing request")

	httpmock.RegisterResponder("POST", txt2imgURL, httpmock.NewStringResponder(http.StatusInternalServerError, `{"detail":"CUDA out of memory"}`))

	_, err = api.TextToImage(&TextToImageRequest{Prompt: "p"})
	assert.EqualError(t, err, "unexpected status code 500")

	httpmock.RegisterResponder("POST", txt2imgURL, httpmock.NewStringResponder(http.StatusOK, `{"images":[],"info":"not json"}`))

	_, err = api.TextToImage(&TextToImageRequest{Prompt: "p"})
	assert.Error(t, err)
}
