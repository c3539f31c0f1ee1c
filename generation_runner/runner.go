package generation_runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sd_db_storage/composite_renderer"
	"sd_db_storage/db_storage"
	"sd_db_storage/generation_info"
	"sd_db_storage/png_info_extractor"
	"sd_db_storage/record_reconciler"
	"sd_db_storage/stable_diffusion_api"
)

const (
	txt2ImgProcessing = "StableDiffusionProcessingTxt2Img"
	img2ImgProcessing = "StableDiffusionProcessingImg2Img"

	gridPrefix = "grid-"
)

var sequenceRegex = regexp.MustCompile(`^(\d+)-`)

type runnerImpl struct {
	stableDiffusionAPI stable_diffusion_api.StableDiffusionAPI
	storage            db_storage.Storage
	compositeRenderer  composite_renderer.Renderer
	outputDir          string
	saveToDB           bool
}

type Config struct {
	StableDiffusionAPI stable_diffusion_api.StableDiffusionAPI
	Storage            db_storage.Storage
	OutputDir          string
	SaveToDB           bool
}

func New(cfg Config) (Runner, error) {
	if cfg.Storage == nil {
		return nil, errors.New("missing storage")
	}

	if cfg.OutputDir == "" {
		return nil, errors.New("missing output directory")
	}

	compositeRenderer, err := composite_renderer.New(composite_renderer.Config{})
	if err != nil {
		return nil, err
	}

	return &runnerImpl{
		stableDiffusionAPI: cfg.StableDiffusionAPI,
		storage:            cfg.Storage,
		compositeRenderer:  compositeRenderer,
		outputDir:          cfg.OutputDir,
		saveToDB:           cfg.SaveToDB,
	}, nil
}

type GenerateResult struct {
	// Files are the paths written, grid first when there is one.
	Files []string
}

type ImportResult struct {
	Imported int
	Skipped  int
}

func (r *runnerImpl) Generate(ctx context.Context, req *stable_diffusion_api.TextToImageRequest) (*GenerateResult, error) {
	if r.stableDiffusionAPI == nil {
		return nil, errors.New("missing stable diffusion API")
	}

	resp, err := r.stableDiffusionAPI.TextToImage(req)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, len(resp.Images))

	for idx, encoded := range resp.Images {
		decodedImage, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding image %d: %w", idx, decodeErr)
		}

		images[idx], decodeErr = png.Decode(bytes.NewReader(decodedImage))
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding image %d: %w", idx, decodeErr)
		}
	}

	realCount := len(resp.AllSeeds)

	if len(images) < realCount {
		return nil, fmt.Errorf("expected at least %d images, got %d", realCount, len(images))
	}

	// the webui only returns a grid when return_grid is on; build one so the
	// output always has the shape the storage hook expects
	if realCount > 1 && !hasGrid(images, realCount) {
		grid, tileErr := r.compositeRenderer.TileImages(images[:realCount])
		if tileErr != nil {
			return nil, tileErr
		}

		images = append([]image.Image{grid}, images...)
	}

	err = os.MkdirAll(r.outputDir, 0o755)
	if err != nil {
		return nil, err
	}

	sequence, err := nextSequence(r.outputDir)
	if err != nil {
		return nil, err
	}

	files := db_storage.NewSavedFiles()
	result := &GenerateResult{}

	offset := 0

	if realCount > 1 {
		gridPath := filepath.Join(r.outputDir, fmt.Sprintf("%s%05d.png", gridPrefix, sequence))

		files.OnBeforeImageSaved(gridPath)

		err = writeImage(gridPath, images[0], resp.Info)
		if err != nil {
			return nil, err
		}

		result.Files = append(result.Files, gridPath)
		offset = 1
	}

	// anything after the real images is a preview and is never written
	for i := 0; i < realCount; i++ {
		path := filepath.Join(r.outputDir, fmt.Sprintf("%05d-%d.png", sequence+i, resp.AllSeeds[i]))

		files.OnBeforeImageSaved(path)

		err = writeImage(path, images[offset+i], infotextFor(resp, i))
		if err != nil {
			return nil, err
		}

		result.Files = append(result.Files, path)
	}

	r.storage.Postprocess(ctx, files, &db_storage.Processed{
		Info:           resp.Info,
		Images:         images,
		AllPrompts:     resp.AllPrompts,
		AllSeeds:       resp.AllSeeds,
		Prompt:         resp.Prompt,
		NegativePrompt: resp.NegativePrompt,
		Mode:           record_reconciler.ModeFromProcessingName(txt2ImgProcessing),
	}, r.saveToDB)

	return result, nil
}

// hasGrid reports whether images starts with a grid. Previews may trail the real
// images, so only a leading image larger than the first real one counts.
func hasGrid(images []image.Image, realCount int) bool {
	if len(images) <= realCount || images[0] == nil || images[1] == nil {
		return false
	}

	return images[0].Bounds().Size() != images[1].Bounds().Size()
}

func infotextFor(resp *stable_diffusion_api.TextToImageResponse, index int) string {
	if index < len(resp.Infotexts) {
		return resp.Infotexts[index]
	}

	return resp.Info
}

func writeImage(path string, img image.Image, parameters string) error {
	buf := new(bytes.Buffer)

	err := png.Encode(buf, img)
	if err != nil {
		return err
	}

	data, err := png_info_extractor.EmbedParameters(buf.Bytes(), parameters)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// nextSequence returns one past the highest "NNNNN-" prefix in dir.
func nextSequence(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	next := 0

	for _, entry := range entries {
		match := sequenceRegex.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		seq, convErr := strconv.Atoi(match[1])
		if convErr != nil {
			continue
		}

		if seq >= next {
			next = seq + 1
		}
	}

	return next, nil
}

// ImportDirectory stores every PNG in dir that carries generation parameters,
// one batch per file.
func (r *runnerImpl) ImportDirectory(ctx context.Context, dir string) (*ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}

		// intermediate files carry the same parameters as the final image
		if strings.HasPrefix(entry.Name(), gridPrefix) || record_reconciler.IsPreprocessed(entry.Name()) {
			continue
		}

		names = append(names, entry.Name())
	}

	sort.Strings(names)

	result := &ImportResult{}

	for _, name := range names {
		path := filepath.Join(dir, name)

		processed, importErr := importFile(path)
		if importErr != nil {
			log.Printf("Skipping %s: %v", path, importErr)

			result.Skipped++

			continue
		}

		files := db_storage.NewSavedFiles()
		files.OnBeforeImageSaved(path)

		r.storage.Postprocess(ctx, files, processed, r.saveToDB)

		result.Imported++
	}

	return result, nil
}

func importFile(path string) (*db_storage.Processed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	extractor, err := png_info_extractor.New(png_info_extractor.Config{PngData: data})
	if err != nil {
		return nil, err
	}

	pngInfo, err := extractor.ExtractDiffusionInfo()
	if err != nil {
		return nil, err
	}

	if pngInfo.Parameters == "" {
		return nil, errors.New("no generation parameters")
	}

	info, err := generation_info.Parse(pngInfo.Parameters)
	if err != nil {
		return nil, err
	}

	seedValue, ok := info.Get(generation_info.FieldSeed)
	if !ok {
		return nil, errors.New("no seed in generation parameters")
	}

	seed, err := strconv.ParseInt(seedValue, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", seedValue, err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	images := []image.Image{img}

	// a live ControlNet batch ends with a model preview; files on disk never do
	if info.ControlNet {
		images = append(images, nil)
	}

	prompt, negativePrompt := generation_info.SplitPrompts(pngInfo.Parameters)

	return &db_storage.Processed{
		Info:           pngInfo.Parameters,
		Images:         images,
		AllPrompts:     []string{prompt},
		AllSeeds:       []int64{seed},
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
		Mode:           modeFromPath(path),
	}, nil
}

// the webui writes into txt2img-images and img2img-images
func modeFromPath(path string) string {
	if strings.Contains(filepath.Dir(path), "img2img") {
		return record_reconciler.ModeFromProcessingName(img2ImgProcessing)
	}

	return record_reconciler.ModeFromProcessingName(txt2ImgProcessing)
}
