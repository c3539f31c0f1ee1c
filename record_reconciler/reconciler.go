package record_reconciler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strconv"
	"strings"

	"sd_db_storage/entities"
	"sd_db_storage/generation_info"
)

const (
	processingClassPrefix = "StableDiffusionProcessing"
	wildcardMarker        = "__"
)

// Substrings marking intermediate files written before a preprocessing pass.
var preprocessedMarkers = []string{"restoration", "highres"}

// Batch is everything the pipeline knows about one generation run.
type Batch struct {
	Info           *generation_info.Info
	Images         []image.Image
	Prompts        []string
	Seeds          []int64
	NegativePrompt string
	InitialPrompt  string
	Mode           string
	SavedFilenames []string
}

type reconcilerImpl struct {
	saveFullImage bool
}

type Config struct {
	SaveFullImage bool
}

func New(cfg Config) (Reconciler, error) {
	return &reconcilerImpl{
		saveFullImage: cfg.SaveFullImage,
	}, nil
}

// ModeFromProcessingName turns a processing class name such as
// "StableDiffusionProcessingTxt2Img" into the pipeline variant "Txt2Img".
func ModeFromProcessingName(name string) string {
	return strings.ReplaceAll(name, processingClassPrefix, "")
}

// PartitionFilenames drops intermediate files from the saved list and reports
// whether any were present.
func PartitionFilenames(saved []string) ([]string, bool) {
	final := make([]string, 0, len(saved))
	hadPreprocessed := false

	for _, filename := range saved {
		if IsPreprocessed(filename) {
			hadPreprocessed = true

			continue
		}

		final = append(final, filename)
	}

	return final, hadPreprocessed
}

// IsPreprocessed reports whether filename is an intermediate file written before
// face restoration or hires fix.
func IsPreprocessed(filename string) bool {
	for _, marker := range preprocessedMarkers {
		if strings.Contains(filename, marker) {
			return true
		}
	}

	return false
}

// SurvivingImages removes previews and grids from the pipeline output. A ControlNet
// run appends a model preview, and a second one when a preprocessing pass ran too.
// The second drop has not been verified against batched ControlNet runs with hires fix.
// Whatever remains, if more than one, starts with the grid.
func SurvivingImages(images []image.Image, controlNet, hadPreprocessed bool) []image.Image {
	survivors := make([]image.Image, len(images))
	copy(survivors, images)

	if controlNet {
		survivors = dropLast(survivors)

		if hadPreprocessed {
			survivors = dropLast(survivors)
		}
	}

	if len(survivors) > 1 {
		survivors = survivors[1:]
	}

	return survivors
}

func dropLast(images []image.Image) []image.Image {
	if len(images) == 0 {
		return images
	}

	return images[:len(images)-1]
}

func (r *reconcilerImpl) Reconcile(batch *Batch, store StoreFunc) (int, error) {
	if batch == nil || batch.Info == nil {
		return 0, errors.New("missing batch info")
	}

	finalFilenames, hadPreprocessed := PartitionFilenames(batch.SavedFilenames)

	images := SurvivingImages(batch.Images, batch.Info.ControlNet, hadPreprocessed)

	stored := 0

	for index, img := range images {
		record, err := r.buildRecord(batch, index, img, finalFilenames)
		if err != nil {
			return stored, err
		}

		err = store(index, record)
		if err != nil {
			return stored, NewRecordError(index, "storing record", err)
		}

		stored++
	}

	return stored, nil
}

func (r *reconcilerImpl) buildRecord(batch *Batch, index int, img image.Image, finalFilenames []string) (*entities.ImageRecord, error) {
	info := batch.Info

	if index >= len(batch.Prompts) {
		return nil, NewRecordError(index, fmt.Sprintf("no prompt for image (have %d)", len(batch.Prompts)), nil)
	}

	if index >= len(batch.Seeds) {
		return nil, NewRecordError(index, fmt.Sprintf("no seed for image (have %d)", len(batch.Seeds)), nil)
	}

	steps, err := intField(info, index, generation_info.FieldSteps)
	if err != nil {
		return nil, err
	}

	cfgScale, err := floatField(info, index, generation_info.FieldCFGScale)
	if err != nil {
		return nil, err
	}

	sampler, err := stringField(info, index, generation_info.FieldSampler)
	if err != nil {
		return nil, err
	}

	model, err := stringField(info, index, generation_info.FieldModel)
	if err != nil {
		return nil, err
	}

	modelHash, err := stringField(info, index, generation_info.FieldModelHash)
	if err != nil {
		return nil, err
	}

	size, err := scaledSize(info, index)
	if err != nil {
		return nil, err
	}

	record := &entities.ImageRecord{
		Mode:           batch.Mode,
		Prompt:         batch.Prompts[index],
		NegativePrompt: batch.NegativePrompt,
		Steps:          steps,
		Seed:           batch.Seeds[index],
		Sampler:        sampler,
		CfgScale:       cfgScale,
		Model:          model,
		ModelHash:      modelHash,
		Size:           size,
	}

	if len(finalFilenames) > 0 {
		if index >= len(finalFilenames) {
			return nil, NewRecordError(index, fmt.Sprintf("no saved file for image (have %d)", len(finalFilenames)), nil)
		}

		record.Filename = filepath.Base(finalFilenames[index])
		record.Filepath = filepath.Dir(finalFilenames[index])
	}

	if info.ControlNet {
		record.ControlNet = true
	}

	// catches wildcard prompts from prompt templating extensions, default syntax only
	if strings.Contains(batch.InitialPrompt, wildcardMarker) {
		record.InitialPrompt = batch.InitialPrompt
	}

	if r.saveFullImage {
		if img == nil {
			return nil, NewRecordError(index, "missing image data", nil)
		}

		imageBuf := new(bytes.Buffer)

		err = png.Encode(imageBuf, img)
		if err != nil {
			return nil, NewRecordError(index, "encoding image", err)
		}

		record.Image = imageBuf.Bytes()
		record.Filesize = imageBuf.Len()
	}

	return record, nil
}

func stringField(info *generation_info.Info, index int, key string) (string, error) {
	value, ok := info.Get(key)
	if !ok {
		return "", NewRecordError(index, fmt.Sprintf("missing field %q", key), nil)
	}

	return value, nil
}

func intField(info *generation_info.Info, index int, key string) (int, error) {
	value, err := stringField(info, index, key)
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, NewRecordError(index, fmt.Sprintf("field %q is not an integer", key), err)
	}

	return parsed, nil
}

func floatField(info *generation_info.Info, index int, key string) (float64, error) {
	value, err := stringField(info, index, key)
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, NewRecordError(index, fmt.Sprintf("field %q is not a number", key), err)
	}

	return parsed, nil
}

// scaledSize reads "WxH" and multiplies both sides by the hires upscale factor.
func scaledSize(info *generation_info.Info, index int) ([2]int, error) {
	multiplier := 1

	if _, ok := info.Get(generation_info.FieldHiresUpscale); ok {
		var err error

		multiplier, err = intField(info, index, generation_info.FieldHiresUpscale)
		if err != nil {
			return [2]int{}, err
		}
	}

	value, err := stringField(info, index, generation_info.FieldSize)
	if err != nil {
		return [2]int{}, err
	}

	dimensions := strings.Split(value, "x")
	if len(dimensions) != 2 {
		return [2]int{}, NewRecordError(index, fmt.Sprintf("malformed size %q", value), nil)
	}

	var size [2]int

	for i, dimension := range dimensions {
		parsed, err := strconv.Atoi(dimension)
		if err != nil {
			return [2]int{}, NewRecordError(index, fmt.Sprintf("malformed size %q", value), err)
		}

		size[i] = parsed * multiplier
	}

	return size, nil
}
