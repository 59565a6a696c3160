package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumind/internal/llm"
)

func TestRunNormalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.json")
	require.NoError(t, os.WriteFile(path, []byte("```json\n"+llm.SampleFeedback+"\n```"), 0644))

	var out bytes.Buffer
	require.NoError(t, runNormalize([]string{path}, &out))

	var got normalizeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 7.5, got.Feedback.OverallRating)
	assert.Equal(t, 7.0, got.Feedback.Education.Rating)
	assert.Equal(t, "Your resume scored 7.5/10 based on multiple evaluation categories.", got.Feedback.Summary)
	assert.NotEmpty(t, got.View.Categories)
}

func TestRunNormalizeErrors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runNormalize(nil, &out))
	assert.Error(t, runNormalize([]string{filepath.Join(t.TempDir(), "missing.json")}, &out))
}

func TestRunPreview(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cv.txt")
	outPNG := filepath.Join(dir, "cv.png")
	require.NoError(t, os.WriteFile(in, []byte("Jane Doe\nGo Engineer"), 0644))

	var out bytes.Buffer
	require.NoError(t, runPreview([]string{"--width", "300", "--height", "400", in, outPNG}, &out))

	f, err := os.Open(outPNG)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Contains(t, out.String(), "cv.png")
}

func TestRunInstructions(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runInstructions([]string{"--title", "SRE", "-d", "Keep things up"}, &out))
	assert.Contains(t, out.String(), "The job title is: SRE\n")
	assert.Contains(t, out.String(), "The job description is: Keep things up\n")
}
