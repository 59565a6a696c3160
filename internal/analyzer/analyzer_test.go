package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumind/internal/config"
	"resumind/internal/constants"
	"resumind/internal/document"
	"resumind/internal/llm"
	"resumind/internal/outbox"
	"resumind/internal/preview"
	"resumind/internal/storage"
	"resumind/internal/types"
)

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failOn    string // 对象名包含该前缀时失败
	emptyPath bool
	uploads   []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Upload(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, name)
	if f.failOn != "" && strings.HasPrefix(name, f.failOn) {
		return "", errors.New("bucket unavailable")
	}
	if f.emptyPath {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[name] = data
	return name, nil
}

func (f *fakeObjects) Read(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[p]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (f *fakeObjects) Open(ctx context.Context, p string) (io.ReadCloser, storage.ObjectInfo, error) {
	data, err := f.Read(ctx, p)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return io.NopCloser(strings.NewReader(string(data))), storage.ObjectInfo{Path: p, Size: int64(len(data))}, nil
}

type fakeConverter struct {
	calls int
	err   error
	empty bool
	panic any
}

func (c *fakeConverter) Convert(_ context.Context, filename string, _ []byte) (*preview.Image, error) {
	c.calls++
	if c.panic != nil {
		panic(c.panic)
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.empty {
		return nil, nil
	}
	return &preview.Image{Filename: preview.PreviewName(filename), ContentType: "image/png", Data: []byte("png")}, nil
}

type fakeAI struct {
	responses []aiResponse
	calls     int
	refs      []string
	prompts   []string
}

type aiResponse struct {
	env *llm.Envelope
	err error
}

func (f *fakeAI) Feedback(_ context.Context, ref, instructions string) (*llm.Envelope, error) {
	f.refs = append(f.refs, ref)
	f.prompts = append(f.prompts, instructions)
	r := f.responses[len(f.responses)-1]
	if f.calls < len(f.responses) {
		r = f.responses[f.calls]
	}
	f.calls++
	return r.env, r.err
}

type recordingEvents struct {
	events []outbox.Event
	err    error
}

func (r *recordingEvents) Enqueue(_ context.Context, ev outbox.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

type fixture struct {
	objects   *fakeObjects
	kv        *storage.MemoryKV
	converter *fakeConverter
	ai        *fakeAI
	status    *StatusRecorder
	events    *recordingEvents
}

func newFixture(responses ...aiResponse) *fixture {
	return &fixture{
		objects:   newFakeObjects(),
		kv:        storage.NewMemoryKV(),
		converter: &fakeConverter{},
		ai:        &fakeAI{responses: responses},
		status:    &StatusRecorder{},
		events:    &recordingEvents{},
	}
}

func (f *fixture) analyzer(opts ...Option) *Analyzer {
	base := []Option{
		WithStatusReporter(f.status),
		WithEvents(f.events),
		WithIDGenerator(func() (string, error) { return "rid-1", nil }),
	}
	return New(f.objects, f.kv, f.converter, f.ai, append(base, opts...)...)
}

func (f *fixture) record(t *testing.T, id string) types.ResumeRecord {
	t.Helper()
	value, err := f.kv.Get(context.Background(), constants.ResumeKey(id))
	require.NoError(t, err)
	var rec types.ResumeRecord
	require.NoError(t, json.Unmarshal([]byte(value), &rec))
	return rec
}

func testRequest() Request {
	return Request{
		CompanyName:    "Acme",
		JobTitle:       "Backend Engineer",
		JobDescription: "Build Go services",
		File:           File{Name: "cv.pdf", Data: []byte("%PDF-1.4 fake")},
	}
}

func ok(content llm.Content) aiResponse {
	return aiResponse{env: llm.Succeeded(content)}
}

func TestAnalyzeSuccess(t *testing.T) {
	f := newFixture(ok(llm.TextContent("```json\n" + llm.SampleFeedback + "\n```")))
	res, err := f.analyzer().Analyze(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "rid-1", res.ID)
	assert.Equal(t, "/resume/rid-1", res.ResultsPath)
	assert.Equal(t, "resumes/rid-1/cv.pdf", res.Record.ResumePath)
	assert.Equal(t, "images/rid-1/cv.png", res.Record.ImagePath)

	rec := f.record(t, "rid-1")
	assert.Equal(t, res.Record.ResumePath, rec.ResumePath)
	assert.Equal(t, res.Record.ImagePath, rec.ImagePath)
	assert.Equal(t, "Acme", rec.CompanyName)
	assert.Equal(t, "Backend Engineer", rec.JobTitle)
	assert.Equal(t, "Build Go services", rec.JobDescription)
	assert.JSONEq(t, llm.SampleFeedback, string(rec.Feedback))
	assert.True(t, rec.HasFeedback())

	assert.Equal(t, []string{"resumes/rid-1/cv.pdf"}, f.ai.refs)
	assert.Contains(t, f.ai.prompts[0], "The job title is: Backend Engineer\n")
	assert.Contains(t, f.ai.prompts[0], "Build Go services")

	assert.Equal(t, []Stage{
		StageUploading, StageConverting, StageImage, StageRecord,
		StageRequesting, StageParsing, StageUpdating, StageComplete,
	}, f.status.Stages())
	last, _ := f.status.Last()
	assert.Equal(t, CompleteMessage, last.Message)
	assert.Equal(t, StateComplete, last.State)
	assert.Equal(t, "/resume/rid-1", last.ResultsPath)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, constants.EventResumeAnalyzed, ev.EventType)
	assert.Equal(t, "rid-1", ev.AggregateID)
	payload := ev.Payload.(map[string]any)
	assert.Equal(t, 7.5, payload["overall_rating"])
}

func TestAnalyzeUsesRequestID(t *testing.T) {
	f := newFixture(ok(llm.TextContent(`{"overall_rating": 5}`)))
	req := testRequest()
	req.ID = "given-id"
	res, err := f.analyzer().Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "given-id", res.ID)
	assert.Equal(t, `{"overall_rating":5}`, string(f.record(t, "given-id").Feedback))
}

func TestAnalyzeChunkContentUsesFirstChunk(t *testing.T) {
	f := newFixture(ok(llm.ChunkContent(
		llm.Chunk{Type: "text", Text: `{"overall_rating": 9}`},
		llm.Chunk{Type: "text", Text: "ignored"},
	)))
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"overall_rating":9}`, string(f.record(t, "rid-1").Feedback))
}

func TestAnalyzeUploadFailureSkipsConversion(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	f.objects.failOn = constants.ResumeObjectPrefix

	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUploadFailed)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUploading, stageErr.Stage)

	assert.Equal(t, 0, f.converter.calls)
	assert.Equal(t, 0, f.ai.calls)
	last, _ := f.status.Last()
	assert.Equal(t, StateFailed, last.State)
	assert.True(t, strings.HasPrefix(last.Message, "Error: "))
	assert.Contains(t, last.Message, "upload failed")
	assert.Empty(t, f.events.events)

	_, getErr := f.kv.Get(context.Background(), constants.ResumeKey("rid-1"))
	assert.ErrorIs(t, getErr, storage.ErrNotFound)
}

func TestAnalyzeEmptyUploadPathIsFailure(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	f.objects.emptyPath = true
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.Equal(t, 0, f.converter.calls)
}

func TestAnalyzeConversionFailure(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	f.converter.err = preview.ErrNoImage
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, preview.ErrNoImage, "底层原因保留在错误链中")
	assert.Equal(t, []string{"resumes/rid-1/cv.pdf"}, f.objects.uploads)

	f2 := newFixture(ok(llm.TextContent("{}")))
	f2.converter.empty = true
	_, err = f2.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrConversionFailed)
}

func TestAnalyzeImageUploadFailure(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	f.objects.failOn = constants.ImageObjectPrefix
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrUploadFailed)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageImage, stageErr.Stage)
}

func TestAnalyzeServiceFailureLeavesEmptyRecord(t *testing.T) {
	f := newFixture(aiResponse{env: llm.Failed("quota exceeded")})
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceFailed)
	assert.Contains(t, err.Error(), "quota exceeded")

	rec := f.record(t, "rid-1")
	assert.False(t, rec.HasFeedback())
	assert.Equal(t, `""`, string(rec.Feedback))
	assert.NotEmpty(t, rec.ImagePath)
}

func TestAnalyzeTransportError(t *testing.T) {
	f := newFixture(aiResponse{err: errors.New("connection reset")})
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrServiceFailed)
	assert.Equal(t, 1, f.ai.calls)
}

func TestAnalyzeMissingContent(t *testing.T) {
	f := newFixture(aiResponse{env: &llm.Envelope{}})
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrResponseShape)

	f2 := newFixture(ok(llm.ChunkContent()))
	_, err = f2.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrResponseShape)
}

func TestAnalyzeInvalidJSON(t *testing.T) {
	f := newFixture(ok(llm.TextContent("I think the resume is great")))
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrParseFailed)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	last, _ := f.status.Last()
	assert.Equal(t, StageParsing, last.Stage)
	assert.Equal(t, StatusMessage(err), last.Message)
	assert.False(t, f.record(t, "rid-1").HasFeedback())
}

func TestAnalyzeRecordFailure(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	a := New(f.objects, failingKV{}, f.converter, f.ai, WithStatusReporter(f.status))
	_, err := a.Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRecordFailed)
	assert.Equal(t, 0, f.ai.calls)
}

func TestAnalyzeRetriesServiceWhenConfigured(t *testing.T) {
	f := newFixture(
		aiResponse{err: errors.New("503 unavailable")},
		aiResponse{env: llm.Failed("busy")},
		ok(llm.TextContent(`{"overall_rating": 6}`)),
	)
	_, err := f.analyzer(WithAIRetry(2, time.Millisecond)).Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, f.ai.calls)
}

func TestAnalyzeRetryExhausted(t *testing.T) {
	f := newFixture(aiResponse{err: errors.New("503 unavailable")})
	_, err := f.analyzer(WithAIRetry(1, time.Millisecond)).Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrServiceFailed)
	assert.Contains(t, err.Error(), "503 unavailable")
	assert.Equal(t, 2, f.ai.calls)
}

func TestAnalyzeConverterPanicBecomesConversionFailure(t *testing.T) {
	f := newFixture(ok(llm.TextContent("{}")))
	f.converter.panic = "malformed PDF: reading at offset 99999: EOF"

	var err error
	require.NotPanics(t, func() {
		_, err = f.analyzer().Analyze(context.Background(), testRequest())
	})
	assert.ErrorIs(t, err, ErrConversionFailed)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConverting, stageErr.Stage)
	assert.Contains(t, err.Error(), "reading at offset 99999")

	last, _ := f.status.Last()
	assert.Equal(t, StateFailed, last.State)
	assert.Equal(t, StageConverting, last.Stage)
	assert.Equal(t, 0, f.ai.calls)
}

func TestAnalyzeMalformedPDF(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "document", "testdata", "resume.pdf"))
	require.NoError(t, err)
	i := bytes.LastIndex(data, []byte("startxref"))
	require.Positive(t, i)
	broken := append(append([]byte{}, data[:i]...), []byte("startxref\n99999\n%%EOF\n")...)

	converter, err := preview.NewConverter(config.PreviewConfig{Width: 300, Height: 400})
	require.NoError(t, err)
	f := newFixture(ok(llm.TextContent("{}")))
	a := New(f.objects, f.kv, converter, f.ai, WithStatusReporter(f.status))

	req := testRequest()
	req.File.Data = broken
	_, err = a.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, document.ErrMalformedPDF)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConverting, stageErr.Stage)
	assert.Equal(t, "Converting to image", string(stageErr.Stage))
}

func TestAnalyzeIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(ok(llm.TextContent(`{"overall_rating": 4}`)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.analyzer().Analyze(ctx, testRequest())
	require.NoError(t, err)
}

func TestAnalyzeEventFailureDoesNotFail(t *testing.T) {
	f := newFixture(ok(llm.TextContent(`{}`)))
	f.events.err = errors.New("broker down")
	_, err := f.analyzer().Analyze(context.Background(), testRequest())
	require.NoError(t, err)
}

func TestAnalyzeRejectsMissingFile(t *testing.T) {
	f := newFixture(ok(llm.TextContent(`{}`)))
	req := testRequest()
	req.File.Data = nil
	_, err := f.analyzer().Analyze(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, f.objects.uploads)
}

func TestStageErrorFormat(t *testing.T) {
	err := newStageError("x", StageUploading, ErrUploadFailed, errors.New("boom"))
	assert.Equal(t, "upload failed (stage: Uploading file): boom", err.Error())
	assert.Equal(t, "Error: upload failed (stage: Uploading file): boom", StatusMessage(err))
	assert.Equal(t, "", StatusMessage(nil))

	wrapped := newStageError("x", StageImage, ErrUploadFailed, storage.ErrInvalidPath)
	assert.ErrorIs(t, wrapped, ErrUploadFailed)
	assert.ErrorIs(t, wrapped, storage.ErrInvalidPath)
	assert.NotErrorIs(t, wrapped, ErrConversionFailed)
}

func TestKVStatusBoard(t *testing.T) {
	kv := storage.NewMemoryKV()
	board := NewKVStatusBoard(kv)

	_, err := board.Get(context.Background(), "nope")
	assert.True(t, IsNotFound(err))

	board.Report(context.Background(), "u1", Status{ID: "u1", Stage: StageParsing, Message: "Parsing response", State: StateRunning})
	st, err := board.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, StageParsing, st.Stage)
	assert.Equal(t, StateRunning, st.State)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) { return "", storage.ErrNotFound }
func (failingKV) Set(context.Context, string, string) error   { return errors.New("kv down") }
func (failingKV) List(context.Context, string, bool) ([]storage.KVItem, error) {
	return nil, nil
}
func (failingKV) Close() error { return nil }
