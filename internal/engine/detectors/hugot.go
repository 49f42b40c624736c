package detectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloakstyle/cloak/internal/engine"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"
)

// Label maps translating each backend's labeling scheme to the canonical
// entity-type vocabulary. Labels missing from the map are dropped.
var piiranhaLabels = map[string]string{
	"EMAIL":            engine.TypeEmail,
	"TELEPHONENUM":     engine.TypePhone,
	"SOCIALNUM":        engine.TypeSSN,
	"CREDITCARDNUMBER": engine.TypeCreditCard,
	"GIVENNAME":        engine.TypePerson,
	"SURNAME":          engine.TypePerson,
	"USERNAME":         engine.TypeUsername,
	"STREET":           engine.TypeAddress,
	"BUILDINGNUM":      engine.TypeAddress,
	"CITY":             engine.TypeAddress,
	"ZIPCODE":          engine.TypeZipCode,
	"DATEOFBIRTH":      engine.TypeDOB,
	"IDCARDNUM":        engine.TypeNationalID,
	"DRIVERLICENSENUM": engine.TypeNationalID,
	"TAXNUM":           engine.TypeIDNum,
	"ACCOUNTNUM":       engine.TypeBankAcct,
}

var bertNERLabels = map[string]string{
	"PER": engine.TypePerson,
	"ORG": engine.TypeOrganization,
	"LOC": engine.TypeLocation,
}

// hugotBackend runs an ONNX token-classification model in-process via hugot.
//
// Inference is serialized with a mutex: the pipeline is a shared read-mostly
// resource whose Run is not guaranteed thread-safe.
type hugotBackend struct {
	name       string
	method     string
	confidence float64 // fixed per backend, not derived per span
	labels     map[string]string

	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
}

func newHugotBackend(name, method string, confidence float64, labels map[string]string, modelName, onnxFilePath, modelDir string) (*hugotBackend, error) {
	modelPath, err := prepareModel(modelName, onnxFilePath, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("newHugotBackend: create session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      name,
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("newHugotBackend: create pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("newHugotBackend: create pipeline: %w", err)
	}

	return &hugotBackend{
		name:       name,
		method:     method,
		confidence: confidence,
		labels:     labels,
		session:    session,
		pipeline:   pipeline,
	}, nil
}

func (b *hugotBackend) Name() string {
	return b.name
}

func (b *hugotBackend) Detect(ctx context.Context, text string) ([]engine.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	result, err := b.pipeline.RunPipeline([]string{text})
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("hugot run: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var entities []engine.Entity
	for _, span := range result.Entities[0] {
		mapped, ok := b.labels[stripBIOPrefix(span.Entity)]
		if !ok {
			continue
		}
		entities = append(entities, engine.Entity{
			Type:       mapped,
			Value:      strings.TrimSpace(span.Word),
			Start:      int(span.Start),
			End:        int(span.End),
			Confidence: b.confidence,
			Method:     b.method,
			Status:     engine.StatusAutoMasked,
		})
	}
	return entities, nil
}

func (b *hugotBackend) Close() error {
	return b.session.Destroy()
}

// stripBIOPrefix removes B-/I- tagging prefixes from NER labels.
func stripBIOPrefix(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// prepareModel downloads the model into modelDir unless already present and
// returns the local model path.
func prepareModel(modelName, onnxFilePath, modelDir string) (string, error) {
	localPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("prepareModel: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = onnxFilePath
	downloaded, err := hugot.DownloadModel(modelName, modelDir, opts)
	if err != nil {
		return "", fmt.Errorf("prepareModel: download %s: %w", modelName, err)
	}
	return downloaded, nil
}

// DefaultBackendFactories returns the standard backend chain, most capable
// first: a PII-specialized token classifier, a general NER model, and the
// always-available capitalization heuristic.
func DefaultBackendFactories(modelDir string) []BackendFactory {
	return []BackendFactory{
		{
			Name: "piiranha",
			New: func(_ *zap.Logger) (ModelBackend, error) {
				return newHugotBackend(
					"piiranha", "piiranha_pii", 0.85, piiranhaLabels,
					"iiiorg/piiranha-v1-detect-personal-information", "onnx/model.onnx", modelDir,
				)
			},
		},
		{
			Name: "bert_ner",
			New: func(_ *zap.Logger) (ModelBackend, error) {
				return newHugotBackend(
					"bert_ner", "bert_ner", 0.80, bertNERLabels,
					"KnightsAnalytics/distilbert-NER", "model.onnx", modelDir,
				)
			},
		},
		{
			Name: "capitalization_heuristic",
			New: func(_ *zap.Logger) (ModelBackend, error) {
				return newHeuristicBackend(), nil
			},
		},
	}
}
