// Package ml
package ml

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/amirphl/ml-trader/internal/market"
	"github.com/amirphl/ml-trader/internal/utils"
)

// ErrModelUnavailable is returned when no trained model is loaded. The signal
// generator degrades to technical-only analysis in that case.
var ErrModelUnavailable = errors.New("classifier model not loaded")

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Direction  market.Side `json:"direction"`
	Confidence float64     `json:"confidence"` // probability of the predicted class
	Timestamp  time.Time   `json:"timestamp"`
}

// Classifier produces a direction/confidence prediction from a feature vector.
// Training happens offline; implementations only load and serve a model.
type Classifier interface {
	Predict(features []float64) (Prediction, error)
	IsLoaded() bool
}

// DefaultFeatureColumns is the feature layout models are trained against.
func DefaultFeatureColumns() []string {
	return []string{"ema_9", "ema_21", "ema_200", "rsi", "atr", "volume_ratio", "volume_avg"}
}

// Features builds a feature vector from an indicator map in column order,
// substituting 0.0 for missing columns.
func Features(columns []string, indicators map[string]float64) []float64 {
	features := make([]float64, len(columns))
	for i, col := range columns {
		if v, ok := indicators[col]; ok {
			features[i] = v
		}
	}
	return features
}

var ortOnce sync.Once

// initORT points onnxruntime at the shared library and initializes the
// environment once per process.
func initORT() error {
	var err error
	ortOnce.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		if runtime.GOOS == "windows" {
			libPath = "onnxruntime.dll"
		} else if runtime.GOOS == "darwin" {
			libPath = "libonnxruntime.dylib"
		}
		ort.SetSharedLibraryPath(libPath)
		err = ort.InitializeEnvironment()
	})
	return err
}

// ONNXClassifier serves a binary direction model exported to ONNX. The model
// takes one feature vector and outputs two class logits (sell, buy).
type ONNXClassifier struct {
	mu      sync.Mutex // session.Run and tensor buffers are not goroutine safe
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	columns []string
	loaded  bool
}

// NewONNXClassifier loads the model at modelPath. A missing or unloadable model
// is not fatal: the returned classifier reports IsLoaded() == false and every
// Predict fails with ErrModelUnavailable.
func NewONNXClassifier(modelPath string, columns []string) *ONNXClassifier {
	if len(columns) == 0 {
		columns = DefaultFeatureColumns()
	}
	c := &ONNXClassifier{columns: columns}

	if modelPath == "" {
		utils.GetLogger().Info("ML | No model path configured, running without classifier")
		return c
	}
	if err := initORT(); err != nil {
		utils.GetLogger().Warnf("ML | Failed to initialize onnxruntime: %v", err)
		return c
	}

	inputShape := ort.NewShape(1, int64(len(columns)))
	inputTensor, err := ort.NewTensor(inputShape, make([]float32, len(columns)))
	if err != nil {
		utils.GetLogger().Warnf("ML | Failed to create input tensor: %v", err)
		return c
	}

	outputShape := ort.NewShape(1, 2)
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		utils.GetLogger().Warnf("ML | Failed to create output tensor: %v", err)
		return c
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		utils.GetLogger().Warnf("ML | Failed to load model %s: %v", modelPath, err)
		return c
	}

	c.session = session
	c.input = inputTensor
	c.output = outputTensor
	c.loaded = true
	utils.GetLogger().Infof("ML | Loaded model %s (%d features)", modelPath, len(columns))
	return c
}

// FeatureColumns returns the feature layout this classifier expects.
func (c *ONNXClassifier) FeatureColumns() []string { return c.columns }

// IsLoaded reports whether a model is ready to serve predictions.
func (c *ONNXClassifier) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Predict runs inference on one feature vector.
func (c *ONNXClassifier) Predict(features []float64) (Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return Prediction{}, ErrModelUnavailable
	}
	if len(features) != len(c.columns) {
		return Prediction{}, fmt.Errorf("feature vector has %d values, model expects %d", len(features), len(c.columns))
	}

	data := c.input.GetData()
	for i, v := range features {
		data[i] = float32(v)
	}
	if err := c.session.Run(); err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	out := c.output.GetData()
	probSell, probBuy := softmax2(float64(out[0]), float64(out[1]))

	pred := Prediction{Direction: market.Sell, Confidence: probSell, Timestamp: time.Now().UTC()}
	if probBuy >= probSell {
		pred.Direction = market.Buy
		pred.Confidence = probBuy
	}
	return pred, nil
}

// Close releases the onnxruntime session and tensors.
func (c *ONNXClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	if c.input != nil {
		c.input.Destroy()
		c.input = nil
	}
	if c.output != nil {
		c.output.Destroy()
		c.output = nil
	}
	c.loaded = false
}

// softmax2 maps two logits to probabilities. Models that already emit
// probabilities survive this unchanged in ordering.
func softmax2(a, b float64) (float64, float64) {
	m := math.Max(a, b)
	ea := math.Exp(a - m)
	eb := math.Exp(b - m)
	sum := ea + eb
	return ea / sum, eb / sum
}
