package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ayusman/mudra/internal/sequence"
)

// ONNXConfig configures an ONNX Runtime classifier.
type ONNXConfig struct {
	ModelPath string
	// SharedLibraryPath points at libonnxruntime; empty uses the platform default.
	SharedLibraryPath string
	// InputName and OutputName default to the model's first input and output.
	InputName  string
	OutputName string
}

// ONNXClassifier evaluates a sequence classifier exported to ONNX with input
// shape (1, max_seq_len, frame_dim) and output shape (1, labels).
type ONNXClassifier struct {
	mu           sync.Mutex
	env          *environment
	meta         Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewONNXClassifier loads the model and checks its output width against the
// metadata label order before any inference runs.
func NewONNXClassifier(cfg ONNXConfig, meta Metadata) (*ONNXClassifier, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	if err := onnxEnv.acquire(cfg.SharedLibraryPath); err != nil {
		return nil, err
	}
	loaded := false
	defer func() {
		if !loaded {
			onnxEnv.release()
		}
	}()

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no inputs or outputs", cfg.ModelPath)
	}
	inputName, outputName := cfg.InputName, cfg.OutputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	if outputName == "" {
		outputName = outputs[0].Name
	}

	// A fixed last output dimension must match the label order; a dynamic
	// one (-1) is checked after the first run.
	if dims := outputs[0].Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		if err := meta.CheckOutputWidth(int(dims[len(dims)-1])); err != nil {
			return nil, err
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(meta.MaxSeqLen), int64(meta.FrameDim)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(meta.LabelOrder))))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	loaded = true
	return &ONNXClassifier{
		env:          onnxEnv,
		meta:         meta,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Metadata returns the metadata the classifier was loaded with.
func (c *ONNXClassifier) Metadata() Metadata {
	return c.meta
}

// Classify runs one padded (1, L, D) batch and returns the probability vector.
func (c *ONNXClassifier) Classify(ctx context.Context, input sequence.Batch) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.N != 1 || input.L != c.meta.MaxSeqLen || input.D != c.meta.FrameDim {
		return nil, fmt.Errorf("input shape %v, want [1 %d %d]", input.Shape(), c.meta.MaxSeqLen, c.meta.FrameDim)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.inputTensor.GetData(), input.Data)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := c.outputTensor.GetData()
	if err := c.meta.CheckOutputWidth(len(out)); err != nil {
		return nil, err
	}
	probs := make([]float32, len(out))
	copy(probs, out)
	return probs, nil
}

// Close releases the session and this classifier's hold on the ONNX
// environment. The environment is destroyed with the last classifier.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	var err error
	if c.session != nil {
		err = c.session.Destroy()
		c.session = nil
	}
	if c.env != nil {
		if derr := c.env.release(); err == nil {
			err = derr
		}
		c.env = nil
	}
	return err
}

// environment reference-counts the process-wide ONNX Runtime environment.
// It only destroys an environment it initialized itself.
type environment struct {
	mu    sync.Mutex
	refs  int
	owned bool

	initialized func() bool
	initialize  func(libPath string) error
	destroy     func() error
}

var onnxEnv = &environment{
	initialized: ort.IsInitialized,
	initialize: func(libPath string) error {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		return ort.InitializeEnvironment()
	},
	destroy: ort.DestroyEnvironment,
}

func (e *environment) acquire(libPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 && !e.initialized() {
		if err := e.initialize(libPath); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		e.owned = true
	}
	e.refs++
	return nil
}

func (e *environment) release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refs == 0 {
		return nil
	}
	e.refs--
	if e.refs > 0 || !e.owned {
		return nil
	}
	e.owned = false
	return e.destroy()
}
