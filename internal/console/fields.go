package console

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/zulandar/modelyard/internal/models"
)

// FieldKind is the input type of a configuration field.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldBool
	FieldInt
	FieldFloat
	FieldChoice
)

// Fallbacks applied when numeric input is empty or invalid.
const (
	IntFallback   = 1
	FloatFallback = 0.0
)

// Field names of a TrainingConfiguration.
const (
	FieldModelID            = "model_id"
	FieldSystemMessage      = "system_message"
	FieldLoadIn4Bit         = "load_in_4bit"
	FieldComputeDtype       = "bnb_4bit_compute_dtype"
	FieldAttnImplementation = "attn_implementation"
	FieldLoraR              = "lora_r"
	FieldLoraAlpha          = "lora_alpha"
	FieldLoraDropout        = "lora_dropout"
	FieldLoraTargetModules  = "lora_target_modules"
	FieldBatchSize          = "per_device_train_batch_size"
	FieldGradAccumulation   = "gradient_accumulation_steps"
	FieldEpochs             = "num_train_epochs"
	FieldLearningRate       = "learning_rate"
	FieldScheduler          = "lr_scheduler_type"
	FieldOptimizer          = "optim"
)

// FieldSpec describes one editable field.
type FieldSpec struct {
	Name    string
	Label   string
	Kind    FieldKind
	Default any
	Min     float64
	Max     float64 // ignored unless HasMax
	HasMax  bool
	Choices []string
}

// DefaultModelID is the base model a new session proposes.
const DefaultModelID = "TinyLlama/TinyLlama-1.1B-Chat-v1.0"

// FieldSpecs returns the configuration schema for kind.
func FieldSpecs(kind models.TaskKind) []FieldSpec {
	specs := []FieldSpec{
		{Name: FieldModelID, Label: "Base model", Kind: FieldText, Default: DefaultModelID},
		{Name: FieldSystemMessage, Label: "System message", Kind: FieldText, Default: kind.DefaultSystemMessage()},
		{Name: FieldLoadIn4Bit, Label: "4-bit quantization", Kind: FieldBool, Default: true},
		{Name: FieldComputeDtype, Label: "Compute dtype", Kind: FieldChoice, Default: "bfloat16", Choices: models.ComputeDtypes},
		{Name: FieldAttnImplementation, Label: "Attention", Kind: FieldChoice, Default: "eager", Choices: models.AttnImplementations},
		{Name: FieldLoraR, Label: "LoRA r", Kind: FieldInt, Default: 64, Min: 1},
		{Name: FieldLoraAlpha, Label: "LoRA alpha", Kind: FieldInt, Default: 128, Min: 1},
		{Name: FieldLoraDropout, Label: "LoRA dropout", Kind: FieldFloat, Default: 0.05, Min: 0, Max: 1, HasMax: true},
		{Name: FieldLoraTargetModules, Label: "Target modules", Kind: FieldText, Default: "all-linear"},
		{Name: FieldBatchSize, Label: "Batch size", Kind: FieldInt, Default: 1, Min: 1},
		{Name: FieldGradAccumulation, Label: "Gradient accumulation", Kind: FieldInt, Default: 4, Min: 1},
		{Name: FieldEpochs, Label: "Epochs", Kind: FieldInt, Default: 10, Min: 1},
		{Name: FieldLearningRate, Label: "Learning rate", Kind: FieldFloat, Default: 2e-4, Min: 0},
		{Name: FieldScheduler, Label: "LR scheduler", Kind: FieldChoice, Default: "constant", Choices: models.SchedulerTypes},
		{Name: FieldOptimizer, Label: "Optimizer", Kind: FieldChoice, Default: "adamw_torch_fused", Choices: models.Optimizers},
	}
	if kind == models.TaskOAQnA {
		// Q&A adapters are trained smaller and for fewer passes.
		overrides := map[string]any{
			FieldLoraR:            16,
			FieldLoraAlpha:        32,
			FieldGradAccumulation: 8,
			FieldEpochs:           3,
			FieldScheduler:        "cosine",
		}
		for i := range specs {
			if v, ok := overrides[specs[i].Name]; ok {
				specs[i].Default = v
			}
		}
	}
	return specs
}

// FieldStore holds one configuration's editable values. Set is the only
// mutation path.
type FieldStore struct {
	mu     sync.Mutex
	kind   models.TaskKind
	specs  []FieldSpec
	index  map[string]int
	values map[string]any
}

// NewFieldStore returns a store populated with kind's defaults.
func NewFieldStore(kind models.TaskKind) *FieldStore {
	specs := FieldSpecs(kind)
	fs := &FieldStore{
		kind:   kind,
		specs:  specs,
		index:  make(map[string]int, len(specs)),
		values: make(map[string]any, len(specs)),
	}
	for i, s := range specs {
		fs.index[s.Name] = i
		fs.values[s.Name] = s.Default
	}
	return fs
}

// Kind returns the task kind the store was created for.
func (fs *FieldStore) Kind() models.TaskKind { return fs.kind }

// Specs returns the field schema in display order.
func (fs *FieldStore) Specs() []FieldSpec {
	out := make([]FieldSpec, len(fs.specs))
	copy(out, fs.specs)
	return out
}

// Spec looks up a field by name.
func (fs *FieldStore) Spec(name string) (FieldSpec, bool) {
	i, ok := fs.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return fs.specs[i], true
}

// Set coerces raw into the field's type and stores it. Numeric fields never
// fail: invalid or empty input becomes the documented fallback, then the
// value is clamped to the field's range. Booleans and choices reject values
// they cannot represent and keep their previous value.
func (fs *FieldStore) Set(name, raw string) error {
	spec, ok := fs.Spec(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	v, err := coerce(spec, raw)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	fs.values[name] = v
	fs.mu.Unlock()
	return nil
}

// Get returns the typed value of a field.
func (fs *FieldStore) Get(name string) (any, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.values[name]
	return v, ok
}

// Format renders a field's value the way an input box shows it.
func (fs *FieldStore) Format(name string) string {
	v, ok := fs.Get(name)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// Snapshot assembles the current values into a training request.
func (fs *FieldStore) Snapshot() models.TrainingConfiguration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return models.TrainingConfiguration{
		ModelID:                   fs.values[FieldModelID].(string),
		SystemMessage:             fs.values[FieldSystemMessage].(string),
		LoadIn4Bit:                fs.values[FieldLoadIn4Bit].(bool),
		ComputeDtype:              fs.values[FieldComputeDtype].(string),
		AttnImplementation:        fs.values[FieldAttnImplementation].(string),
		LoraAlpha:                 fs.values[FieldLoraAlpha].(int),
		LoraDropout:               fs.values[FieldLoraDropout].(float64),
		LoraR:                     fs.values[FieldLoraR].(int),
		LoraTargetModules:         fs.values[FieldLoraTargetModules].(string),
		PerDeviceTrainBatchSize:   fs.values[FieldBatchSize].(int),
		GradientAccumulationSteps: fs.values[FieldGradAccumulation].(int),
		NumTrainEpochs:            fs.values[FieldEpochs].(int),
		LearningRate:              fs.values[FieldLearningRate].(float64),
		LRSchedulerType:           fs.values[FieldScheduler].(string),
		Optimizer:                 fs.values[FieldOptimizer].(string),
		TaskKind:                  fs.kind,
	}
}

func coerce(spec FieldSpec, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch spec.Kind {
	case FieldInt:
		return clampInt(parseIntInput(s), spec), nil
	case FieldFloat:
		return clampFloat(parseFloatInput(s), spec), nil
	case FieldBool:
		switch strings.ToLower(s) {
		case "1", "t", "true", "y", "yes", "on":
			return true, nil
		case "0", "f", "false", "n", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("%s: %q is not a boolean", spec.Name, raw)
	case FieldChoice:
		if models.Contains(spec.Choices, s) {
			return s, nil
		}
		return nil, fmt.Errorf("%s: %q is not one of %s", spec.Name, raw, strings.Join(spec.Choices, ", "))
	default:
		return raw, nil
	}
}

// parseIntInput accepts integers and truncates decimals. Zero counts as
// missing input, like an emptied number box. Values beyond the int range
// saturate at its bounds.
func parseIntInput(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		if n == 0 {
			return IntFallback
		}
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(f) {
		return IntFallback
	}
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	case int(f) == 0:
		return IntFallback
	}
	return int(f)
}

func parseFloatInput(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return FloatFallback
	}
	return f
}

func clampInt(v int, spec FieldSpec) int {
	if float64(v) < spec.Min {
		v = int(spec.Min)
	}
	if spec.HasMax && float64(v) > spec.Max {
		v = int(spec.Max)
	}
	return v
}

func clampFloat(v float64, spec FieldSpec) float64 {
	if v < spec.Min {
		v = spec.Min
	}
	if spec.HasMax && v > spec.Max {
		v = spec.Max
	}
	return v
}
