package models

// Enumerated option sets for TrainingConfiguration and inference requests.
var (
	ComputeDtypes       = []string{"bfloat16", "float16", "float32"}
	AttnImplementations = []string{"eager", "flash_attention_2"}
	SchedulerTypes      = []string{"constant", "cosine", "linear"}
	Optimizers          = []string{"adamw_torch_fused", "adamw_torch", "paged_adamw_8bit", "adafactor", "sgd"}
)

// TrainingConfiguration is the body of POST /start_training_test.
type TrainingConfiguration struct {
	ModelID                   string   `json:"model_id"`
	SystemMessage             string   `json:"system_message"`
	LoadIn4Bit                bool     `json:"load_in_4bit"`
	ComputeDtype              string   `json:"bnb_4bit_compute_dtype"`
	AttnImplementation        string   `json:"attn_implementation"`
	LoraAlpha                 int      `json:"lora_alpha"`
	LoraDropout               float64  `json:"lora_dropout"`
	LoraR                     int      `json:"lora_r"`
	LoraTargetModules         string   `json:"lora_target_modules"`
	PerDeviceTrainBatchSize   int      `json:"per_device_train_batch_size"`
	GradientAccumulationSteps int      `json:"gradient_accumulation_steps"`
	NumTrainEpochs            int      `json:"num_train_epochs"`
	LearningRate              float64  `json:"learning_rate"`
	LRSchedulerType           string   `json:"lr_scheduler_type"`
	Optimizer                 string   `json:"optim"`
	TaskKind                  TaskKind `json:"file_type"`
}

// InferenceRequest is the body of POST /run_inference.
type InferenceRequest struct {
	ModelID      string `json:"model_id"`
	Question     string `json:"question"`
	SchemaInfo   string `json:"schema_info"`
	ComputeDtype string `json:"bnb_4bit_compute_dtype"`
}

// Contains reports whether v is one of opts.
func Contains(opts []string, v string) bool {
	for _, o := range opts {
		if o == v {
			return true
		}
	}
	return false
}
