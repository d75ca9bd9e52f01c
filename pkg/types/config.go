package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that call remote APIs.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries on HTTP 429/503 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// AthenaConfig holds settings for the query runner.
type AthenaConfig struct {
	// Region is the AWS region for Athena and S3 (default us-east-1).
	Region string `json:"region" yaml:"region" mapstructure:"region"`

	// Database is the Athena database queries run against (default "datalake").
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	// WorkGroup is an optional Athena workgroup.
	WorkGroup string `json:"workgroup,omitempty" yaml:"workgroup,omitempty" mapstructure:"workgroup"`

	// ResultsBucket receives query output and temporary CTAS tables.
	ResultsBucket string `json:"results_bucket" yaml:"results_bucket" mapstructure:"results_bucket"`

	// TempPrefix is the key prefix for temporary CTAS output (default "python/temporales/").
	TempPrefix string `json:"temp_prefix" yaml:"temp_prefix" mapstructure:"temp_prefix"`

	// DirectPrefix is the key prefix for direct query output (default "temp/").
	DirectPrefix string `json:"direct_prefix" yaml:"direct_prefix" mapstructure:"direct_prefix"`

	// CTASPollInterval is the status poll interval for CTAS queries (default 2s).
	CTASPollInterval time.Duration `json:"ctas_poll_interval" yaml:"ctas_poll_interval" mapstructure:"ctas_poll_interval"`

	// DirectPollInterval is the status poll interval for direct queries and DDL (default 1s).
	DirectPollInterval time.Duration `json:"direct_poll_interval" yaml:"direct_poll_interval" mapstructure:"direct_poll_interval"`

	// AutoThresholdBytes is the scanned-bytes boundary between the direct and
	// CTAS paths in auto mode (default 1 MiB).
	AutoThresholdBytes int64 `json:"auto_threshold_bytes" yaml:"auto_threshold_bytes" mapstructure:"auto_threshold_bytes"`

	// ExportBucket receives JSON-lines exports (default "raw-data-lake-virginia").
	ExportBucket string `json:"export_bucket" yaml:"export_bucket" mapstructure:"export_bucket"`

	// ExportPrefix is the folder inside ExportBucket (default "python/category_analysis").
	ExportPrefix string `json:"export_prefix" yaml:"export_prefix" mapstructure:"export_prefix"`
}

// Defaults fills zero fields with the standard values.
func (c AthenaConfig) Defaults() AthenaConfig {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Database == "" {
		c.Database = "datalake"
	}
	if c.ResultsBucket == "" {
		c.ResultsBucket = "data-lake-athena-querys"
	}
	if c.TempPrefix == "" {
		c.TempPrefix = "python/temporales/"
	}
	if c.DirectPrefix == "" {
		c.DirectPrefix = "temp/"
	}
	if c.CTASPollInterval <= 0 {
		c.CTASPollInterval = 2 * time.Second
	}
	if c.DirectPollInterval <= 0 {
		c.DirectPollInterval = time.Second
	}
	if c.AutoThresholdBytes <= 0 {
		c.AutoThresholdBytes = 1 << 20
	}
	if c.ExportBucket == "" {
		c.ExportBucket = "raw-data-lake-virginia"
	}
	if c.ExportPrefix == "" {
		c.ExportPrefix = "python/category_analysis"
	}
	return c
}

// LLMConfig holds settings for the chat-completion client.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the API root (default "https://api.openai.com/v1").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is the bearer token for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the default model identifier (default "gpt-4o-mini").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// MaxTokens is the default completion limit (default 1500).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the default sampling temperature (default 0.7). Nil
	// takes the default; an explicit 0 is kept.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
}

// Defaults fills zero fields with the standard values.
func (c LLMConfig) Defaults() LLMConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1500
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	return c
}

// ReportConfig holds settings for narrative section generation.
type ReportConfig struct {
	// Model overrides LLMConfig.Model for report prompts.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// SectionTokens is the completion limit for a section (default 1000).
	SectionTokens int `json:"section_tokens" yaml:"section_tokens" mapstructure:"section_tokens"`

	// InsightTokens is the completion limit for an insight document (default 2000).
	InsightTokens int `json:"insight_tokens" yaml:"insight_tokens" mapstructure:"insight_tokens"`

	// Language is the language the model writes in (default "Spanish").
	Language string `json:"language" yaml:"language" mapstructure:"language"`
}

// Defaults fills zero fields with the standard values.
func (c ReportConfig) Defaults() ReportConfig {
	if c.SectionTokens <= 0 {
		c.SectionTokens = 1000
	}
	if c.InsightTokens <= 0 {
		c.InsightTokens = 2000
	}
	if c.Language == "" {
		c.Language = "Spanish"
	}
	return c
}

// CategorizeConfig holds settings for batch categorization.
type CategorizeConfig struct {
	// Model overrides LLMConfig.Model for categorization prompts.
	Model string `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`

	// BatchTokens is the token budget of one batch, prompt overhead included (default 3000).
	BatchTokens int `json:"batch_tokens" yaml:"batch_tokens" mapstructure:"batch_tokens"`

	// Workers bounds the number of batches in flight (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// MaxRetries is the number of retries for a failed batch. Zero disables
	// retries; the CLI flag defaults to 2.
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxTokens is the completion limit per batch (default 2000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Fallback is the category assigned when the model answers outside the
	// allowed set (default "Other").
	Fallback string `json:"fallback" yaml:"fallback" mapstructure:"fallback"`

	// TokenMethod selects the token counter: "tiktoken" or "simple" (default "tiktoken").
	TokenMethod string `json:"token_method" yaml:"token_method" mapstructure:"token_method"`
}

// Defaults fills zero fields with the standard values.
func (c CategorizeConfig) Defaults() CategorizeConfig {
	if c.BatchTokens <= 0 {
		c.BatchTokens = 3000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2000
	}
	if c.Fallback == "" {
		c.Fallback = "Other"
	}
	if c.TokenMethod == "" {
		c.TokenMethod = "tiktoken"
	}
	return c
}

// UsageConfig holds settings for usage persistence.
type UsageConfig struct {
	// Dir is the directory holding usage.db and exports (default "output/usage").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// CSVFile is the CSV file the token log is appended to (default "registro_tokens.csv").
	CSVFile string `json:"csv_file" yaml:"csv_file" mapstructure:"csv_file"`
}

// Defaults fills zero fields with the standard values.
func (c UsageConfig) Defaults() UsageConfig {
	if c.Dir == "" {
		c.Dir = "output/usage"
	}
	if c.CSVFile == "" {
		c.CSVFile = "registro_tokens.csv"
	}
	return c
}

// DocumentConfig holds page and typography settings for generated documents.
// Lengths are in inches, font sizes and spacing in points, colours in hex RGB.
type DocumentConfig struct {
	PageWidth     float64 `json:"page_width" yaml:"page_width" mapstructure:"page_width"`
	PageHeight    float64 `json:"page_height" yaml:"page_height" mapstructure:"page_height"`
	Margin        float64 `json:"margin" yaml:"margin" mapstructure:"margin"`
	HeadingFont   string  `json:"heading_font" yaml:"heading_font" mapstructure:"heading_font"`
	BodyFont      string  `json:"body_font" yaml:"body_font" mapstructure:"body_font"`
	BodySize      float64 `json:"body_size" yaml:"body_size" mapstructure:"body_size"`
	TitleColor    string  `json:"title_color" yaml:"title_color" mapstructure:"title_color"`
	SubtitleColor string  `json:"subtitle_color" yaml:"subtitle_color" mapstructure:"subtitle_color"`
	TableWidth    float64 `json:"table_width" yaml:"table_width" mapstructure:"table_width"`
	HeaderSize    float64 `json:"header_size" yaml:"header_size" mapstructure:"header_size"`
	CellSize      float64 `json:"cell_size" yaml:"cell_size" mapstructure:"cell_size"`
	BulletIndent  float64 `json:"bullet_indent" yaml:"bullet_indent" mapstructure:"bullet_indent"`
	Spacing       float64 `json:"spacing" yaml:"spacing" mapstructure:"spacing"`
	FigureWidth   float64 `json:"figure_width" yaml:"figure_width" mapstructure:"figure_width"`
	CaptionSize   float64 `json:"caption_size" yaml:"caption_size" mapstructure:"caption_size"`

	// TOCTitle is the heading above the table of contents (default "Índice").
	TOCTitle string `json:"toc_title" yaml:"toc_title" mapstructure:"toc_title"`

	// NoticeText asks the reader to refresh fields when the document opens.
	NoticeText string `json:"notice_text" yaml:"notice_text" mapstructure:"notice_text"`
}

// Defaults fills zero fields with the standard values: A4 page, 1in
// margins, Lora headings over Segoe UI Light body text.
func (c DocumentConfig) Defaults() DocumentConfig {
	setF := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}
	setS := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	setF(&c.PageWidth, 8.27)
	setF(&c.PageHeight, 11.69)
	setF(&c.Margin, 1)
	setS(&c.HeadingFont, "Lora")
	setS(&c.BodyFont, "Segoe UI Light")
	setF(&c.BodySize, 8)
	setS(&c.TitleColor, "2E3F5F")
	setS(&c.SubtitleColor, "4F4F4F")
	setF(&c.TableWidth, 6)
	setF(&c.HeaderSize, 6.5)
	setF(&c.CellSize, 7)
	setF(&c.BulletIndent, 12)
	setF(&c.Spacing, 4)
	setF(&c.FigureWidth, 5.5)
	setF(&c.CaptionSize, 6)
	setS(&c.TOCTitle, "Índice")
	setS(&c.NoticeText, "⚠️ Al abrir este documento, recuerde actualizar los campos (índice, referencias cruzadas, etc.).")
	return c
}

// Config groups all component configurations.
type Config struct {
	Athena     AthenaConfig     `json:"athena" yaml:"athena" mapstructure:"athena"`
	LLM        LLMConfig        `json:"llm" yaml:"llm" mapstructure:"llm"`
	Report     ReportConfig     `json:"report" yaml:"report" mapstructure:"report"`
	Categorize CategorizeConfig `json:"categorize" yaml:"categorize" mapstructure:"categorize"`
	Usage      UsageConfig      `json:"usage" yaml:"usage" mapstructure:"usage"`
	Document   DocumentConfig   `json:"document" yaml:"document" mapstructure:"document"`
}

// Defaults applies the per-component defaults.
func (c Config) Defaults() Config {
	c.Athena = c.Athena.Defaults()
	c.LLM = c.LLM.Defaults()
	c.Report = c.Report.Defaults()
	c.Categorize = c.Categorize.Defaults()
	c.Usage = c.Usage.Defaults()
	c.Document = c.Document.Defaults()
	return c
}
