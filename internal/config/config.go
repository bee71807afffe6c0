package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	Search    SearchConfig    `yaml:"search"`
	Research  ResearchConfig  `yaml:"research"`
	RAG       RAGConfig       `yaml:"rag"`
	CaseIndex CaseIndexConfig `yaml:"case_index"`
	Database  DatabaseConfig  `yaml:"database"`
	Routing   RoutingConfig   `yaml:"routing"`
	Audit     AuditConfig     `yaml:"audit"`
}

// LLMConfig describes one model endpoint. Provider is one of openai, ollama or gemini.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	Key               string        `yaml:"key"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// SearchConfig selects the web search backend. Provider is gemini or brave.
type SearchConfig struct {
	Provider          string        `yaml:"provider"`
	Key               string        `yaml:"key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Count             int           `yaml:"count"`
	Country           string        `yaml:"country"`
	Language          string        `yaml:"language"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type ResearchConfig struct {
	InitialQueryCount int      `yaml:"initial_search_query_count"`
	MaxResearchLoops  int      `yaml:"max_research_loops"`
	MaxTotalQueries   int      `yaml:"max_total_queries"`
	MaxFollowUps      int      `yaml:"max_follow_ups"`
	PenalizedDomains  int      `yaml:"penalized_domains"`
	AllowedURLs       []string `yaml:"allowed_urls"`
	Language          string   `yaml:"language"`
}

// SheetScope restricts extraction of a workbook to one named sheet.
type SheetScope struct {
	Workbook string `yaml:"workbook"`
	Sheet    string `yaml:"sheet"`
}

type RAGConfig struct {
	Documents      []string     `yaml:"documents"`
	SheetScopes    []SheetScope `yaml:"sheet_scopes"`
	CandidateLimit int          `yaml:"candidate_limit"`
	RerankInputMax int          `yaml:"rerank_input_max"`
	K1             float64      `yaml:"k1"`
	B              float64      `yaml:"b"`
	SummaryChars   int          `yaml:"summary_chars"`
	FinalChars     int          `yaml:"final_chars"`
}

// CaseIndexConfig locates the past-case index file and the workbook it is
// rebuilt from.
type CaseIndexConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	SourceFile    string `yaml:"source_file"`
	SourceSheet   string `yaml:"source_sheet"`
	Collection    string `yaml:"collection"`
	EncryptionKey string `yaml:"encryption_key"`
	Compress      bool   `yaml:"compress"`
	TopK          int    `yaml:"top_k"`
	BaseURL       string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type RoutingConfig struct {
	AutoAnswerThreshold float64  `yaml:"auto_answer_threshold"`
	NGCategories        []string `yaml:"ng_categories"`
	ToolServices        []string `yaml:"tool_services"`
	InquiryTypes        []string `yaml:"inquiry_types"`
}

type AuditConfig struct {
	Dir string `yaml:"dir"`
}

const (
	defaultTimeout           = 60 * time.Second
	defaultInitialQueries    = 3
	defaultMaxResearchLoops  = 2
	defaultMaxTotalQueries   = 10
	defaultMaxFollowUps      = 3
	defaultPenalizedDomains  = 2
	defaultCandidateLimit    = 20
	defaultRerankInputMax    = 800
	defaultK1                = 1.5
	defaultB                 = 0.75
	defaultSummaryChars      = 300
	defaultFinalChars        = 600
	defaultCaseTopK          = 5
	defaultCaseCollection    = "past_cases"
	defaultCasePath          = "./chromemdb/past_cases_index.gob"
	defaultAutoThreshold     = 0.7
	defaultSearchCount       = 5
	defaultRequestsPerSecond = 2
	defaultBurst             = 4
)

var (
	defaultNGCategories = []string{"rules-security", "confidential", "personal-data"}
	defaultToolServices = []string{"Gemini", "NotebookLM", "Google Workspace", "Mobile", "Internal systems", "Tool selection", "General/Other"}
	defaultInquiryTypes = []string{"usage-basics", "prompting", "features-specs", "errors-bugs", "use-case-ideas", "rules-security", "other"}
)

// LoadConfig reads a yaml file, expands ${VAR} references from the environment
// and fills defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no documents,
// index or database configured.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	c.LLM.applyDefaults()
	c.EmbedLLM.applyDefaults()

	s := &c.Search
	if s.Provider == "" {
		s.Provider = "gemini"
	}
	if s.Count <= 0 {
		s.Count = defaultSearchCount
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = defaultRequestsPerSecond
	}
	if s.Burst <= 0 {
		s.Burst = defaultBurst
	}

	r := &c.Research
	if r.InitialQueryCount <= 0 {
		r.InitialQueryCount = defaultInitialQueries
	}
	if r.MaxResearchLoops <= 0 {
		r.MaxResearchLoops = defaultMaxResearchLoops
	}
	if r.MaxTotalQueries <= 0 {
		r.MaxTotalQueries = defaultMaxTotalQueries
	}
	if r.MaxFollowUps <= 0 {
		r.MaxFollowUps = defaultMaxFollowUps
	}
	if r.PenalizedDomains < 0 {
		r.PenalizedDomains = 0
	} else if r.PenalizedDomains == 0 {
		r.PenalizedDomains = defaultPenalizedDomains
	}
	if r.Language == "" {
		r.Language = "English"
	}

	g := &c.RAG
	if g.CandidateLimit <= 0 {
		g.CandidateLimit = defaultCandidateLimit
	}
	if g.RerankInputMax <= 0 {
		g.RerankInputMax = defaultRerankInputMax
	}
	if g.K1 <= 0 {
		g.K1 = defaultK1
	}
	if g.B <= 0 {
		g.B = defaultB
	}
	if g.SummaryChars <= 0 {
		g.SummaryChars = defaultSummaryChars
	}
	if g.FinalChars <= 0 {
		g.FinalChars = defaultFinalChars
	}

	ci := &c.CaseIndex
	if ci.TopK <= 0 {
		ci.TopK = defaultCaseTopK
	}
	if ci.Collection == "" {
		ci.Collection = defaultCaseCollection
	}
	if ci.Path == "" {
		ci.Path = defaultCasePath
	}

	rt := &c.Routing
	if rt.AutoAnswerThreshold <= 0 {
		rt.AutoAnswerThreshold = defaultAutoThreshold
	}
	if rt.NGCategories == nil {
		rt.NGCategories = defaultNGCategories
	}
	if len(rt.ToolServices) == 0 {
		rt.ToolServices = defaultToolServices
	}
	if len(rt.InquiryTypes) == 0 {
		rt.InquiryTypes = defaultInquiryTypes
	}
}

func (l *LLMConfig) applyDefaults() {
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.Timeout <= 0 {
		l.Timeout = defaultTimeout
	}
	if l.RequestsPerSecond <= 0 {
		l.RequestsPerSecond = defaultRequestsPerSecond
	}
	if l.Burst <= 0 {
		l.Burst = defaultBurst
	}
}

func (c *Config) Validate() error {
	for name, p := range map[string]string{"llm": c.LLM.Provider, "embed_llm": c.EmbedLLM.Provider} {
		switch strings.ToLower(p) {
		case "openai", "ollama", "gemini":
		default:
			return fmt.Errorf("%s.provider: unsupported provider %q", name, p)
		}
	}
	switch strings.ToLower(c.Search.Provider) {
	case "gemini", "brave":
	default:
		return fmt.Errorf("search.provider: unsupported provider %q", c.Search.Provider)
	}
	if c.Research.InitialQueryCount > c.Research.MaxTotalQueries {
		return fmt.Errorf("research.initial_search_query_count (%d) exceeds max_total_queries (%d)",
			c.Research.InitialQueryCount, c.Research.MaxTotalQueries)
	}
	if c.RAG.SummaryChars > c.RAG.FinalChars {
		return fmt.Errorf("rag.summary_chars (%d) exceeds final_chars (%d)", c.RAG.SummaryChars, c.RAG.FinalChars)
	}
	if k := c.CaseIndex.EncryptionKey; k != "" && len(k) != 32 {
		return fmt.Errorf("case_index.encryption_key must be 32 bytes, got %d", len(k))
	}
	return nil
}

// ScopeFor returns the sheet a workbook is restricted to, if any.
func (g *RAGConfig) ScopeFor(workbook string) (string, bool) {
	for _, s := range g.SheetScopes {
		if s.Workbook == workbook {
			return s.Sheet, true
		}
	}
	return "", false
}
