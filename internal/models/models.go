package models

import (
	"fmt"
	"strings"
	"time"
)

// Medium is the kind of internal source a document was extracted from.
type Medium string

const (
	MediumSlideDeck Medium = "slide-deck"
	MediumTabular   Medium = "tabular"
	MediumProse     Medium = "prose"
)

// Document is one fetched internal source, annotated with section markers.
type Document struct {
	Ref    string
	Medium Medium
	Text   string
}

// Chunk is one labeled section of a document.
type Chunk struct {
	Label string
	Body  string
	Index int
}

// Text renders the chunk with its marker line so provenance survives
// ranking, re-ranking and summarisation.
func (c Chunk) Text() string {
	return SectionMarker(c.Label) + "\n" + c.Body
}

// SectionMarker renders a marker line understood by the chunker.
func SectionMarker(label string) string {
	return fmt.Sprintf("--- %s ---", label)
}

type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ResultKind tags the two shapes a web search may return.
type ResultKind int

const (
	ResultPlain ResultKind = iota
	ResultCited
)

// SearchResult is the payload of one web search call. Plain results carry
// text only; cited results also carry source citations.
type SearchResult struct {
	Kind      ResultKind
	Text      string
	Citations []Citation
}

func PlainResult(text string) SearchResult {
	return SearchResult{Kind: ResultPlain, Text: text}
}

func CitedResult(text string, citations []Citation) SearchResult {
	return SearchResult{Kind: ResultCited, Text: text, Citations: citations}
}

// Reflection is the model's verdict on the evidence gathered so far.
type Reflection struct {
	IsSufficient    bool     `json:"is_sufficient"`
	KnowledgeGap    string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// SufficientReflection is the fail-open verdict used when reflection fails.
func SufficientReflection() Reflection {
	return Reflection{IsSufficient: true, FollowUpQueries: []string{}}
}

type CaseHit struct {
	Row   int     `json:"row"`
	URL   string  `json:"url"`
	Score float32 `json:"score"`
}

// ResearchState accumulates everything one question's pipeline run produces.
// It is created per call and never shared.
type ResearchState struct {
	Question        string
	IssuedQueries   []string
	seenQueries     map[string]struct{}
	SeenDomains     []string
	seenDomainSet   map[string]struct{}
	WebFragments    []string
	Citations       []Citation
	LoopCount       int
	InternalTop     []ScoredChunk
	InternalSummary string
	WebSummary      string
	FinalAnswer     string
}

func NewResearchState(question string) *ResearchState {
	return &ResearchState{
		Question:      question,
		IssuedQueries: []string{},
		seenQueries:   make(map[string]struct{}),
		seenDomainSet: make(map[string]struct{}),
		WebFragments:  []string{},
		Citations:     []Citation{},
	}
}

// Seen reports whether q was already issued or rejected as a duplicate.
func (s *ResearchState) Seen(q string) bool {
	_, ok := s.seenQueries[q]
	return ok
}

// MarkSeen records q without issuing it.
func (s *ResearchState) MarkSeen(q string) {
	s.seenQueries[q] = struct{}{}
}

// Issue appends q to the issued list unless it was issued before.
func (s *ResearchState) Issue(q string) bool {
	for _, issued := range s.IssuedQueries {
		if issued == q {
			return false
		}
	}
	s.seenQueries[q] = struct{}{}
	s.IssuedQueries = append(s.IssuedQueries, q)
	return true
}

// AddDomain records a result domain, keeping first-seen order.
func (s *ResearchState) AddDomain(d string) {
	if d == "" {
		return
	}
	if _, ok := s.seenDomainSet[d]; ok {
		return
	}
	s.seenDomainSet[d] = struct{}{}
	s.SeenDomains = append(s.SeenDomains, d)
}

// Result is the bundle handed back to the intake workflow.
type Result struct {
	RunID              string        `json:"run_id"`
	Question           string        `json:"question"`
	FinalAnswer        string        `json:"final_600"`
	InternalSummary    string        `json:"final_internal_300"`
	WebSummary         string        `json:"final_web_300"`
	IssuedQueries      []string      `json:"search_query"`
	WebFragments       []string      `json:"web_research_result"`
	Citations          []Citation    `json:"web_citations"`
	InternalProvenance []string      `json:"internal_chunk_provenance"`
	InternalRefs       []string      `json:"internal_refs"`
	WebRefs            []string      `json:"web_refs"`
	LexicalCandidates  []ScoredChunk `json:"used_internal_chunks"`
	RerankedTop        []string      `json:"reranked_internal_top3"`
	SimilarCases       []CaseHit     `json:"similar_cases,omitempty"`
	CaseAppendix       string        `json:"case_appendix,omitempty"`
	LoopCount          int           `json:"research_loop_count"`
	SynthesisFailed    bool          `json:"synthesis_failed"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
}

// ChatText is the final answer, followed by the similar-cases appendix when
// there is one, with horizontal rules removed as posted to chat.
func (r Result) ChatText() string {
	text := r.FinalAnswer
	if r.CaseAppendix != "" {
		text += "\n\n" + r.CaseAppendix
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "---", ""))
}
