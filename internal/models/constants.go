package models

const (
	MarkerRegex      = `(?m)^---[ \t]+(.+?)[ \t]+---[ \t\r]*$`
	ThinkTag         = `(?s)<think>.*?</think>`
	CodeFenceRegex   = "(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$"
	URLRegex         = `https?://[^\s\)\]）」]+`
	TruncationMarker = "…"
	ContextSeparator = "\n\n"

	// FallbackAnswer is sent when final synthesis fails outright.
	FallbackAnswer = "- The internal and external material gathered so far is not enough to answer with confidence.\n" +
		"- Please add details such as the tool, the time period or the team involved."
)

var (
	KeywordPromptTemplate = `Extract the %d most important keywords for searching internal documents from the question below.
Choose concrete nouns and technical terms that are good search terms.

Question: "%s"

Answer with JSON only, for example {"keywords": ["keyword 1", "keyword 2"]}`

	QueryPromptTemplate = `You are an advanced research assistant. Based on the user's question, generate specific and diverse web search queries.
Today's date is %s.

Question: "%s"

Answer with JSON only: an object whose "query" key holds a list of %d search queries and whose "rationale" key briefly explains them.
Example: {"query": ["query 1", "query 2"], "rationale": "..."}`

	ReflectionPromptTemplate = `You evaluate research results. Read the user's question and the summary of the information gathered so far, then decide whether it is sufficient to answer.

Question: "%s"

Gathered information:
---
%s
---

Answer with JSON only using the keys "is_sufficient" (boolean), "knowledge_gap" (string) and "follow_up_queries" (string array).
When the information is sufficient, leave knowledge_gap and follow_up_queries empty.`

	RerankPromptTemplate = `Score each excerpt below from 0 to 1 for relevance to the question and return the best 3.
Answer with JSON only: {"ranking":[{"idx": number, "score": number}, ...]}. Use the numbers given to the excerpts.

Question:
%s

Candidates:
%s`

	SummaryPromptTemplate = `Summarise the content below in %s in at most %d characters. Keep strictly to the limit.
- Key points only, as bullets (at most 5)
- Facts only. No speculation or generalities
- No preamble, closing remarks or disclaimers
%s
---
%s`

	FinalSystemPrompt = `You are a capable assistant.
Using only the two materials below (an internal summary and an external summary), merge overlapping points and write the final answer in %s within %d characters.
- No headings; mostly bullet points
- Internal information first, then external information
- If there are supporting URLs, append only 1 or 2 at the end as (Reference: ...)
- No speculation; do not add information that is not in the materials`

	FinalUserTemplate = `# Question
%s

# Internal summary
%s

# External summary
%s`

	WebResearchPromptTemplate = `Search the web for up-to-date, reliable information about "%s" and summarise the key points.`

	URLContextPromptTemplate = `Read the primary sources listed below directly and summarise only current, reliable content about the topic. Include the supporting URLs.

Topic: %s

Sources:
%s`

	AnalysisPromptTemplate = `# Instructions
You staff the generative AI help desk. Analyse the question below and do the following.

1. Tool/service: choose the single closest entry from this list.
%s

2. Inquiry type: choose the single closest entry from this list.
%s

3. Summary: summarise the question in about 100 characters so its purpose is clear. It may be published as an FAQ, so leave out personal names and department names.

4. Confidence: a number from 0 to 1 for how confidently the question can be answered automatically without human review.

# Output
Return a JSON object that matches the requested schema.

---
# Question:
%s
---`
)
