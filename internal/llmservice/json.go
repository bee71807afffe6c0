package llmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"support-rag/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

var (
	thinkRe     = regexp.MustCompile(models.ThinkTag)
	codeFenceRe = regexp.MustCompile(models.CodeFenceRegex)
)

func stripThinking(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// ExtractJSON pulls the first JSON object out of model output, tolerating
// code fences and chatter around it.
func ExtractJSON(raw string) string {
	s := stripThinking(raw)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// GenerateJSON requests a JSON object, validates it against req.Schema when
// one is set, and decodes it into out. Unusable output wraps ErrMalformed.
func GenerateJSON(ctx context.Context, gen Generator, req Request, out any) error {
	req.Format = FormatJSON
	raw, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(raw, req.Schema, out)
}

// DecodeJSON is the parsing half of GenerateJSON.
func DecodeJSON(raw string, schema map[string]any, out any) error {
	body := ExtractJSON(raw)
	if body == "" {
		return fmt.Errorf("%w: empty output", ErrMalformed)
	}
	if schema != nil {
		result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewStringLoader(body))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if !result.Valid() {
			var details []string
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			return fmt.Errorf("%w: schema validation failed: %s", ErrMalformed, strings.Join(details, "; "))
		}
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
