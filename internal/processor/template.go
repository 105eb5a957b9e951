package processor

import (
	"fmt"
	"regexp"
)

// templateVarPattern matches placeholders like {variable_name} in prompt templates.
var templateVarPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]{1,64})\}`)

// ResolveTemplate replaces all {placeholder} occurrences in tmpl with values
// from the variables map. Returns an error if any placeholder has no matching variable.
func ResolveTemplate(tmpl string, variables map[string]string) (string, error) {
	var missingVar string
	result := templateVarPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := match[1 : len(match)-1]
		val, ok := variables[varName]
		if !ok {
			missingVar = varName
			return match
		}
		return val
	})
	if missingVar != "" {
		return "", fmt.Errorf("template variable %q is not defined", missingVar)
	}
	return result, nil
}

// ExtractTemplateVars returns the unique placeholder names found in a template string.
func ExtractTemplateVars(tmpl string) []string {
	matches := templateVarPattern.FindAllStringSubmatch(tmpl, -1)
	seen := map[string]bool{}
	var vars []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	return vars
}

// Prompt is the pair of templates a processor sends to the provider.
type Prompt struct {
	System string
	User   string
}

// defaultPrompts holds the built-in prompt for each variant. Catalogue
// entries may override either half.
var defaultPrompts = map[Kind]Prompt{
	KindChat: {
		System: "You are a helpful, friendly assistant. Answer clearly and concisely.",
		User:   "{input}",
	},
	KindTextGeneration: {
		System: "You are a professional writing assistant. Produce high quality, creative text " +
			"that is logically structured and easy to read.",
		User: "{input}",
	},
	KindCodeGeneration: {
		System: "You are an expert software engineer. Write correct, idiomatic code for the " +
			"requirements given. Only return code.",
		User: "{input}",
	},
	KindDocumentSummary: {
		System: "You summarize documents accurately, keeping the key points and omitting filler.",
		User:   "Summarize the following document:\n\n{input}",
	},
	KindMovieClip: {
		System: "You are a film editor who plans short video clips. Respond with a shot-by-shot " +
			"plan including timing for each shot.",
		User: "Plan a video clip.\nDescription: {description}\nClip type: {clip_type}\n" +
			"Style: {style}\nTarget length: {target_length} seconds",
	},
}

// templateVars lists the placeholders each variant can fill.
func templateVars(k Kind) map[string]bool {
	vars := map[string]bool{"input": true}
	if k == KindMovieClip {
		for _, v := range []string{"description", "clip_type", "style", "target_length"} {
			vars[v] = true
		}
	}
	return vars
}

// checkTemplate reports placeholders in tmpl that k cannot fill.
func checkTemplate(k Kind, tmpl string) error {
	allowed := templateVars(k)
	for _, v := range ExtractTemplateVars(tmpl) {
		if !allowed[v] {
			return fmt.Errorf("template variable %q is not supported by %s", v, k)
		}
	}
	return nil
}
