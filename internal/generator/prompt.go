package generator

import "strings"

// SystemMessage is sent ahead of every prompt.
const SystemMessage = "You are a helpful assistant for answering document-related questions."

const promptTemplate = `You are a helpful assistant. Use the provided context to answer the question precisely.

Context:
%CONTEXT%

Question:
%QUESTION%

Answer:`

// BuildContext joins retrieved chunk texts with blank lines.
func BuildContext(chunks []string) string {
	return strings.Join(chunks, "\n\n")
}

// BuildPrompt renders the user message for question and context.
func BuildPrompt(question, context string) string {
	r := strings.NewReplacer("%CONTEXT%", context, "%QUESTION%", question)
	return r.Replace(promptTemplate)
}
