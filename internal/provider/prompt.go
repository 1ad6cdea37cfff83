package provider

import "strings"

const defaultInstruction = `Extract every distinct guideline rule from the text below.
Return a JSON array of objects with the string keys "major_section", "subsection" and "summary".
Keep the order in which rules appear in the text. Return only JSON.`

const correction = `Your previous answer could not be used: it was not a JSON array of objects with the keys "major_section", "subsection" and "summary", or it was cut off.
Answer again with only that JSON array and nothing else.`

// BuildPrompt joins the user instruction with the chunk text.
func BuildPrompt(instruction, content string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = defaultInstruction
	}
	return instruction + "\n\n### TEXT TO PROCESS\n" + content
}

// CorrectivePrompt is the follow-up sent after an InvalidResponse.
func CorrectivePrompt(prompt string) string {
	return prompt + "\n\n### CORRECTION\n" + correction
}
