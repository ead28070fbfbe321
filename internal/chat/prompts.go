package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/models"
)

const (
	analyzerWindow  = 8
	responderWindow = 6
)

const analyzerInstruction = `You are a medical conversation analyzer. Determine if there is enough information to provide medical advice.
Look for specific symptoms, their duration, severity descriptions, and whether the user is asking for medical advice or analysis.
Return JSON ONLY:
{"has_sufficient_info": boolean, "missing_info": ["duration"], "extracted_symptoms": "all symptoms mentioned", "extracted_duration": "duration if mentioned", "should_offer_analysis": boolean, "confidence_score": number between 0 and 1}
Be conservative: only offer analysis when clearly appropriate.`

const responderInstruction = `You are a friendly, empathetic healthcare assistant. Hold a natural, comforting conversation about the user's health concern and gently gather symptoms, duration, severity and medications through follow-up questions. Do not sound like a questionnaire. Never give medication doses.
Return JSON ONLY:
{"response": "your conversational reply", "update_context": {"symptoms": "headache", "duration": "2 days"}}
Use an empty update_context object when nothing new was learned.`

const extractorInstruction = `Extract medical information from this conversation for a structured medical analysis. Only include information the user explicitly mentioned.
Return JSON ONLY:
{"symptoms": "all symptoms mentioned", "duration": "duration if mentioned", "medications": ["..."], "conditions": ["..."], "age": number or null, "sex": string or null}`

func transcript(history []models.ChatMessage) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func tail(history []models.ChatMessage, n int) []models.ChatMessage {
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

func buildAnalyzerPrompt(history []models.ChatMessage, message string) llm.PromptBuilder {
	conversation := transcript(tail(history, analyzerWindow))
	if conversation != "" {
		conversation += "\n"
	}
	conversation += "user: " + message
	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: analyzerInstruction},
		llm.Message{Role: llm.RoleUser, Content: conversation},
	)
}

func buildResponderPrompt(history []models.ChatMessage, sessionContext models.JSONMap, message string) llm.PromptBuilder {
	var user strings.Builder
	if len(sessionContext) > 0 {
		known, _ := json.Marshal(sessionContext)
		fmt.Fprintf(&user, "Current known context: %s\n\n", known)
	}
	fmt.Fprintf(&user, "Conversation history:\n%s\n\nUser: %s", transcript(tail(history, responderWindow)), message)
	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: responderInstruction},
		llm.Message{Role: llm.RoleUser, Content: user.String()},
	)
}

func buildExtractorPrompt(history []models.ChatMessage) llm.PromptBuilder {
	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: extractorInstruction},
		llm.Message{Role: llm.RoleUser, Content: transcript(history)},
	)
}
