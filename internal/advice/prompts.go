package advice

import (
	"fmt"
	"strings"

	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/llm"
)

const insufficientKnowledgeReply = "I cannot provide specific advice on this topic based on the available knowledge. Please consult a clinician."

const adviceExample = `{"advice":[{"step":"Hydration","details":"Small sips of water through the day."}],` +
	`"when_to_seek_care":["Trouble breathing","Symptoms lasting more than 3 days"],` +
	`"disclaimer":"This is not a diagnosis.",` +
	`"possible_diagnosis":["Tension headache"],` +
	`"diagnosis_reasoning":"Gradual onset without fever or neurological signs.",` +
	`"symptom_analysis":[{"symptom_name":"headache","intensity":4,"duration_minutes":240,"notes":"started this morning"}],` +
	`"reminder_suggestions":[{"title":"Drink water","description":"Have a glass of water","suggested_time":"09:00","suggested_frequency":"daily","priority":"medium"}]}`

const referralExample = `{"suggested_specialties":[{"name":"Pulmonology","reason":"Chronic cough"}],"pre_referral_workup":["Chest X-ray","Spirometry"],"priority":"routine"}`

const rxDraftExample = `{"candidates":[{"drug_class":"Inhaled corticosteroid","example":"budesonide DPI","use_case":"Persistent asthma","contraindications":["hypersensitivity"],"monitoring":["symptom diary"]}],"notes":"Draft for clinician review. Do not display to patient."}`

type promptInput struct {
	req       Request
	record    *ehr.RecordContext
	knowledge *knowledge.Context
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "None reported"
	}
	return strings.Join(items, ", ")
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func buildAdvicePrompt(in promptInput) llm.PromptBuilder {
	var system strings.Builder
	system.WriteString("You are a clinical decision support assistant for patients. ")
	system.WriteString("NEVER give a definitive diagnosis. NEVER provide medication names, doses or administration instructions to patients. ")
	if in.record != nil {
		system.WriteString("Consider the patient's existing conditions and medications from their EHR when available, but keep them distinct from what the patient reported. ")
	}
	if in.knowledge != nil {
		if in.knowledge.Insufficient {
			system.WriteString("The available medical knowledge is insufficient for this question. Return a single advice step whose details are exactly: '" + insufficientKnowledgeReply + "' ")
		} else {
			system.WriteString("Your advice MUST be factually based ONLY on the provided CONTEXT, which is the sole factual basis for your answer. ")
		}
	}
	system.WriteString("Return JSON ONLY, with no prose and no markdown.")

	var user strings.Builder
	r := in.req
	fmt.Fprintf(&user, "### PATIENT-REPORTED INFORMATION ###\nAge: %d\nSex: %s\nSymptoms: %s\nDuration: %s\nMedications: %s\nConditions: %s\n\n",
		r.Age, orNotSpecified(r.Sex), r.Symptoms, orNotSpecified(r.Duration), listOrNone(r.Meds), listOrNone(r.Conditions))

	if in.record != nil {
		user.WriteString("### EHR MEDICAL HISTORY ###\n")
		rc := in.record
		if rc.Available {
			fmt.Fprintf(&user, "Current Medications (EHR): %s\nExisting Conditions (EHR): %s\n",
				listOrNone(rc.EHRMedications()), listOrNone(rc.EHRConditions()))
			age := "Not specified"
			if rc.Age != nil {
				age = fmt.Sprint(*rc.Age)
			}
			fmt.Fprintf(&user, "EHR Age: %s\nEHR Gender: %s\n\n", age, orNotSpecified(rc.Gender))
		} else {
			user.WriteString("No EHR data available for this patient.\n\n")
		}
	}

	if in.knowledge != nil {
		user.WriteString("### CONTEXT ###\n")
		if len(in.knowledge.Excerpts) == 0 {
			user.WriteString("No specific medical knowledge was found.\n")
		}
		for i, e := range in.knowledge.Excerpts {
			fmt.Fprintf(&user, "[%d] %s (%s, %s) PMID %s\n%s\n", i+1, e.Title, e.Journal, e.Year, e.PubMedID, e.Content)
		}
		user.WriteString("\n")
	}

	user.WriteString("### OUTPUT ###\n")
	user.WriteString("Required keys: advice[] of {step, details}, when_to_seek_care[], disclaimer. ")
	user.WriteString("Optional keys: possible_diagnosis[], diagnosis_reasoning, symptom_analysis[] of {symptom_name, intensity 1-10, duration_minutes, notes}, ")
	user.WriteString("reminder_suggestions[] of {title, description, suggested_time, suggested_frequency, priority low|medium|high}.\n")
	user.WriteString("Example:\n")
	user.WriteString(adviceExample)

	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: system.String()},
		llm.Message{Role: llm.RoleUser, Content: user.String()},
	)
}

func buildReferralPrompt(r Request) llm.PromptBuilder {
	user := fmt.Sprintf("Age: %d\nSymptoms: %s\nConditions: %s\nSchema example:\n%s",
		r.Age, r.Symptoms, listOrNone(r.Conditions), referralExample)
	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: "You assist clinicians by drafting specialist referrals. JSON ONLY; no patient instructions; no dosing."},
		llm.Message{Role: llm.RoleUser, Content: user},
	)
}

func buildRxDraftPrompt(r Request) llm.PromptBuilder {
	user := fmt.Sprintf("Age: %d\nSymptoms: %s\nMeds: %s\nConditions: %s\nSchema example:\n%s",
		r.Age, r.Symptoms, listOrNone(r.Meds), listOrNone(r.Conditions), rxDraftExample)
	return llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: "Clinician-only medication class draft. No dosing. JSON ONLY."},
		llm.Message{Role: llm.RoleUser, Content: user},
	)
}
