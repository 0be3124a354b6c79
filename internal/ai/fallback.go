package ai

import (
	"context"
	"strings"
)

// FallbackProvider answers from a fixed keyword table when no completion API
// is configured. It never fails, so the chat path stays usable offline.
type FallbackProvider struct{}

func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

type keywordRule struct {
	keywords []string
	answer   string
}

var fallbackRules = []keywordRule{
	{
		keywords: []string{"fever", "temperature"},
		answer: "A fever is a body temperature above 38°C (100.4°F). " +
			"Rest, drink plenty of fluids, and consider paracetamol or ibuprofen for comfort. " +
			"Seek medical care if a fever lasts more than three days, exceeds 39.4°C (103°F), " +
			"or is accompanied by a stiff neck, rash, confusion, or difficulty breathing.",
	},
	{
		keywords: []string{"headache", "migraine"},
		answer: "Most headaches respond to rest, hydration, and over-the-counter pain relief. " +
			"A sudden severe headache, a headache after a head injury, or one with fever, " +
			"vision changes, or weakness needs urgent medical attention.",
	},
	{
		keywords: []string{"cough", "cold", "flu", "sore throat"},
		answer: "For coughs and colds: rest, fluids, and warm drinks usually help, and symptoms " +
			"typically settle within a week or two. See a doctor for breathlessness, chest pain, " +
			"coughing up blood, or symptoms lasting beyond three weeks.",
	},
	{
		keywords: []string{"burn", "scald"},
		answer: "For minor burns: cool the area under running water for 20 minutes, cover with a " +
			"clean non-stick dressing, and avoid ice or creams on broken skin. Burns that are deep, " +
			"larger than the palm of a hand, or on the face or hands need medical review.",
	},
	{
		keywords: []string{"chest pain", "heart attack"},
		answer: "Chest pain can be serious. If it is crushing, spreads to the arm, jaw, or back, or " +
			"comes with sweating, nausea, or breathlessness, call emergency services immediately.",
	},
	{
		keywords: []string{"first aid", "bleeding", "wound"},
		answer: "For bleeding wounds: apply firm direct pressure with a clean cloth, elevate the area " +
			"if possible, and keep the pressure on until the bleeding stops. Deep wounds, wounds that " +
			"will not stop bleeding, or animal bites need professional care.",
	},
	{
		keywords: []string{"medication", "dose", "dosage", "side effect"},
		answer: "Always follow the dose on the packaging or your prescriber's instructions. " +
			"Do not combine medicines containing the same active ingredient, and ask a pharmacist " +
			"about interactions or side effects before mixing medications.",
	},
}

const fallbackDefault = "I can share general health information on topics like fever, headaches, " +
	"coughs, burns, and first aid. Please describe your symptoms or question, and remember that " +
	"this is general information, not a diagnosis. For anything urgent, contact a medical professional."

// answerFor scans the latest user message for a known keyword.
func answerFor(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		q := strings.ToLower(messages[i].Content)
		for _, rule := range fallbackRules {
			for _, kw := range rule.keywords {
				if strings.Contains(q, kw) {
					return rule.answer
				}
			}
		}
		break
	}
	return fallbackDefault
}

func (p *FallbackProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	_ = ctx
	return answerFor(messages), nil
}

// StreamChat emits the canned answer word by word so the streaming surface
// behaves the same with and without an API key.
func (p *FallbackProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	answer := answerFor(messages)

	go func() {
		defer close(chunks)
		defer close(errs)

		words := strings.Fields(answer)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			select {
			case chunks <- w:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, errs
}
