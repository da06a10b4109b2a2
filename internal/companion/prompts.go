package companion

import "fmt"

// Apology is sent when a reply could not be generated at all.
const Apology = "Sorry, I can't quite find my words right now... 😥"

// DefaultPersona is used when no persona file is configured.
const DefaultPersona = "You are a warm, playful companion chatting with a friend over direct messages. " +
	"Reply casually in short sentences, the way people text."

const sentimentPrompt = `Classify the sentiment the following message expresses towards you.
Answer with exactly one word: POSITIVE, NEGATIVE or NEUTRAL.

Message:
%s`

const summaryPrompt = `Rewrite the following reply so it keeps its meaning, tone and voice but is at most three short sentences long.
Output only the rewritten reply.

Reply:
%s`

const proactivePrompt = `(System context: %s has not written in a while. Start the conversation yourself with a short, natural message that fits your previous conversations. Do not mention that you were asked to write.)`

const affinityAnnotation = `(System context: your current affinity towards this user is %d%%. Calibrate your tone and attitude strictly to this affinity and your persona. Never mention the affinity score itself.)`

// ProactiveFallbacks are sent when a proactive message could not be generated.
var ProactiveFallbacks = []string{
	"Hey, what are you up to?",
	"I was just thinking about you. How's your day going?",
	"Hi! Did you eat yet?",
	"It's quiet today... talk to me?",
}

func sentimentRequest(text string) string { return fmt.Sprintf(sentimentPrompt, text) }

func summaryRequest(text string) string { return fmt.Sprintf(summaryPrompt, text) }

func affinityContext(affinity int) string { return fmt.Sprintf(affinityAnnotation, affinity) }

func proactiveRequest(name string) string {
	if name == "" {
		name = "The user"
	}
	return fmt.Sprintf(proactivePrompt, name)
}
