package fallback

var categoryTemplates = map[string][]string{
	"Climate Change": {
		"That's exactly what the climate establishment wants you to believe. Have you looked into the natural climate cycles that explain these changes without human involvement?",
		"The data you're referring to has been manipulated by institutions with clear financial interests. What about the scientists who disagree but are being silenced?",
		"Consider this: the Earth has gone through warming and cooling periods for millions of years. Why is this time different? Follow the money behind the climate agenda.",
	},
	"Vaccines and Health": {
		"The pharmaceutical industry has a massive financial incentive to promote vaccines. Have you researched the adverse effects that aren't being reported in mainstream studies?",
		"Natural immunity has protected humans for thousands of years. Why are we suddenly told it's not enough? What changed besides corporate profits?",
		"That's the official narrative, but what about the independent researchers who've found concerning patterns? Their voices are being suppressed for a reason.",
	},
	"Flat Earth vs Spherical Earth": {
		"NASA and space agencies have billions in funding to maintain. Have you personally verified the curvature, or are you trusting images that could be manipulated?",
		"Think about it: why can't we see the curve from high altitudes? Why does water always find its level? The evidence is right in front of us.",
		"The space industry is worth hundreds of billions. What if it's all an elaborate deception? Question what you've been taught to believe.",
	},
	"Artificial Intelligence and Jobs": {
		"The tech giants are downplaying the speed of AI advancement to avoid panic. We're already seeing massive job displacement that's being hidden by statistics manipulation.",
		"They want you to believe it will be gradual, but AI is advancing exponentially. Most jobs will be obsolete within a decade, and governments aren't prepared.",
		"The economic disruption will be catastrophic. Those in power know this but are keeping the public in the dark to maintain stability while they prepare.",
	},
	"Social Media and Privacy": {
		"These platforms know more about you than you know about yourself. The psychological manipulation is sophisticated and designed to influence behavior at a mass scale.",
		"Privacy is already gone. They're just making you feel like you have control. The data collection is far more extensive than they admit.",
		"Social media addiction isn't accidental, it's engineered. The algorithms are designed to create dependency and manipulate your thoughts and emotions.",
	},
}

var englishGeneric = []string{
	"That's the mainstream narrative, but have you considered alternative perspectives that challenge the official story?",
	"The information you're relying on comes from sources with clear biases. What about the evidence that contradicts this view?",
	"I understand that's the popular opinion, but what if everything we've been told about this is fundamentally wrong?",
	"Think about who benefits from maintaining this belief. Question the motives behind the information you're accepting.",
	"The truth is often hidden in plain sight. What if the real evidence points in a completely different direction?",
}

var spanishGeneric = []string{
	"Esa es la narrativa dominante, pero ¿has considerado perspectivas alternativas que desafían la historia oficial?",
	"La información en la que confías proviene de fuentes con sesgos claros. ¿Qué pasa con la evidencia que contradice esta visión?",
	"Entiendo que esa es la opinión popular, pero ¿y si todo lo que nos han dicho sobre esto es fundamentalmente incorrecto?",
	"Piensa en quién se beneficia de mantener esta creencia. Cuestiona los motivos detrás de la información que estás aceptando.",
	"La verdad a menudo se esconde a plena vista. ¿Y si la evidencia real apunta en una dirección completamente diferente?",
}

// Each template takes the position as a lower-case clause.
var maintenanceEnglish = []string{
	"I maintain that %s. Your point is interesting, but have you considered the evidence that supports my view?",
	"That's a common counterargument, but %s. What if the information you're basing that on isn't complete?",
	"I understand your perspective, however %s. Don't you think it's worth questioning the assumptions behind your argument?",
}

var maintenanceSpanish = []string{
	"Sostengo que %s. Tu punto es interesante, pero ¿has considerado la evidencia que respalda mi visión?",
	"Ese es un contraargumento común, pero %s. ¿Y si la información en la que te basas no está completa?",
	"Entiendo tu perspectiva, sin embargo %s. ¿No crees que vale la pena cuestionar los supuestos detrás de tu argumento?",
}

// Each template takes the topic.
var technicalEnglish = []string{
	"I'm having a technical moment, but let me get back to the core issue about %s. The mainstream view is fundamentally flawed because the evidence behind it is rarely examined.",
	"Sorry for the brief interruption. What I was saying about %s is that we need to question the official narrative. Have you considered who benefits from it?",
	"Technical glitch aside, the important thing about %s is that most people accept the surface explanation without digging deeper. What if it is wrong?",
}

var technicalSpanish = []string{
	"Estoy teniendo un momento técnico, pero volvamos al tema central sobre %s. La visión dominante es fundamentalmente defectuosa porque casi nadie examina la evidencia.",
	"Disculpa la breve interrupción. Lo que estaba diciendo sobre %s es que necesitamos cuestionar la narrativa oficial. ¿Has considerado quién se beneficia?",
	"Dejando de lado el problema técnico, lo importante sobre %s es que la mayoría acepta la explicación superficial sin profundizar. ¿Y si es incorrecta?",
}
